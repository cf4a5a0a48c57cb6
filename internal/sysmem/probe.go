// Package sysmem reports live system memory for adaptive batching and
// cache pressure checks.
package sysmem

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Probe implements the interface.
var _ driven.MemoryProbe = (*Probe)(nil)

// Probe queries the operating system through gopsutil.
type Probe struct{}

// NewProbe creates a system memory probe.
func NewProbe() *Probe {
	return &Probe{}
}

// Stats returns total and available memory and the used fraction in [0, 1].
func (p *Probe) Stats(ctx context.Context) (driven.MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return driven.MemoryStats{}, fmt.Errorf("read virtual memory: %w", err)
	}
	return driven.MemoryStats{
		Total:       vm.Total,
		Available:   vm.Available,
		UsedPercent: vm.UsedPercent / 100,
	}, nil
}
