// Package postprocessors turns loaded policy documents into index-ready
// chunks through a configured chain of processors. The default chain
// splits on paragraph and sentence boundaries, then trims each chunk and
// drops the empty ones.
package postprocessors

import (
	"context"
	"errors"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Pipeline runs the configured processors over a document in order.
// It implements the PostProcessorPipeline port used by ingestion.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a new processing pipeline with the given processors.
// Processors are executed in the order provided.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process runs the document through all processors in order.
// A processor either creates chunks from the document or rewrites the
// chunks it receives. A failure is reported as a ProcessingError whose
// stage is the processor name.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, &domain.ValidationError{Field: "document", Reason: "required"}
	}

	var chunks []domain.Chunk

	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		chunks, err = processor.Process(ctx, doc, chunks)
		if err != nil {
			if errors.Is(err, domain.ErrProcessing) {
				return nil, err
			}
			return nil, &domain.ProcessingError{DocumentID: doc.ID, Stage: processor.Name(), Err: err}
		}
	}

	return chunks, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}
