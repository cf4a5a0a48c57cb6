package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key derives a stable cache key from positional parts. Maps inside parts
// are encoded with sorted keys, so equal arguments always hash equally.
func Key(parts ...any) string {
	data, err := json.Marshal(parts)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", parts))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
