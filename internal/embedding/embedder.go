// Package embedding turns debate prompts into vectors for the semantic
// cache, with a bounded in-process cache in front of the provider.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Embedder produces a vector representation of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// CacheKey derives the content-hash key used to memoize embeddings, so
// identical texts never pay for a second provider round trip.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
