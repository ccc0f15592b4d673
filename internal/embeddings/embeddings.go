// Package embeddings provides the embedding function the store consumes.
// The runtime treats embeddings as opaque; this package ships a local
// deterministic embedder so vector search works with no external service,
// and deployments can substitute any other Func.
package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Dimension is the embedding dimension the runtime is wired for.
const Dimension = 384

// Func produces an embedding for text. Implementations must be
// deterministic for identical input within one deployment.
type Func func(ctx context.Context, text string) ([]float32, error)

// Local returns a deterministic hashed bag-of-words embedder of the given
// dimension. Tokens hash into buckets with a sign hash, then the vector
// is L2-normalized. Not semantically meaningful across paraphrases, but
// stable, fast, and dependency-free.
func Local(dimension int) Func {
	if dimension <= 0 {
		dimension = Dimension
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dimension)
		for _, token := range tokenize(text) {
			bucket, sign := hashToken(token, dimension)
			vec[bucket] += sign
		}
		normalizeInPlace(vec)
		return vec, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 0xAC00 && r <= 0xD7A3)
	})
}

func hashToken(token string, dimension int) (int, float32) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()
	bucket := int(sum % uint64(dimension))
	sign := float32(1)
	if (sum>>63)&1 == 1 {
		sign = -1
	}
	return bucket, sign
}

func normalizeInPlace(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
