package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// HashProvider generates deterministic embeddings from a text hash. The
// vectors carry no semantic signal, but identical texts always map to
// identical unit vectors, which keeps relevance ranking stable and testable
// without any model dependency.
type HashProvider struct {
	dimensions int
}

func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{dimensions: dimensions}
}

var _ Provider = (*HashProvider)(nil)

func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	embedding := make([]float32, p.dimensions)
	seed := h.Sum64()
	for i := 0; i < p.dimensions; i++ {
		// LCG keeps the expansion deterministic per hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

func (p *HashProvider) Dimensions() int {
	return p.dimensions
}

// normalize converts the embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
