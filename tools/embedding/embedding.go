package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/mohammad-safakhou/researcher/provider"
)

// DefaultBatchSize bounds how many texts go into one provider call.
const DefaultBatchSize = 64

type Embedding struct {
	provider  provider.Embedder
	batchSize int
}

type EmbedVec struct {
	DocID string
	Vec   []float32
}

func NewEmbedding(p provider.Embedder, batchSize int) *Embedding {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedding{
		provider:  p,
		batchSize: batchSize,
	}
}

// EmbedMany embeds texts in batches and returns one vector per text.
func (e *Embedding) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.provider.CreateEmbedding(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors", start, end, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (e *Embedding) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// zero-length, or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
