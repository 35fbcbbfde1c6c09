package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Mock is a deterministic in-process Client for tests and local runs. It
// derives vectors from an FNV hash of the input, so equal inputs always map
// to equal vectors and search results are reproducible.
type Mock struct {
	// Dim is the dimension of produced vectors.
	Dim int

	// TextFn, when set, overrides EmbedText.
	TextFn func(ctx context.Context, text string, mode Mode) ([]float32, error)

	// ImageFn, when set, overrides EmbedImage.
	ImageFn func(ctx context.Context, image []byte, contentType string) ([]float32, error)
}

var _ Client = (*Mock)(nil)

// EmbedText implements Client.
func (m *Mock) EmbedText(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if m.TextFn != nil {
		return m.TextFn(ctx, text, mode)
	}
	return m.derive([]byte(string(mode) + ":" + text)), nil
}

// EmbedImage implements Client.
func (m *Mock) EmbedImage(ctx context.Context, image []byte, contentType string) ([]float32, error) {
	if m.ImageFn != nil {
		return m.ImageFn(ctx, image, contentType)
	}
	return m.derive(image), nil
}

func (m *Mock) derive(input []byte) []float32 {
	h := fnv.New64a()
	_, _ = h.Write(input)
	seed := h.Sum64()

	vec := make([]float32, m.Dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(math.Sin(float64(seed%10007) + float64(i)))
	}
	return vec
}
