// Package embedding defines the embedding client used to vectorize page
// images at ingest time and queries at search time, plus an HTTP
// implementation speaking the Cohere v2 embed protocol.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrService is returned when the embedding backend fails or responds with
// something unusable. Callers surface it as a transient upstream error.
var ErrService = errors.New("embedding: service error")

// ErrDimensionMismatch is returned when the backend produces a vector of an
// unexpected dimension. Indexes are fixed-dimension, so a changed embedding
// model is a configuration error, not a retryable one.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Mode selects the embedding input type. Text embedded as a query and text
// embedded as a document land in different regions of the vector space, so
// the caller must say which side of the search it is on.
type Mode string

const (
	ModeQuery    Mode = "search_query"
	ModeDocument Mode = "search_document"
)

// Client vectorizes text and images into a shared embedding space.
type Client interface {
	// EmbedText returns the embedding of a text input.
	EmbedText(ctx context.Context, text string, mode Mode) ([]float32, error)

	// EmbedImage returns the embedding of a PNG or JPEG image.
	EmbedImage(ctx context.Context, image []byte, contentType string) ([]float32, error)
}
