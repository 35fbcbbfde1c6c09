// Package answer generates a natural-language answer from a search query
// and the page images the search retrieved.
package answer

import (
	"context"
	"errors"
	"fmt"
)

// ErrService is returned when the answer backend fails. Search degrades to
// a canned fallback text instead of failing the request.
var ErrService = errors.New("answer: service error")

// Client generates an answer grounded in the given page images.
type Client interface {
	// Answer produces an answer to the query using the images as context.
	// Images are PNG or JPEG encoded, most relevant first.
	Answer(ctx context.Context, query string, images [][]byte) (string, error)
}

// Fallback returns the degraded answer text used when no images matched or
// the backend is unavailable. The wording is part of the API contract with
// existing clients.
func Fallback(query string, imageCount int) string {
	if imageCount == 0 {
		return "No relevant images found to answer your query."
	}
	return fmt.Sprintf("I found %d relevant images for your query %q, but I'm unable to generate a detailed answer at this moment.", imageCount, query)
}
