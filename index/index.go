// Package index defines the vector similarity index primitive that the
// lifecycle components populate, merge and query.
package index

import (
	"errors"
	"fmt"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// ErrDimensionMismatch is a named error type for dimension mismatch.
// Vectors are never silently padded or truncated.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

// Error returns the error message for an invalid dimension.
func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// SearchResult represents a single nearest-neighbor match.
type SearchResult struct {
	// Position is the vector's position within the index.
	Position int

	// Distance is the distance between the query vector and the result
	// vector. Lower means more similar.
	Distance float32
}

// FilterFunc restricts a search to positions for which it returns true.
// A nil filter admits every position.
type FilterFunc func(position int) bool

// Index is an append-only vector similarity index.
//
// Positions are assigned densely in insertion order starting at 0 and are
// never reused; the lifecycle components rely on this to keep provenance
// records aligned with index positions.
type Index interface {
	// Add appends a vector and returns its position.
	Add(v []float32) (int, error)

	// Search returns the k nearest vectors to q by distance, nearest first.
	Search(q []float32, k int, filter FilterFunc) ([]SearchResult, error)

	// Vectors exports all vectors in position order.
	Vectors() [][]float32

	// Count returns the number of vectors in the index.
	Count() int

	// Dimension returns the fixed vector dimensionality of the index.
	Dimension() int
}
