package pagevec

import (
	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/search"
	"github.com/hupe1980/pagevec/session"
	"github.com/hupe1980/pagevec/writer"
)

// Common error conditions of the pipeline, re-exported so facade users can
// match them without importing the subpackages.
var (
	// ErrIndexNotFound means nothing has been indexed yet for the scope.
	ErrIndexNotFound = search.ErrIndexNotFound

	// ErrDocumentExists means the document id is already merged into the
	// target session.
	ErrDocumentExists = session.ErrDocumentExists

	// ErrEmptyBatch means the ingested document carried no vectors.
	ErrEmptyBatch = writer.ErrEmptyBatch

	// ErrCorrupted means a stored index/sidecar pair is unreadable or
	// internally inconsistent.
	ErrCorrupted = aggregate.ErrCorrupted
)
