// Package session owns the growing per-session index. Each document merge
// is a read-modify-write of the whole session aggregate, executed under an
// exclusive per-session lease so concurrent merges cannot clobber each
// other's vectors.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/lease"
)

// ErrDocumentExists is returned when the document id is already merged into
// the session. Re-merging is rejected rather than silently duplicated.
var ErrDocumentExists = aggregate.ErrDocumentExists

// Options contains configuration options for the session store.
type Options struct {
	// Logger receives structured progress logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// MergeResult reports the outcome of one document merge.
type MergeResult struct {
	// TotalVectors is the session's vector count after the merge.
	TotalVectors int

	// PageCount is the number of pages the merged document contributed.
	PageCount int
}

// Store merges document indexes into session aggregates.
type Store struct {
	store     *aggregate.Store
	locker    lease.Locker
	prefix    string
	dimension int
	opts      Options
}

// New creates a session store publishing under the given key prefix.
func New(store *aggregate.Store, locker lease.Locker, prefix string, dimension int, optFns ...func(o *Options)) *Store {
	opts := Options{
		Logger: slog.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		store:     store,
		locker:    locker,
		prefix:    prefix,
		dimension: dimension,
		opts:      opts,
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// MergeDocument appends a document index to the session aggregate and
// republishes it as one unit.
//
// The merge loads the current session (absent means empty), assigns every
// record's global index as the session's prior vector count plus the
// record's local index, and rejects a document id that is already present.
// A session that exists but cannot be read fails the merge with
// aggregate.ErrCorrupted: falling back to an empty session would orphan the
// previously merged vectors.
func (s *Store) MergeDocument(ctx context.Context, sessionID string, doc *aggregate.DocumentIndex) (*MergeResult, error) {
	held, err := s.locker.Acquire(ctx, s.scopeName(sessionID))
	if err != nil {
		return nil, fmt.Errorf("acquire session lease %s: %w", sessionID, err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.opts.Logger.WarnContext(ctx, "session lease release failed",
				"session_id", sessionID,
				"error", err,
			)
		}
	}()

	keys := aggregate.SessionKeys(s.prefix, sessionID)

	agg, err := s.store.LoadAggregate(ctx, keys)
	switch {
	case errors.Is(err, aggregate.ErrNotFound):
		agg, err = aggregate.New(s.dimension)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	offset, err := agg.Append(doc)
	if err != nil {
		return nil, fmt.Errorf("merge document %s into session %s: %w", doc.Meta.DocumentID, sessionID, err)
	}

	if err := s.store.PublishAggregate(ctx, keys, agg); err != nil {
		return nil, fmt.Errorf("publish session %s: %w", sessionID, err)
	}

	s.opts.Logger.InfoContext(ctx, "document merged into session",
		"session_id", sessionID,
		"document_id", doc.Meta.DocumentID,
		"offset", offset,
		"pages", doc.Index.Count(),
		"total_vectors", agg.Index.Count(),
	)

	return &MergeResult{
		TotalVectors: agg.Index.Count(),
		PageCount:    doc.Index.Count(),
	}, nil
}

func (s *Store) scopeName(sessionID string) string {
	return "session/" + sessionID
}
