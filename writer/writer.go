// Package writer turns one document's embedding batch into a standalone
// index/sidecar pair and publishes it to the object store.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/index"
	"github.com/hupe1980/pagevec/index/flat"
	"github.com/hupe1980/pagevec/model"
)

// ErrEmptyBatch is returned for a batch with zero vectors. No index is
// published for an empty document.
var ErrEmptyBatch = errors.New("writer: batch has no vectors")

// Options contains configuration options for the writer.
type Options struct {
	// Logger receives structured progress logs. Defaults to slog.Default().
	Logger *slog.Logger

	// NewIndexID generates the unique id of a published document index.
	// Defaults to random UUIDs; overridable for deterministic tests.
	NewIndexID func() string
}

// Result describes a published document index.
type Result struct {
	DocumentID  string
	IndexID     string
	VectorCount int
	Keys        aggregate.KeyPair
}

// Writer builds and publishes standalone document indexes.
type Writer struct {
	store     *aggregate.Store
	prefix    string
	dimension int
	opts      Options
}

// New creates a writer publishing under the given key prefix with the
// deployment's fixed vector dimension.
func New(store *aggregate.Store, prefix string, dimension int, optFns ...func(o *Options)) *Writer {
	opts := Options{
		Logger:     slog.Default(),
		NewIndexID: uuid.NewString,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Writer{
		store:     store,
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

// Write builds a DocumentIndex from the batch, assigns local positions in
// insertion order and publishes the index/sidecar pair. The whole batch is
// validated before anything is written: an empty batch or a single
// mismatched vector publishes nothing.
func (w *Writer) Write(ctx context.Context, batch model.VectorBatch) (*Result, error) {
	if len(batch.Pages) == 0 {
		return nil, fmt.Errorf("%w: document %s", ErrEmptyBatch, batch.DocumentID)
	}
	for _, page := range batch.Pages {
		if len(page.Vector) != w.dimension {
			return nil, &index.ErrDimensionMismatch{Expected: w.dimension, Actual: len(page.Vector)}
		}
	}

	doc, err := w.build(batch)
	if err != nil {
		return nil, err
	}

	indexID := w.opts.NewIndexID()
	keys := aggregate.DocumentKeys(w.prefix, batch.OwnerID, indexID)

	if err := w.store.PublishDocument(ctx, keys, doc); err != nil {
		return nil, fmt.Errorf("publish document %s: %w", batch.DocumentID, err)
	}

	w.opts.Logger.InfoContext(ctx, "document index published",
		"document_id", batch.DocumentID,
		"index_id", indexID,
		"vectors", doc.Index.Count(),
		"index_key", keys.IndexKey,
	)

	return &Result{
		DocumentID:  batch.DocumentID,
		IndexID:     indexID,
		VectorCount: doc.Index.Count(),
		Keys:        keys,
	}, nil
}

func (w *Writer) build(batch model.VectorBatch) (*aggregate.DocumentIndex, error) {
	idx, err := flat.New(flat.WithDimension(w.dimension))
	if err != nil {
		return nil, err
	}

	images := make([]model.ImageRecord, 0, len(batch.Pages))
	for _, page := range batch.Pages {
		pos, err := idx.Add(page.Vector)
		if err != nil {
			return nil, err
		}
		images = append(images, model.ImageRecord{
			Key:        page.Location.Key,
			Bucket:     page.Location.Bucket,
			LocalIndex: pos,
			PageFile:   pageFileName(page),
		})
	}

	return &aggregate.DocumentIndex{
		Index: idx,
		Meta: model.DocumentMeta{
			DocumentID: batch.DocumentID,
			OwnerID:    batch.OwnerID,
			Images:     images,
		},
	}, nil
}

func pageFileName(page model.PageVector) string {
	if page.PageNumber > 0 {
		return fmt.Sprintf("page_%04d.png", page.PageNumber)
	}
	return path.Base(page.Location.Key)
}
