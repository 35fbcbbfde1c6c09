package pagevec

import (
	"context"
	"fmt"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/answer"
	"github.com/hupe1980/pagevec/blobstore"
	"github.com/hupe1980/pagevec/embedding"
	"github.com/hupe1980/pagevec/index/flat"
	"github.com/hupe1980/pagevec/lease"
	"github.com/hupe1980/pagevec/merger"
	"github.com/hupe1980/pagevec/model"
	"github.com/hupe1980/pagevec/search"
	"github.com/hupe1980/pagevec/session"
	"github.com/hupe1980/pagevec/writer"
)

// Options contains configuration options for the pipeline.
type Options struct {
	// Logger receives structured logs from all components.
	Logger *Logger

	// Compression is applied to published index blobs.
	Compression flat.Compression

	// Locker serializes merges per scope. Defaults to an in-process
	// locker, which is only safe for single-process deployments.
	Locker lease.Locker

	// Embedder vectorizes queries. Defaults to a deterministic mock.
	Embedder embedding.Client

	// Answerer generates answers from page images. Defaults to a mock
	// that returns the fallback text.
	Answerer answer.Client

	// Images serves page image blobs. Defaults to the index store.
	Images blobstore.Store
}

// Pipeline wires the index lifecycle components over one object store:
// ingest, session merge, master rebuild and search.
type Pipeline struct {
	store    *aggregate.Store
	writer   *writer.Writer
	sessions *session.Store
	merger   *merger.Service
	searcher *search.Service
}

// IngestResult reports one ingested document.
type IngestResult struct {
	DocumentID string

	// IndexID is the id of the published standalone document index.
	IndexID string

	// VectorCount is the number of vectors the document contributed.
	VectorCount int

	// SessionVectors is the session's total vector count after the merge.
	SessionVectors int
}

// New creates a pipeline publishing under the given key prefix with the
// deployment's fixed vector dimension.
func New(blobs blobstore.Store, prefix string, dimension int, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Logger:      NewLogger(nil),
		Compression: flat.CompressionNone,
		Locker:      lease.NewMemoryLocker(),
		Images:      blobs,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = &embedding.Mock{Dim: dimension}
	}
	if opts.Answerer == nil {
		opts.Answerer = &answer.Mock{}
	}

	logger := opts.Logger.Logger
	store := aggregate.NewStore(blobs, aggregate.WithCompression(opts.Compression))

	return &Pipeline{
		store:    store,
		writer:   writer.New(store, prefix, dimension, writer.WithLogger(logger)),
		sessions: session.New(store, opts.Locker, prefix, dimension, session.WithLogger(logger)),
		merger:   merger.New(blobs, store, opts.Locker, prefix, dimension, merger.WithLogger(logger)),
		searcher: search.New(store, opts.Images, opts.Embedder, opts.Answerer, prefix, search.WithLogger(logger)),
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCompression sets the index blob compression codec.
func WithCompression(c flat.Compression) func(o *Options) {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithLocker sets the merge lease backend.
func WithLocker(locker lease.Locker) func(o *Options) {
	return func(o *Options) {
		o.Locker = locker
	}
}

// WithEmbedder sets the embedding backend.
func WithEmbedder(client embedding.Client) func(o *Options) {
	return func(o *Options) {
		o.Embedder = client
	}
}

// WithAnswerer sets the answer backend.
func WithAnswerer(client answer.Client) func(o *Options) {
	return func(o *Options) {
		o.Answerer = client
	}
}

// IngestDocument publishes a standalone index for the batch and merges it
// into the session. The standalone index stays behind for the next master
// rebuild.
func (p *Pipeline) IngestDocument(ctx context.Context, sessionID string, batch model.VectorBatch) (*IngestResult, error) {
	published, err := p.writer.Write(ctx, batch)
	if err != nil {
		return nil, err
	}

	doc, err := p.store.LoadDocument(ctx, published.Keys)
	if err != nil {
		return nil, fmt.Errorf("read back document %s: %w", batch.DocumentID, err)
	}

	merged, err := p.sessions.MergeDocument(ctx, sessionID, doc)
	if err != nil {
		return nil, err
	}

	return &IngestResult{
		DocumentID:     published.DocumentID,
		IndexID:        published.IndexID,
		VectorCount:    published.VectorCount,
		SessionVectors: merged.TotalVectors,
	}, nil
}

// RebuildMaster consolidates all published document indexes into the
// master index.
func (p *Pipeline) RebuildMaster(ctx context.Context) (*merger.Summary, error) {
	return p.merger.RebuildMaster(ctx)
}

// Search runs one similarity query against the session index named in the
// request, or against the master index when no session is named.
func (p *Pipeline) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	return p.searcher.Search(ctx, req)
}
