// Package search answers similarity queries against a session or master
// index: it embeds the query, runs a top-K nearest-neighbor search, resolves
// every hit back to its source document page and generates an answer from
// the top page images.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/answer"
	"github.com/hupe1980/pagevec/blobstore"
	"github.com/hupe1980/pagevec/embedding"
	"github.com/hupe1980/pagevec/index"
)

// ErrIndexNotFound is returned when nothing has been indexed yet for the
// requested scope. This is an expected, user-visible condition.
var ErrIndexNotFound = aggregate.ErrNotFound

// answerImageBudget bounds how many page images are handed to the answer
// backend per query.
const answerImageBudget = 3

// Options contains configuration options for the search service.
type Options struct {
	// Logger receives structured progress logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Request is one similarity query. Exactly one of Text and Image must be
// set. SessionID selects the session index; when empty the master index is
// queried.
type Request struct {
	SessionID        string
	Text             string
	Image            []byte
	ImageContentType string
	TopK             int
}

// Source is one resolved search hit.
type Source struct {
	DocumentID string  `json:"documentId"`
	Bucket     string  `json:"bucket"`
	Key        string  `json:"key"`
	PageNumber int     `json:"pageNumber,omitempty"`
	Distance   float32 `json:"distance"`
}

// Result is the response to one query.
type Result struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	TotalResults int      `json:"totalResults"`
}

// Service executes similarity queries. Each query loads a fresh index
// handle from the object store and discards it when done; there is no
// cross-query cache.
type Service struct {
	store    *aggregate.Store
	images   blobstore.Store
	embedder embedding.Client
	answerer answer.Client
	prefix   string
	opts     Options
}

// New creates a search service. The images store serves the page image
// blobs referenced by the metadata sidecars.
func New(store *aggregate.Store, images blobstore.Store, embedder embedding.Client, answerer answer.Client, prefix string, optFns ...func(o *Options)) *Service {
	opts := Options{
		Logger: slog.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{
		store:    store,
		images:   images,
		embedder: embedder,
		answerer: answerer,
		prefix:   prefix,
		opts:     opts,
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Search runs one similarity query end to end.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	if req.TopK <= 0 {
		return nil, index.ErrInvalidK
	}
	if req.Text == "" && len(req.Image) == 0 {
		return nil, fmt.Errorf("query must carry text or an image")
	}

	keys := aggregate.MasterKeys(s.prefix)
	scope := "master"
	if req.SessionID != "" {
		keys = aggregate.SessionKeys(s.prefix, req.SessionID)
		scope = "session/" + req.SessionID
	}

	agg, err := s.store.LoadAggregate(ctx, keys)
	if err != nil {
		return nil, err
	}

	query, err := s.embedQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(query) != agg.Index.Dimension() {
		return nil, &embedding.ErrDimensionMismatch{Expected: agg.Index.Dimension(), Actual: len(query)}
	}

	// Only positions with a provenance record are searchable. A stale index
	// may hold vectors whose metadata lagged behind; those are dropped, not
	// fatal.
	resolvable := agg.Positions()
	hits, err := agg.Index.Search(query, req.TopK, func(position int) bool {
		return resolvable.Contains(uint32(position))
	})
	if err != nil {
		return nil, err
	}

	byPosition := agg.ResolveAll()
	sources := make([]Source, 0, len(hits))
	for _, hit := range hits {
		resolved, ok := byPosition[hit.Position]
		if !ok {
			continue
		}
		sources = append(sources, Source{
			DocumentID: resolved.DocumentID,
			Bucket:     resolved.Record.Bucket,
			Key:        resolved.Record.Key,
			PageNumber: resolved.Record.PageNumber(),
			Distance:   hit.Distance,
		})
	}

	text := s.generateAnswer(ctx, req.Text, sources)

	s.opts.Logger.InfoContext(ctx, "search completed",
		"scope", scope,
		"top_k", req.TopK,
		"results", len(sources),
	)

	return &Result{
		Answer:       text,
		Sources:      sources,
		TotalResults: len(sources),
	}, nil
}

func (s *Service) embedQuery(ctx context.Context, req Request) ([]float32, error) {
	if len(req.Image) > 0 {
		return s.embedder.EmbedImage(ctx, req.Image, req.ImageContentType)
	}
	return s.embedder.EmbedText(ctx, req.Text, embedding.ModeQuery)
}

// generateAnswer downloads up to answerImageBudget page images and asks the
// answer backend for a narrative. Any failure along the way degrades to a
// fallback text; the resolved sources stay useful without it.
func (s *Service) generateAnswer(ctx context.Context, query string, sources []Source) string {
	if len(sources) == 0 {
		return answer.Fallback(query, 0)
	}

	top := sources
	if len(top) > answerImageBudget {
		top = top[:answerImageBudget]
	}
	images := s.fetchImages(ctx, top)
	if len(images) == 0 {
		return answer.Fallback(query, len(sources))
	}

	text, err := s.answerer.Answer(ctx, query, images)
	if err != nil {
		s.opts.Logger.WarnContext(ctx, "answer generation failed", "error", err)
		return answer.Fallback(query, len(sources))
	}
	return text
}

// fetchImages downloads page images concurrently, preserving source order.
// Individual download failures are logged and skipped.
func (s *Service) fetchImages(ctx context.Context, sources []Source) [][]byte {
	var mu sync.Mutex
	fetched := make([][]byte, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			data, err := s.images.Get(gctx, src.Key)
			if err != nil {
				s.opts.Logger.WarnContext(gctx, "page image unavailable",
					"bucket", src.Bucket,
					"key", src.Key,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			fetched[i] = data
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	images := make([][]byte, 0, len(sources))
	for _, data := range fetched {
		if data != nil {
			images = append(images, data)
		}
	}
	return images
}
