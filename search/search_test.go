package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/answer"
	"github.com/hupe1980/pagevec/blobstore"
	"github.com/hupe1980/pagevec/embedding"
	"github.com/hupe1980/pagevec/index"
	"github.com/hupe1980/pagevec/index/flat"
	"github.com/hupe1980/pagevec/model"
)

const (
	testDim    = 4
	testPrefix = "vectors"
)

type stubAnswerer struct {
	text      string
	err       error
	lastQuery string
	gotImages [][]byte
}

func (s *stubAnswerer) Answer(_ context.Context, query string, images [][]byte) (string, error) {
	s.lastQuery = query
	s.gotImages = images
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

type testEnv struct {
	indexes  *blobstore.MemoryStore
	images   *blobstore.MemoryStore
	store    *aggregate.Store
	embedder *embedding.Mock
	answerer *stubAnswerer
	service  *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		indexes:  blobstore.NewMemoryStore(),
		images:   blobstore.NewMemoryStore(),
		embedder: &embedding.Mock{Dim: testDim},
		answerer: &stubAnswerer{text: "The totals are on page 2."},
	}
	env.store = aggregate.NewStore(env.indexes)
	env.service = New(env.store, env.images, env.embedder, env.answerer, testPrefix, func(o *Options) {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	})
	return env
}

// publishAggregate builds an aggregate from per-document vector lists and
// publishes it under the given keys. Page image blobs are stored alongside.
func (e *testEnv) publishAggregate(t *testing.T, keys aggregate.KeyPair, docs map[string][][]float32) {
	t.Helper()

	agg, err := aggregate.New(testDim)
	require.NoError(t, err)

	// Deterministic append order keeps global positions predictable.
	for _, docID := range sortedKeys(docs) {
		vectors := docs[docID]
		idx, err := flat.New(flat.WithDimension(testDim))
		require.NoError(t, err)

		images := make([]model.ImageRecord, len(vectors))
		for i, v := range vectors {
			_, err := idx.Add(v)
			require.NoError(t, err)
			key := fmt.Sprintf("images/%s/page_%04d.png", docID, i+1)
			images[i] = model.ImageRecord{
				Key:        key,
				Bucket:     "pages",
				LocalIndex: i,
				PageFile:   fmt.Sprintf("page_%04d.png", i+1),
			}
			require.NoError(t, e.images.Put(context.Background(), key, []byte("png:"+key), "image/png"))
		}

		_, err = agg.Append(&aggregate.DocumentIndex{
			Index: idx,
			Meta:  model.DocumentMeta{DocumentID: docID, OwnerID: "owner-1", Images: images},
		})
		require.NoError(t, err)
	}

	require.NoError(t, e.store.PublishAggregate(context.Background(), keys, agg))
}

func sortedKeys(m map[string][][]float32) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fixedQuery(v []float32) func(ctx context.Context, text string, mode embedding.Mode) ([]float32, error) {
	return func(context.Context, string, embedding.Mode) ([]float32, error) {
		return v, nil
	}
}

func TestSearch(t *testing.T) {
	t.Run("returns index not found for an empty scope", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.service.Search(context.Background(), Request{SessionID: "sess-1", Text: "q", TopK: 5})
		require.ErrorIs(t, err, ErrIndexNotFound)

		_, err = env.service.Search(context.Background(), Request{Text: "q", TopK: 5})
		require.ErrorIs(t, err, ErrIndexNotFound)
	})

	t.Run("rejects non-positive top k", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.service.Search(context.Background(), Request{Text: "q", TopK: 0})
		require.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("rejects a query with neither text nor image", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.service.Search(context.Background(), Request{TopK: 5})
		require.Error(t, err)
	})

	t.Run("resolves hits to document pages nearest first", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}, {0, 1, 0, 0}},
			"doc-b": {{0.9, 0.1, 0, 0}, {0, 0, 0, 1}},
		})
		env.embedder.TextFn = fixedQuery([]float32{1, 0, 0, 0})

		result, err := env.service.Search(context.Background(), Request{Text: "where are the totals", TopK: 3})
		require.NoError(t, err)
		require.Equal(t, 3, result.TotalResults)
		require.Len(t, result.Sources, 3)

		require.Equal(t, "doc-a", result.Sources[0].DocumentID)
		require.Equal(t, 1, result.Sources[0].PageNumber)
		require.Equal(t, "doc-b", result.Sources[1].DocumentID)

		for i := 1; i < len(result.Sources); i++ {
			require.GreaterOrEqual(t, result.Sources[i].Distance, result.Sources[i-1].Distance)
		}
		for _, src := range result.Sources {
			require.GreaterOrEqual(t, src.Distance, float32(0))
		}

		require.Equal(t, "The totals are on page 2.", result.Answer)
		require.Equal(t, "where are the totals", env.answerer.lastQuery)
	})

	t.Run("clamps top k to the index size", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}, {0, 1, 0, 0}},
		})
		env.embedder.TextFn = fixedQuery([]float32{1, 0, 0, 0})

		result, err := env.service.Search(context.Background(), Request{Text: "q", TopK: 5})
		require.NoError(t, err)
		require.Len(t, result.Sources, 2)
	})

	t.Run("session scope is isolated from master", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-master": {{1, 0, 0, 0}},
		})
		env.publishAggregate(t, aggregate.SessionKeys(testPrefix, "sess-1"), map[string][][]float32{
			"doc-session": {{1, 0, 0, 0}},
		})
		env.embedder.TextFn = fixedQuery([]float32{1, 0, 0, 0})

		result, err := env.service.Search(context.Background(), Request{SessionID: "sess-1", Text: "q", TopK: 5})
		require.NoError(t, err)
		require.Len(t, result.Sources, 1)
		require.Equal(t, "doc-session", result.Sources[0].DocumentID)
	})

	t.Run("rejects a query embedding of the wrong dimension", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}},
		})
		env.embedder.TextFn = fixedQuery([]float32{1, 0})

		_, err := env.service.Search(context.Background(), Request{Text: "q", TopK: 1})

		var dimErr *embedding.ErrDimensionMismatch
		require.ErrorAs(t, err, &dimErr)
		require.Equal(t, testDim, dimErr.Expected)
	})

	t.Run("empty index yields the zero-results fallback", func(t *testing.T) {
		env := newTestEnv(t)
		empty, err := aggregate.New(testDim)
		require.NoError(t, err)
		require.NoError(t, env.store.PublishAggregate(context.Background(), aggregate.MasterKeys(testPrefix), empty))
		env.embedder.TextFn = fixedQuery([]float32{1, 0, 0, 0})

		result, err := env.service.Search(context.Background(), Request{Text: "q", TopK: 5})
		require.NoError(t, err)
		require.Empty(t, result.Sources)
		require.Equal(t, "No relevant images found to answer your query.", result.Answer)
	})

	t.Run("answer failure degrades to the fallback text", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}, {0, 1, 0, 0}},
		})
		env.embedder.TextFn = fixedQuery([]float32{1, 0, 0, 0})
		env.answerer.err = answer.ErrService

		result, err := env.service.Search(context.Background(), Request{Text: "budget 2023", TopK: 5})
		require.NoError(t, err)
		require.Len(t, result.Sources, 2)
		require.Equal(t, answer.Fallback("budget 2023", 2), result.Answer)
	})

	t.Run("missing page images degrade to the fallback text", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}},
		})
		env.embedder.TextFn = fixedQuery([]float32{1, 0, 0, 0})
		require.NoError(t, env.images.Delete(context.Background(), "images/doc-a/page_0001.png"))

		result, err := env.service.Search(context.Background(), Request{Text: "q", TopK: 1})
		require.NoError(t, err)
		require.Len(t, result.Sources, 1)
		require.Equal(t, answer.Fallback("q", 1), result.Answer)
	})

	t.Run("hands at most three images to the answer backend", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}, {0.9, 0, 0, 0}, {0.8, 0, 0, 0}, {0.7, 0, 0, 0}, {0.6, 0, 0, 0}},
		})
		env.embedder.TextFn = fixedQuery([]float32{1, 0, 0, 0})

		result, err := env.service.Search(context.Background(), Request{Text: "q", TopK: 5})
		require.NoError(t, err)
		require.Len(t, result.Sources, 5)
		require.Len(t, env.answerer.gotImages, 3)
	})

	t.Run("embedding failure is surfaced", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}},
		})
		env.embedder.TextFn = func(context.Context, string, embedding.Mode) ([]float32, error) {
			return nil, embedding.ErrService
		}

		_, err := env.service.Search(context.Background(), Request{Text: "q", TopK: 1})
		require.ErrorIs(t, err, embedding.ErrService)
	})

	t.Run("image query embeds in image mode", func(t *testing.T) {
		env := newTestEnv(t)
		env.publishAggregate(t, aggregate.MasterKeys(testPrefix), map[string][][]float32{
			"doc-a": {{1, 0, 0, 0}},
		})

		var gotImage []byte
		env.embedder.ImageFn = func(_ context.Context, image []byte, _ string) ([]float32, error) {
			gotImage = image
			return []float32{1, 0, 0, 0}, nil
		}

		result, err := env.service.Search(context.Background(), Request{Image: []byte{0x89, 0x50}, TopK: 1})
		require.NoError(t, err)
		require.Len(t, result.Sources, 1)
		require.Equal(t, []byte{0x89, 0x50}, gotImage)
	})
}
