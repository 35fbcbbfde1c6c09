package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/blobstore"
	"github.com/hupe1980/pagevec/index/flat"
	"github.com/hupe1980/pagevec/lease"
	"github.com/hupe1980/pagevec/model"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func testDocument(t *testing.T, docID, ownerID string, vectors int) *aggregate.DocumentIndex {
	t.Helper()

	idx, err := flat.New(flat.WithDimension(testDim))
	require.NoError(t, err)

	images := make([]model.ImageRecord, vectors)
	for i := 0; i < vectors; i++ {
		v := make([]float32, testDim)
		v[i%testDim] = float32(i + 1)
		_, err := idx.Add(v)
		require.NoError(t, err)

		images[i] = model.ImageRecord{
			Key:        fmt.Sprintf("private/%s/%s/page_%04d.png", ownerID, docID, i+1),
			Bucket:     "images",
			LocalIndex: i,
			PageFile:   fmt.Sprintf("page_%04d.png", i+1),
		}
	}

	return &aggregate.DocumentIndex{
		Index: idx,
		Meta:  model.DocumentMeta{DocumentID: docID, OwnerID: ownerID, Images: images},
	}
}

func newTestStore(blobs *blobstore.MemoryStore) (*Store, *aggregate.Store) {
	aggStore := aggregate.NewStore(blobs)
	s := New(aggStore, lease.NewMemoryLocker(), "private", testDim, WithLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))))
	return s, aggStore
}

func TestStore_MergeDocument_IntoEmptySession(t *testing.T) {
	ctx := context.Background()
	s, aggStore := newTestStore(blobstore.NewMemoryStore())

	result, err := s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-a", "u1", 3))
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalVectors)
	require.Equal(t, 3, result.PageCount)

	agg, err := aggStore.LoadAggregate(ctx, aggregate.SessionKeys("private", "sess-1"))
	require.NoError(t, err)
	require.Equal(t, 3, agg.Index.Count())

	// Offset is 0: global index equals local index for every record.
	for i, rec := range agg.Documents["doc-a"].Records {
		require.Equal(t, i, *rec.GlobalIndex)
	}
}

func TestStore_MergeDocument_Sequential(t *testing.T) {
	ctx := context.Background()
	s, aggStore := newTestStore(blobstore.NewMemoryStore())

	_, err := s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-a", "u1", 3))
	require.NoError(t, err)

	result, err := s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-b", "u2", 2))
	require.NoError(t, err)
	require.Equal(t, 5, result.TotalVectors)
	require.Equal(t, 2, result.PageCount)

	agg, err := aggStore.LoadAggregate(ctx, aggregate.SessionKeys("private", "sess-1"))
	require.NoError(t, err)
	require.Equal(t, 5, agg.Index.Count())
	require.NoError(t, agg.Validate())

	// doc-b continues where doc-a ended; doc-a is untouched.
	require.Equal(t, 3, *agg.Documents["doc-b"].Records[0].GlobalIndex)
	require.Equal(t, 4, *agg.Documents["doc-b"].Records[1].GlobalIndex)
	for i, rec := range agg.Documents["doc-a"].Records {
		require.Equal(t, i, *rec.GlobalIndex)
	}
}

func TestStore_MergeDocument_RejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(blobstore.NewMemoryStore())

	_, err := s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-a", "u1", 2))
	require.NoError(t, err)

	_, err = s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-a", "u1", 2))
	require.ErrorIs(t, err, ErrDocumentExists)
}

func TestStore_MergeDocument_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s, aggStore := newTestStore(blobstore.NewMemoryStore())

	_, err := s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-a", "u1", 2))
	require.NoError(t, err)
	_, err = s.MergeDocument(ctx, "sess-2", testDocument(t, "doc-a", "u1", 2))
	require.NoError(t, err)

	one, err := aggStore.LoadAggregate(ctx, aggregate.SessionKeys("private", "sess-1"))
	require.NoError(t, err)
	two, err := aggStore.LoadAggregate(ctx, aggregate.SessionKeys("private", "sess-2"))
	require.NoError(t, err)
	require.Equal(t, 2, one.Index.Count())
	require.Equal(t, 2, two.Index.Count())
}

func TestStore_MergeDocument_CorruptedSessionIsTerminal(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s, _ := newTestStore(blobs)

	_, err := s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-a", "u1", 2))
	require.NoError(t, err)

	// Corrupt the sidecar half of the pair.
	keys := aggregate.SessionKeys("private", "sess-1")
	require.NoError(t, blobs.Put(ctx, keys.MetaKey, []byte("{"), "application/json"))

	_, err = s.MergeDocument(ctx, "sess-1", testDocument(t, "doc-b", "u2", 2))
	require.ErrorIs(t, err, aggregate.ErrCorrupted)

	// The broken session was not overwritten with an empty one.
	data, err := blobs.Get(ctx, keys.MetaKey)
	require.NoError(t, err)
	require.Equal(t, []byte("{"), data)
}

func TestStore_MergeDocument_ConcurrentMergesKeepAllVectors(t *testing.T) {
	ctx := context.Background()
	s, aggStore := newTestStore(blobstore.NewMemoryStore())

	const docs = 8
	var wg sync.WaitGroup
	for i := 0; i < docs; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc := testDocument(t, fmt.Sprintf("doc-%d", n), "u1", 2)
			_, err := s.MergeDocument(ctx, "sess-1", doc)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	agg, err := aggStore.LoadAggregate(ctx, aggregate.SessionKeys("private", "sess-1"))
	require.NoError(t, err)
	require.Equal(t, docs*2, agg.Index.Count())
	require.Len(t, agg.Documents, docs)
	require.NoError(t, agg.Validate())
}
