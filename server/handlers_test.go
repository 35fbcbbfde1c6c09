package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/blobstore"
	"github.com/hupe1980/pagevec/embedding"
	"github.com/hupe1980/pagevec/lease"
	"github.com/hupe1980/pagevec/search"
	"github.com/hupe1980/pagevec/session"
	"github.com/hupe1980/pagevec/writer"
)

const (
	testDim    = 4
	testPrefix = "vectors"
)

type stubAnswerer struct{}

func (stubAnswerer) Answer(context.Context, string, [][]byte) (string, error) {
	return "Generated answer.", nil
}

func newTestHandler(t *testing.T) (http.Handler, *embedding.Mock) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	indexes := blobstore.NewMemoryStore()
	images := blobstore.NewMemoryStore()
	store := aggregate.NewStore(indexes)
	embedder := &embedding.Mock{Dim: testDim}

	searcher := search.New(store, images, embedder, stubAnswerer{}, testPrefix, search.WithLogger(logger))
	w := writer.New(store, testPrefix, testDim, writer.WithLogger(logger))
	sessions := session.New(store, lease.NewMemoryLocker(), testPrefix, testDim, session.WithLogger(logger))

	srv := New(searcher, w, sessions, store, WithLogger(logger))
	return srv.Routes(), embedder
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func ingestBody(docID string, vectors [][]float32) ingestRequest {
	pages := make([]ingestPage, len(vectors))
	for i, v := range vectors {
		pages[i] = ingestPage{
			Vector:     v,
			Bucket:     "pages",
			Key:        fmt.Sprintf("images/%s/page_%04d.png", docID, i+1),
			PageNumber: i + 1,
		}
	}
	return ingestRequest{DocumentID: docID, OwnerID: "owner-1", Pages: pages}
}

func TestHandleHealth(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleIngest(t *testing.T) {
	t.Run("publishes and merges a document", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		rec := postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-a", [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp ingestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "doc-a", resp.DocumentID)
		require.NotEmpty(t, resp.IndexID)
		require.Equal(t, 2, resp.VectorCount)
		require.Equal(t, 2, resp.TotalVectors)

		rec = postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-b", [][]float32{{0, 0, 1, 0}}))
		require.Equal(t, http.StatusCreated, rec.Code)

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 3, resp.TotalVectors)
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		rec := postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-a", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a mismatched vector dimension", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		rec := postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-a", [][]float32{{1, 0}}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a duplicate document id with conflict", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		rec := postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-a", [][]float32{{1, 0, 0, 0}}))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-a", [][]float32{{1, 0, 0, 0}}))
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/documents",
			bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSearch(t *testing.T) {
	t.Run("returns not found for an empty session", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		rec := postJSON(t, handler, "/api/v1/search",
			searchRequest{SessionID: "sess-1", Query: "anything"})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns resolved sources after ingest", func(t *testing.T) {
		handler, embedder := newTestHandler(t)
		embedder.TextFn = func(context.Context, string, embedding.Mode) ([]float32, error) {
			return []float32{1, 0, 0, 0}, nil
		}

		rec := postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-a", [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = postJSON(t, handler, "/api/v1/search",
			searchRequest{SessionID: "sess-1", Query: "where are the totals", TopK: 5})
		require.Equal(t, http.StatusOK, rec.Code)

		var result search.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		require.Equal(t, 2, result.TotalResults)
		require.Equal(t, "doc-a", result.Sources[0].DocumentID)
		require.Equal(t, 1, result.Sources[0].PageNumber)
		require.NotEmpty(t, result.Answer)
	})

	t.Run("applies the default top k", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		rec := postJSON(t, handler, "/api/v1/sessions/sess-1/documents",
			ingestBody("doc-a", [][]float32{{1, 0, 0, 0}}))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = postJSON(t, handler, "/api/v1/search",
			searchRequest{SessionID: "sess-1", Query: "q"})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search",
			bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
