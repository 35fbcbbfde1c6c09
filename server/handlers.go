package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/pagevec/index"
	"github.com/hupe1980/pagevec/model"
	"github.com/hupe1980/pagevec/search"
	"github.com/hupe1980/pagevec/session"
	"github.com/hupe1980/pagevec/writer"
)

const defaultTopK = 5

type searchRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Query     string `json:"query,omitempty"`
	// Image is a base64-encoded image query.
	Image            []byte `json:"image,omitempty"`
	ImageContentType string `json:"imageContentType,omitempty"`
	TopK             int    `json:"topK,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}

	result, err := s.searcher.Search(r.Context(), search.Request{
		SessionID:        req.SessionID,
		Text:             req.Query,
		Image:            req.Image,
		ImageContentType: req.ImageContentType,
		TopK:             req.TopK,
	})
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type ingestPage struct {
	Vector     []float32 `json:"vector"`
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	PageNumber int       `json:"pageNumber,omitempty"`
}

type ingestRequest struct {
	DocumentID string       `json:"documentId"`
	OwnerID    string       `json:"ownerId"`
	Pages      []ingestPage `json:"pages"`
}

type ingestResponse struct {
	DocumentID   string `json:"documentId"`
	IndexID      string `json:"indexId"`
	VectorCount  int    `json:"vectorCount"`
	TotalVectors int    `json:"totalVectors"`
}

// handleIngest publishes a standalone index for the document batch and
// merges it into the session named in the URL.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" || req.OwnerID == "" {
		s.respondError(w, http.StatusBadRequest, "documentId and ownerId are required")
		return
	}

	batch := model.VectorBatch{
		DocumentID: req.DocumentID,
		OwnerID:    req.OwnerID,
		Pages:      make([]model.PageVector, len(req.Pages)),
	}
	for i, page := range req.Pages {
		batch.Pages[i] = model.PageVector{
			Vector:     page.Vector,
			Location:   model.BlobLocation{Bucket: page.Bucket, Key: page.Key},
			PageNumber: page.PageNumber,
		}
	}

	result, err := s.writer.Write(r.Context(), batch)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	doc, err := s.store.LoadDocument(r.Context(), result.Keys)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	merged, err := s.sessions.MergeDocument(r.Context(), sessionID, doc)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, ingestResponse{
		DocumentID:   result.DocumentID,
		IndexID:      result.IndexID,
		VectorCount:  result.VectorCount,
		TotalVectors: merged.TotalVectors,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps domain errors to HTTP statuses. Expected conditions like
// "nothing indexed yet" must not surface as generic 500s.
func statusFor(err error) int {
	var dimErr *index.ErrDimensionMismatch

	switch {
	case errors.Is(err, search.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDocumentExists):
		return http.StatusConflict
	case errors.Is(err, writer.ErrEmptyBatch),
		errors.Is(err, index.ErrInvalidK),
		errors.As(err, &dimErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.opts.Logger.Error("encode response failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		s.opts.Logger.Error("request failed", "status", status, "error", message)
	}
	s.respondJSON(w, status, map[string]string{"error": message})
}
