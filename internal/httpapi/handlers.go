package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/apperr"
	"watchwise/internal/auth"
	"watchwise/internal/conversation"
	"watchwise/internal/recommend"
	"watchwise/internal/storage"
)

const maxBodyBytes = 1 << 20

type ratingRequest struct {
	Rating *int `json:"rating"`
}

type watchedRequest struct {
	Watched *bool `json:"watched"`
	Liked   *bool `json:"liked,omitempty"`
}

type ingestRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Rating      int    `json:"rating"`
}

type historyResponse struct {
	Items []storage.RatedItem `json:"items"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req conversation.StepRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.recommend.Step(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommend.Request
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.recommend.Recommend(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Rating == nil {
		writeError(w, r, apperr.Invalid("rating", "is required"))
		return
	}
	item, err := s.feedback.Rate(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), *req.Rating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleWatched(w http.ResponseWriter, r *http.Request) {
	var req watchedRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Watched == nil {
		writeError(w, r, apperr.Invalid("watched", "is required"))
		return
	}
	item, err := s.feedback.MarkWatched(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), *req.Watched, req.Liked)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.feedback.Ingest(r.Context(), auth.UserID(r.Context()), req.Title, req.Description, req.Rating); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, apperr.Invalid("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	items, err := s.recommend.History(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Items: items})
}

// decode reads a JSON body into v and answers 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return true
	}
	msg := "invalid JSON body"
	if errors.Is(err, io.EOF) {
		msg = "request body is required"
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		msg = "request body too large"
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
	return false
}

// writeError maps err to a status and a client-safe body. The wrapped
// detail is logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := apperr.Status(err)
	resp := errorResponse{Error: msg}
	var fe *apperr.FieldError
	if errors.As(err, &fe) {
		resp.Fields = fe.Fields
	}
	entry := log.WithFields(log.Fields{"path": r.URL.Path, "status": status, "user_id": auth.UserID(r.Context())}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ failed to write response: %v", err)
	}
}
