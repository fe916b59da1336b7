package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req models.UploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.countUpload("rejected")
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := s.ingest.Process(r.Context(), &req)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			s.countUpload("rejected")
		} else {
			s.countUpload("error")
		}
		s.respondAppError(w, r, err)
		return
	}
	s.countUpload("accepted")
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	res, err := s.results.Get(r.Context(), documentID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconciler.Process(r.Context())
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) countUpload(result string) {
	if s.metrics != nil {
		s.metrics.UploadsTotal.WithLabelValues(result).Inc()
	}
}

// respondAppError maps err to a status code and a generic message. Server
// errors are logged with the full chain; clients never see it.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatusCode(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "path", r.URL.Path, "requestId", middleware.GetReqID(r.Context()))
	}
	respondError(w, code, apperr.PublicMessage(err))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// WriteError writes a JSON error body. Function entry points use it when the
// handler itself could not be built.
func WriteError(w http.ResponseWriter, status int, message string) {
	respondError(w, status, message)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()))
	})
}
