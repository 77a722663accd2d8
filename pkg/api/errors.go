package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/logging"
	"github.com/Sternrassler/bizcache/pkg/repository"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.responder.JSON(w, r, status, errorResponse{
		Error:     msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// fail maps err to a status. Unexpected errors are logged and reported
// without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isNotFound(err):
		s.writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrInvalid):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, cache.ErrUnavailable):
		s.writeError(w, r, http.StatusServiceUnavailable, "cache unavailable")
	default:
		logging.FromContext(r.Context()).Error().Err(err).Msg("Request failed")
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
