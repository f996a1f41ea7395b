package api

import (
	"encoding/json"
	"net/http"
)

// Error classes reported in ErrorResponse.Error.
const (
	errValidation  = "ValidationError"
	errUnavailable = "ServiceUnavailable"
	errInternal    = "InternalServerError"
	errNotFound    = "NotFound"
	errMethod      = "MethodNotAllowed"
	errRateLimited = "RateLimitExceeded"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "status", status, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, class, detail string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:      class,
		Detail:     detail,
		StatusCode: status,
		Path:       r.URL.Path,
	})
}

func (s *Server) writeValidationError(w http.ResponseWriter, r *http.Request, err *requestError) {
	s.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:            errValidation,
		Detail:           "Request validation failed",
		StatusCode:       http.StatusUnprocessableEntity,
		Path:             r.URL.Path,
		ValidationErrors: err.fields,
	})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, errNotFound, "Not Found")
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errMethod, "Method Not Allowed")
}
