package app

import (
	"errors"
	"log"
	"net/http"

	"toolcatalog/internal/auth"
)

// forbid writes a 403 Forbidden response and logs the denial.
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action string) {
	log.Printf("app: request %s: denied %s %s to %s (%s needs %s)",
		RequestIDFrom(r.Context()), r.Method, r.URL.Path, session.Subject, session.Role, action)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	session, err := s.service.SessionFromToken(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
		Role    string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	issued, err := s.service.IssueToken(r.Context(), r.Header.Get("X-Admin-Key"), body.Subject, body.Role)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}
