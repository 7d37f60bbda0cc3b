package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/apperr"
	"github.com/lernspiel/arena/internal/auth"
	"github.com/lernspiel/arena/internal/models"
)

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// actorFromRequest authenticates the auth_token cookie and returns the actor.
func actorFromRequest(r *http.Request) (models.Actor, bool) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		return models.Actor{}, false
	}
	actor, err := auth.AuthenticateJWT(token)
	if err != nil {
		return models.Actor{}, false
	}
	return actor, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a manager error to a transport status plus a body carrying
// the error kind and a human-readable reason.
func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.AccessDenied, apperr.GuestsNotAllowed:
		status = http.StatusForbidden
	case apperr.NotJoinable, apperr.SessionLimitReached:
		status = http.StatusConflict
	case apperr.CapacityExceeded:
		status = http.StatusBadRequest
	case apperr.CodeGenerationExhausted, apperr.CapacityRejected:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
