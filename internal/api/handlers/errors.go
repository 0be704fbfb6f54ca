package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dom/social-backend/internal/domain"
	"go.uber.org/zap"
)

// writeError maps a service error to a status code. Credential failures all
// get the same body so callers cannot tell which check failed.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredential):
		logger.Info("credential rejected", zap.Error(err))
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUserExists):
		http.Error(w, "User already exists", http.StatusConflict)
	case errors.Is(err, domain.ErrTransientInfra):
		logger.Error("infrastructure unavailable", zap.Error(err))
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		logger.Error("request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
