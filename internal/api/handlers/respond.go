package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidHorizon),
		errors.Is(err, contracts.ErrInvalidWindow),
		errors.Is(err, contracts.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrNotYetAvailable),
		errors.Is(err, contracts.ErrStoreUnavailable),
		errors.Is(err, contracts.ErrRefreshTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
