package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/leaderboard"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/query"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/logger"
)

// Querier is the read facade the handlers serve from. *query.Facade implements it.
type Querier interface {
	Leaderboard(ctx context.Context, windowHours int, horizon string, limit, offset int) (*query.Page, error)
	AccountSummary(ctx context.Context, account string) (*query.AccountSummary, error)
	AccountSignals(ctx context.Context, account, horizon string) (*query.AccountSignals, error)
	Health(ctx context.Context) leaderboard.Health
}

// LeaderboardHandler handles leaderboard and account endpoints
type LeaderboardHandler struct {
	facade         Querier
	defaultWindow  time.Duration
	defaultHorizon string
	logger         *logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
// defaultWindow and defaultHorizon fill in omitted query parameters.
func NewLeaderboardHandler(facade Querier, defaultWindow time.Duration, defaultHorizon string, log *logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		facade:         facade,
		defaultWindow:  defaultWindow,
		defaultHorizon: defaultHorizon,
		logger:         log,
	}
}

// GetLeaderboard returns one page of a ranking
// GET /api/leaderboard?window_hours=168&horizon=24h&limit=50&offset=0
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	windowHours, err := intParam(q.Get("window_hours"), int(h.defaultWindow/time.Hour))
	if err != nil {
		respondError(w, http.StatusBadRequest, "window_hours must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	horizon := q.Get("horizon")
	if horizon == "" {
		horizon = h.defaultHorizon
	}

	page, err := h.facade.Leaderboard(r.Context(), windowHours, horizon, limit, offset)
	if err != nil {
		h.fail(w, err, "leaderboard")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// GetAccountSummary returns an account's standing per horizon
// GET /api/accounts/{account}/summary
func (h *LeaderboardHandler) GetAccountSummary(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]

	summary, err := h.facade.AccountSummary(r.Context(), account)
	if err != nil {
		h.fail(w, err, "account summary")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetAccountSignals returns an account's return records
// GET /api/accounts/{account}/signals?horizon=24h
func (h *LeaderboardHandler) GetAccountSignals(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	horizon := r.URL.Query().Get("horizon")
	if horizon == "" {
		horizon = h.defaultHorizon
	}

	out, err := h.facade.AccountSignals(r.Context(), account, horizon)
	if err != nil {
		h.fail(w, err, "account signals")
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// GetHealth returns cache freshness
// GET /health
func (h *LeaderboardHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	health := h.facade.Health(r.Context())

	status := "ok"
	if health.TotalKeys > 0 && health.FreshKeys == 0 {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":                  status,
		"service":                 "leaderboard",
		"fresh_keys":              health.FreshKeys,
		"total_keys":              health.TotalKeys,
		"stalest_key_age_seconds": health.StalestKeyAgeSeconds,
		"keys":                    health.Keys,
	})
}

func (h *LeaderboardHandler) fail(w http.ResponseWriter, err error, op string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("op", op).Error("Query failed")
	} else {
		h.logger.WithError(err).WithField("op", op).Debug("Query rejected")
	}
	respondError(w, status, err.Error())
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return v, nil
}
