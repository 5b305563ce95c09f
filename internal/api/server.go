package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/config"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/logger"
)

// Server hosts the leaderboard router built by NewRouter.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates the API server. WriteTimeout covers the longest a request may wait
// on a cold key. Websocket streams set their own write deadlines.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: cfg.Leaderboard.ColdStartTimeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: log,
		config: cfg,
	}
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port":           s.config.Port,
		"env":            s.config.Env,
		"metrics":        s.config.MetricsEnabled,
		"rate_limit":     s.config.APIRateLimit,
		"default_window": s.config.Leaderboard.DefaultWindow.String(),
	}).Info("Starting leaderboard API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
// Open streams are hijacked connections and close when the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down leaderboard API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
