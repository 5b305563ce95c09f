package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/api/handlers"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/observability"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/logger"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/redis"
)

// RouterConfig toggles optional routes and middleware.
type RouterConfig struct {
	// Metrics mounts /metrics.
	Metrics bool

	// Limiter with RateLimit > 0 caps /api requests per client IP per minute.
	Limiter   *redis.RateLimiter
	RateLimit int

	// Stream mounts /ws/leaderboard when set.
	Stream *handlers.StreamHandler
}

// NewRouter creates and configures the HTTP router
func NewRouter(h *handlers.LeaderboardHandler, log *logger.Logger, rc RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.GetHealth).Methods("GET")

	if rc.Metrics {
		r.Handle("/metrics", observability.Handler()).Methods("GET")
	}

	if rc.Stream != nil {
		r.HandleFunc("/ws/leaderboard", rc.Stream.StreamLeaderboard).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	if rc.Limiter != nil && rc.RateLimit > 0 {
		api.Use(rateLimitMiddleware(rc.Limiter, rc.RateLimit, log))
	}

	// Leaderboard endpoints
	api.HandleFunc("/leaderboard", h.GetLeaderboard).Methods("GET")
	api.HandleFunc("/accounts/{account}/summary", h.GetAccountSummary).Methods("GET")
	api.HandleFunc("/accounts/{account}/signals", h.GetAccountSignals).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the logging middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// loggingMiddleware logs HTTP requests and records their latency
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			observability.RecordHTTPRequest(route, strconv.Itoa(rec.status), time.Since(start))

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware rejects clients over perMinute requests with 429.
// Requests pass when the limiter itself fails.
func rateLimitMiddleware(limiter *redis.RateLimiter, perMinute int, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, err := limiter.Allow(r.Context(), redis.RateLimitConfig{
				Key:    "api:" + clientIP(r),
				Limit:  perMinute,
				Window: time.Minute,
			})
			if err != nil {
				log.WithError(err).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
