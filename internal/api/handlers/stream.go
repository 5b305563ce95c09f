package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/query"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/logger"
)

const (
	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	streamDefaultLimit = 20
)

// StreamSource validates keys and serves the first page. *query.Facade implements it.
type StreamSource interface {
	Key(windowHours int, horizon string) (contracts.LeaderboardKey, error)
	Leaderboard(ctx context.Context, windowHours int, horizon string, limit, offset int) (*query.Page, error)
}

// Subscriber is the slice of *stream.Hub the handler uses.
type Subscriber interface {
	Subscribe(key contracts.LeaderboardKey) (<-chan *contracts.LeaderboardSnapshot, func())
}

// StreamHandler pushes the top of a leaderboard over a websocket on every publish
type StreamHandler struct {
	source         StreamSource
	hub            Subscriber
	upgrader       websocket.Upgrader
	defaultWindow  time.Duration
	defaultHorizon string
	logger         *logger.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(source StreamSource, hub Subscriber, defaultWindow time.Duration, defaultHorizon string, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		source: source,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		defaultWindow:  defaultWindow,
		defaultHorizon: defaultHorizon,
		logger:         log,
	}
}

// StreamLeaderboard upgrades to a websocket and sends a page per published snapshot
// GET /ws/leaderboard?window_hours=168&horizon=24h&limit=20
func (h *StreamHandler) StreamLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	windowHours, err := intParam(q.Get("window_hours"), int(h.defaultWindow/time.Hour))
	if err != nil {
		respondError(w, http.StatusBadRequest, "window_hours must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"), streamDefaultLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	horizon := q.Get("horizon")
	if horizon == "" {
		horizon = h.defaultHorizon
	}

	key, err := h.source.Key(windowHours, horizon)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	// Subscribe before the first read so no publish falls in between
	updates, cancel := h.hub.Subscribe(key)
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithField("key", key.String())
	log.Debug("Stream opened")

	closed := h.readLoop(conn)

	var lastGen uint64
	page, err := h.source.Leaderboard(r.Context(), windowHours, horizon, limit, 0)
	switch {
	case err == nil:
		if err := writePage(conn, page); err != nil {
			return
		}
		lastGen = page.Generation
	case errors.Is(err, contracts.ErrNotYetAvailable):
		// first publish will follow
	default:
		log.WithError(err).Warn("Initial stream page failed")
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			log.Debug("Stream closed by client")
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Generation <= lastGen {
				continue
			}
			if err := writePage(conn, query.NewPage(snap, limit, 0)); err != nil {
				log.WithError(err).Debug("Stream write failed")
				return
			}
			lastGen = snap.Generation
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames and closes the returned channel when the
// connection ends or pongs stop arriving.
func (h *StreamHandler) readLoop(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func writePage(conn *websocket.Conn, page *query.Page) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(page)
}
