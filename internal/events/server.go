// Package events serves working-copy-changed notifications over websockets.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sergeknystautas/hgrun/internal/history"
	"github.com/sergeknystautas/hgrun/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

// HistoryReader lists recent invocations. *history.Store satisfies it.
type HistoryReader interface {
	Recent(ctx context.Context, repo string, n int) ([]history.Entry, error)
}

// Server exposes /events, /history and /healthz.
type Server struct {
	broadcaster *notify.Broadcaster
	history     HistoryReader
	logger      *zap.Logger
	server      *http.Server
	upgrader    websocket.Upgrader
}

// New builds a server publishing b's events. hist may be nil.
func New(b *notify.Broadcaster, hist HistoryReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		broadcaster: b,
		history:     hist,
		logger:      logger.Named("events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     localOrigin,
		},
	}
}

// localOrigin accepts clients without an Origin header and browsers on
// loopback pages.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Router returns the HTTP router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Get("/events", s.handleEvents)
	r.Get("/history", s.handleHistory)
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.broadcaster.Subscribers(),
	})
}

type historyItem struct {
	ID         string    `json:"id"`
	Repo       string    `json:"repo"`
	Subcommand string    `json:"subcommand"`
	Args       []string  `json:"args"`
	ExitCode   int       `json:"exit_code"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history disabled"})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(r.Context(), r.URL.Query().Get("repo"), limit)
	if err != nil {
		s.logger.Warn("history query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"})
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			ID:         e.ID,
			Repo:       e.Repo,
			Subcommand: e.Subcommand,
			Args:       e.Args,
			ExitCode:   e.ExitCode,
			ErrorKind:  e.ErrorKind,
			DurationMs: e.Duration.Milliseconds(),
			StartedAt:  e.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// handleEvents streams notifications as JSON text frames. The optional
// repo query parameter limits the stream to one repository.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	// The read loop only services control frames and notices disconnects.
	done := make(chan struct{})
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

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	s.logger.Debug("subscriber connected", zap.String("remote", r.RemoteAddr), zap.String("repo", repo))
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if repo != "" && ev.Repo != repo {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
