// Package api serves read-only views of a running simulation over HTTP.
// Handlers only ever read the last published status, never live state.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/swarm-economy/internal/engine"
	"github.com/talgya/swarm-economy/internal/persistence"
)

const (
	maxStreamConns = 4
	streamInterval = time.Second
	writeTimeout   = 5 * time.Second
)

// StatusSource provides the last published status.
type StatusSource interface {
	Published() *engine.Status
}

// Server serves the simulation status over HTTP.
type Server struct {
	Sim  StatusSource
	DB   *persistence.DB // Optional run archive
	Port int

	upgrader    websocket.Upgrader
	streamConns atomic.Int32
}

// New creates a server for sim on port. db may be nil.
func New(sim StatusSource, db *persistence.DB, port int) *Server {
	return &Server{
		Sim:  sim,
		DB:   db,
		Port: port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler(ctx context.Context) http.Handler {
	streamLimiter := NewRateLimiter(ctx, 10, time.Minute)
	archiveLimiter := NewRateLimiter(ctx, 60, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/days", s.handleDays)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/economy", s.handleEconomy)
	mux.HandleFunc("GET /api/v1/runs", RateLimitMiddleware(archiveLimiter, s.handleRuns))
	mux.HandleFunc("GET /api/v1/runs/{id}", RateLimitMiddleware(archiveLimiter, s.handleRun))
	mux.HandleFunc("GET /api/v1/stream", RateLimitMiddleware(streamLimiter, s.handleStream))
	return mux
}

// Start serves the API until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	slog.Info("HTTP API starting", "addr", srv.Addr)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// published returns the current status or writes 503 when none exists yet.
func (s *Server) published(w http.ResponseWriter) *engine.Status {
	st := s.Sim.Published()
	if st == nil {
		http.Error(w, "simulation has not published a status yet", http.StatusServiceUnavailable)
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if st := s.published(w); st != nil {
		writeJSON(w, st)
	}
}

func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	st := s.published(w)
	if st == nil {
		return
	}
	days := st.DailySnapshots
	if days == nil {
		days = []engine.DailySnapshot{}
	}
	writeJSON(w, days)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	st := s.published(w)
	if st == nil {
		return
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var category engine.EventCategory
	filter := r.URL.Query().Get("category")
	if filter != "" {
		if err := category.UnmarshalText([]byte(filter)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	out := []engine.Event{}
	for i := len(st.Events) - 1; i >= 0 && len(out) < limit; i-- {
		e := st.Events[i]
		if filter != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	writeJSON(w, out)
}

func (s *Server) handleEconomy(w http.ResponseWriter, r *http.Request) {
	st := s.published(w)
	if st == nil {
		return
	}
	writeJSON(w, map[string]any{
		"multiplier": st.Multiplier,
		"history":    st.EconomyHistory,
		"rp_earned":  st.Stats.RPEarned,
		"rp_spent":   st.Stats.RPSpent,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run archive disabled", http.StatusNotFound)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	runs, err := s.DB.Runs(limit)
	if err != nil {
		slog.Error("list runs", "error", err)
		http.Error(w, "archive query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.RunRow{}
	}
	writeJSON(w, runs)
}

// runDetail is one archived run with its decoded counters.
type runDetail struct {
	persistence.RunRow
	Stats  engine.SimStats        `json:"stats"`
	Days   int                    `json:"days"`
	Events []persistence.EventRow `json:"recent_events"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run archive disabled", http.StatusNotFound)
		return
	}
	limit, err := queryInt(r, "events", 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	run, err := s.DB.Run(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load run", "run_id", id, "error", err)
		http.Error(w, "archive query failed", http.StatusInternalServerError)
		return
	}

	detail := runDetail{RunRow: run}
	if detail.Stats, err = run.Stats(); err == nil {
		detail.Days, err = s.DB.DayCount(id)
	}
	if err == nil {
		detail.Events, err = s.DB.RecentEvents(id, limit)
	}
	if err != nil {
		slog.Error("load run detail", "run_id", id, "error", err)
		http.Error(w, "archive query failed", http.StatusInternalServerError)
		return
	}
	if detail.Events == nil {
		detail.Events = []persistence.EventRow{}
	}
	writeJSON(w, detail)
}

// handleStream pushes the status over a websocket whenever a newer one is
// published.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.streamConns.Add(1) > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping control messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var lastTick uint64
	sent := false
	for {
		if st := s.Sim.Published(); st != nil && (!sent || st.Tick != lastTick) {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(st); err != nil {
				slog.Debug("stream write failed", "error", err)
				return
			}
			lastTick, sent = st.Tick, true
		}

		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
