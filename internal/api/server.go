// Package api serves a running simulation over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/agentsim/internal/engine"
	"github.com/talgya/agentsim/internal/persistence"
)

const (
	maxStreamConns = 8
	streamBuffer   = 16
	writeTimeout   = 5 * time.Second
	pingInterval   = 15 * time.Second
)

// Server serves simulation state over HTTP. It is an engine.Renderer: the
// simulation goroutine pushes each tick's frame and series into it, and
// handlers only ever read those cached copies.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine // Optional; enables speed and stop control
	DB       *persistence.DB
	RunID    string
	Scenario string
	Port     int
	AdminKey string       // Bearer token for POST endpoints. Empty = POST disabled.
	Metrics  http.Handler // Served at /metrics when set

	mu     sync.RWMutex
	frame  *engine.Frame
	series map[string][]float64
	agents int

	subMu   sync.Mutex
	subs    map[uint64]chan []byte
	nextSub uint64

	streamConns atomic.Int32
	upgrader    websocket.Upgrader
	connects    *RateLimiter

	closeOnce sync.Once
	closing   chan struct{}
}

// NewServer creates a server observing sim. eng may be nil.
func NewServer(sim *engine.Simulation, eng *engine.Engine) *Server {
	return &Server{
		Sim:    sim,
		Eng:    eng,
		series: map[string][]float64{},
		subs:   make(map[uint64]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		connects: NewRateLimiter(30, time.Minute),
		closing:  make(chan struct{}),
	}
}

// Render implements engine.Renderer. It runs on the simulation goroutine.
func (s *Server) Render(f engine.Frame) error {
	series := engine.CollectSeries(s.Sim)
	agents := s.Sim.Len()

	s.mu.Lock()
	s.frame = &f
	s.series = series
	s.agents = agents
	s.mu.Unlock()

	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.broadcast(b)
	return nil
}

// broadcast hands b to every stream subscriber. Slow subscribers miss frames
// rather than stall the simulation.
func (s *Server) broadcast(b []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

func (s *Server) subscribe() (uint64, <-chan []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	ch := make(chan []byte, streamBuffer)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

func (s *Server) unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subs, id)
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/frame", s.handleFrame)
	mux.HandleFunc("/api/v1/series", s.handleSeries)
	mux.HandleFunc("/api/v1/transactions", s.handleTransactions)
	mux.HandleFunc("/api/v1/stream", RateLimitMiddleware(s.connects, s.handleStream))
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/stop", s.adminOnly(s.handleStop))

	return corsMiddleware(mux)
}

// Start serves the API in a goroutine until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "metrics", s.Metrics != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown", "error", err)
		}
	}()
}

// Close ends every open stream.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set AGENTSIM_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("AGENTSIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no AGENTSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	tick := 0
	if s.frame != nil {
		tick = s.frame.Tick + 1
	}
	status := map[string]any{
		"scenario": s.Scenario,
		"run":      s.RunID,
		"seed":     s.Sim.Seed(),
		"time":     tick,
		"agents":   s.agents,
		"streams":  s.streamConns.Load(),
	}
	s.mu.RUnlock()

	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	f := s.frame
	s.mu.RUnlock()
	if f == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	writeJSON(w, f)
}

// handleSeries returns tracker series. ?prefix= filters by key prefix and
// ?last=N keeps only the N most recent points of each series.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	last := 0
	if v := r.URL.Query().Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "last must be a non-negative integer", http.StatusBadRequest)
			return
		}
		last = n
	}

	s.mu.RLock()
	out := make(map[string][]float64, len(s.series))
	for k, v := range s.series {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if last > 0 && len(v) > last {
			v = v[len(v)-last:]
		}
		out[k] = v
	}
	s.mu.RUnlock()

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeJSON(w, map[string]any{"keys": keys, "series": out})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil || s.RunID == "" {
		http.Error(w, "no transaction archive for this run", http.StatusNotFound)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	txs, err := s.DB.Transactions(s.RunID, limit)
	if err != nil {
		slog.Error("transactions query failed", "run", s.RunID, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, txs)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "simulation is not paced", http.StatusNotFound)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Eng == nil {
		http.Error(w, "simulation is not paced", http.StatusNotFound)
		return
	}
	s.Eng.Stop()
	slog.Info("stop requested over API")
	writeJSON(w, map[string]bool{"stopping": true})
}

// handleStream upgrades to a websocket and pushes every frame as JSON.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if current := s.streamConns.Add(1); current > maxStreamConns {
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

	id, ch := s.subscribe()
	defer s.unsubscribe(id)
	slog.Info("stream client connected", "sub_id", id, "remote", r.RemoteAddr)

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msgType int, b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(msgType, b) == nil
	}

	s.mu.RLock()
	f := s.frame
	s.mu.RUnlock()
	if f != nil {
		b, _ := json.Marshal(f)
		if !send(websocket.TextMessage, b) {
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case b := <-ch:
			if !send(websocket.TextMessage, b) {
				return
			}
		case <-ping.C:
			if !send(websocket.PingMessage, nil) {
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", id)
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
