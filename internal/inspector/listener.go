package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tjfontaine/assetd/internal/core/domain"
)

// Journal is the read side of the compilation journal.
type Journal interface {
	Get(ctx context.Context, id string) (*domain.CompilationRecord, error)
	List(ctx context.Context, opts domain.JournalListOptions) ([]*domain.CompilationRecord, error)
}

const maxListLimit = 1000

// Listener serves the debug endpoint: the event websocket at the endpoint's
// session path, the compilation journal, runtime stats and pprof.
type Listener struct {
	endpoint  Endpoint
	hub       *Hub
	journal   Journal
	logger    *slog.Logger
	router    *chi.Mux
	startTime time.Time

	server *http.Server
	ln     net.Listener
}

// NewListener wires the debug routes. journal may be nil when the journal
// is disabled.
func NewListener(endpoint Endpoint, hub *Hub, journal Journal, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		endpoint:  endpoint,
		hub:       hub,
		journal:   journal,
		logger:    logger,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	l.routes()
	return l
}

func (l *Listener) routes() {
	l.router.Use(middleware.Recoverer)

	l.router.Get(l.endpoint.Path, l.hub.ServeHTTP)
	l.router.Get("/compilations", l.handleList)
	l.router.Get("/compilations/{id}", l.handleGet)
	l.router.Get("/stats", l.handleStats)
	l.router.Mount("/debug", middleware.Profiler())
}

func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.router.ServeHTTP(w, r)
}

// Endpoint returns the descriptor the listener serves.
func (l *Listener) Endpoint() Endpoint {
	return l.endpoint
}

// Start binds the endpoint address and serves in the background.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.endpoint.Addr())
	if err != nil {
		return fmt.Errorf("debug listener: %w", err)
	}
	l.Serve(ln)
	return nil
}

// Serve serves on an already bound listener in the background. Callers that
// need port 0 resolved before building the endpoint bind first and hand the
// listener over here.
func (l *Listener) Serve(ln net.Listener) {
	l.ln = ln
	l.server = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("debug listener stopped", slog.String("error", err.Error()))
		}
	}()

	l.logger.Info("debug listener started", slog.String("url", l.endpoint.URL))
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Shutdown closes the hub, which ends every websocket stream, then stops
// the HTTP server.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.hub.Close()
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown(ctx)
}

func (l *Listener) handleList(w http.ResponseWriter, r *http.Request) {
	if l.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	opts := domain.JournalListOptions{Asset: r.URL.Query().Get("asset")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = min(n, maxListLimit)
	}

	records, err := l.journal.List(r.Context(), opts)
	if err != nil {
		l.logger.Error("failed to list compilations", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list compilations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   records,
	})
}

func (l *Listener) handleGet(w http.ResponseWriter, r *http.Request) {
	if l.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	rec, err := l.journal.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "compilation not found")
		return
	}
	if err != nil {
		l.logger.Error("failed to get compilation", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get compilation")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Clients      int         `json:"clients"`
	Memory       MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (l *Listener) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:       time.Since(l.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Clients:      l.hub.Clients(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": msg}})
}
