package asset

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tjfontaine/assetd/internal/core/domain"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/pipeline"
	"github.com/tjfontaine/assetd/internal/rendercontext"
	"github.com/tjfontaine/assetd/internal/server"
)

// DegradedHeader lists the stages that fell back to pass-through.
const DegradedHeader = "X-Asset-Degraded"

// Route binds a URL pattern to the template compiled for it.
type Route struct {
	Kind    ports.AssetKind
	Pattern string
	Source  string
}

// Handler serves one compiled asset route.
type Handler struct {
	route    Route
	compiler *Compiler
	builder  *rendercontext.Builder
	journal  ports.JournalStore
	next     http.Handler
	logger   *slog.Logger
}

// HandlerConfig configures a Handler. Journal may be nil. Next receives the
// request when the source cannot be read; it defaults to http.NotFoundHandler.
type HandlerConfig struct {
	Route    Route
	Compiler *Compiler
	Builder  *rendercontext.Builder
	Journal  ports.JournalStore
	Next     http.Handler
	Logger   *slog.Logger
}

// NewHandler creates a route handler.
func NewHandler(cfg HandlerConfig) *Handler {
	next := cfg.Next
	if next == nil {
		next = http.NotFoundHandler()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		route:    cfg.Route,
		compiler: cfg.Compiler,
		builder:  cfg.Builder,
		journal:  cfg.Journal,
		next:     next,
		logger:   logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	text, err := os.ReadFile(h.route.Source)
	if err != nil {
		server.LoggerFrom(r.Context(), h.logger).Debug("asset source unreadable, falling through",
			slog.String("source", h.route.Source),
			slog.String("error", err.Error()),
		)
		h.next.ServeHTTP(w, r)
		return
	}

	rc := h.builder.Build(r)
	settings := h.compiler.Settings()

	logger := server.LoggerFrom(r.Context(), h.logger).With(slog.String("source", h.route.Source))
	ctx := pipeline.WithLogger(r.Context(), logger)
	result := h.compiler.run(ctx, settings, h.route.Kind, h.route.Source, string(text), rc)

	degraded := result.DegradedStages()
	server.AddLogField(r.Context(), "asset", string(h.route.Kind))
	server.AddLogField(r.Context(), "degraded", strings.Join(degraded, ","))

	header := w.Header()
	header.Set("Content-Type", result.ContentType)
	header.Set("Cache-Control", "no-cache")
	if len(degraded) > 0 && settings.ReportDegradation {
		header.Set(DegradedHeader, strings.Join(degraded, ","))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(result.Text)); err != nil {
		server.AddError(r.Context(), err)
	}

	h.record(r, result, time.Since(start))
}

func (h *Handler) record(r *http.Request, result *ports.PipelineResult, elapsed time.Duration) {
	if h.journal == nil {
		return
	}
	rec := &domain.CompilationRecord{
		RequestID:   server.GetRequestID(r.Context()),
		Asset:       string(h.route.Kind),
		Route:       r.URL.Path,
		Source:      h.route.Source,
		Degraded:    result.Degraded(),
		Stages:      result.Outcomes,
		OutputBytes: len(result.Text),
		Duration:    elapsed,
	}
	if err := h.journal.Save(context.WithoutCancel(r.Context()), rec); err != nil {
		h.logger.Warn("failed to record compilation",
			slog.String("source", h.route.Source),
			slog.String("error", err.Error()),
		)
	}
}
