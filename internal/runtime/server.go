// Package runtime provides the Server struct and lifecycle management for
// the asset server: configuration, the compiled-asset routes, the debug
// listener and hot reload.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/tjfontaine/assetd/internal/asset"
	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/inspector"
	"github.com/tjfontaine/assetd/internal/pipeline"
	"github.com/tjfontaine/assetd/internal/rendercontext"
	httpserver "github.com/tjfontaine/assetd/internal/server"
	"github.com/tjfontaine/assetd/internal/stage"
	"github.com/tjfontaine/assetd/internal/storage"
)

var (
	_ ports.ConfigProvider = (*config.Provider)(nil)
	_ ports.EventPublisher = (*inspector.Hub)(nil)
)

// Server runs the asset routes and the debug listener.
// It can be embedded in larger applications or run standalone.
type Server struct {
	// Dependencies (injected via options)
	config     ports.ConfigProvider
	journal    ports.JournalStore
	journalSet bool
	events     ports.EventPublisher
	style      stage.StyleCompiler
	port       *int
	logger     *slog.Logger

	// Internal state
	cfg      *config.Config
	compiler *asset.Compiler
	http     *httpserver.Server
	debug    *inspector.Listener
	endpoint *inspector.Endpoint
	hub      *inspector.Hub
	watcher  *inspector.SourceWatcher

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	started bool
}

// New creates a Server with the given options. A config provider is
// required; everything else defaults from the loaded configuration.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if s.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfigProvider)")
	}

	return s, nil
}

// Start loads the configuration, binds both listeners and starts serving in
// the background. A failed Start releases whatever it had opened.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("server already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	cfg, err := s.config.Load(s.ctx)
	if err != nil {
		s.cancel()
		return fmt.Errorf("load config: %w", err)
	}
	s.applyOverrides(cfg)
	s.cfg = cfg

	if err := s.init(cfg); err != nil {
		s.cancel()
		if cerr := s.closeAll(context.Background()); cerr != nil {
			s.logger.Warn("cleanup after failed start", slog.String("error", cerr.Error()))
		}
		return err
	}

	go s.watchConfig()
	s.started = true

	s.logger.Info("asset server started",
		slog.Int("port", s.http.Port),
		slog.String("script", cfg.Assets.Script.Route),
		slog.String("style", cfg.Assets.Style.Route),
		slog.Bool("debug", s.debug != nil))

	return nil
}

func (s *Server) init(cfg *config.Config) error {
	if err := s.initJournal(cfg); err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	if err := s.initStyle(cfg); err != nil {
		return fmt.Errorf("init style compiler: %w", err)
	}

	execs, err := pipeline.NewExecutorsFromConfig(cfg, s.style, s.logger)
	if err != nil {
		return fmt.Errorf("build pipelines: %w", err)
	}
	s.compiler = asset.NewCompiler(settingsFrom(cfg, execs))

	if err := s.startDebug(cfg); err != nil {
		return fmt.Errorf("start debug listener: %w", err)
	}
	if err := s.startServer(cfg); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	s.startWatcher(cfg)
	return nil
}

// Shutdown gracefully stops the server and closes every dependency,
// injected ones included.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("shutting down asset server")

	if s.cancel != nil {
		s.cancel()
	}

	err := s.closeAll(ctx)
	s.started = false

	s.logger.Info("asset server shutdown complete")
	return err
}

func (s *Server) closeAll(ctx context.Context) error {
	var errs []error
	closeErr := func(what string, err error) {
		if err != nil {
			s.logger.Error("failed to close "+what, slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if s.http != nil {
		closeErr("server", s.http.Shutdown(ctx))
		s.http = nil
	}
	if s.debug != nil {
		closeErr("debug listener", s.debug.Shutdown(ctx))
		s.debug = nil
	}
	if s.watcher != nil {
		closeErr("source watcher", s.watcher.Close())
		s.watcher = nil
	}
	if s.events != nil {
		closeErr("events", s.events.Close())
	}
	if s.style != nil {
		closeErr("style compiler", s.style.Close())
	}
	if s.journal != nil {
		closeErr("journal", s.journal.Close())
	}
	if s.config != nil {
		closeErr("config", s.config.Close())
	}

	return errors.Join(errs...)
}

// watchConfig watches for config changes and reloads.
func (s *Server) watchConfig() {
	onChange := func(newCfg *config.Config) {
		s.logger.Info("config changed, reloading")
		if err := s.reload(newCfg); err != nil {
			s.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := s.config.Watch(s.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload rebuilds the stage chains and swaps them in. Settings that bind
// resources at startup keep their old values until restart.
func (s *Server) reload(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.compiler == nil {
		return errors.New("server not started")
	}

	s.applyOverrides(cfg)
	for _, key := range restartRequired(s.cfg, cfg) {
		s.logger.Warn("setting changed but requires a restart", slog.String("key", key))
	}
	retainRestartOnly(s.cfg, cfg)

	execs, err := pipeline.NewExecutorsFromConfig(cfg, s.style, s.logger)
	if err != nil {
		return fmt.Errorf("rebuild pipelines: %w", err)
	}
	s.compiler.Swap(settingsFrom(cfg, execs))
	s.cfg = cfg

	s.logger.Info("reload complete",
		slog.Any("script_stages", execs.Script.StageNames()),
		slog.Any("style_stages", execs.Style.StageNames()))

	return nil
}

func (s *Server) applyOverrides(cfg *config.Config) {
	if s.port != nil {
		cfg.Server.Port = *s.port
	}
}

func (s *Server) initJournal(cfg *config.Config) error {
	if s.journalSet {
		return nil
	}
	store, err := storage.New(cfg.Journal)
	if err != nil {
		return err
	}
	s.journal = store
	return nil
}

func (s *Server) initStyle(cfg *config.Config) error {
	if s.style != nil {
		return nil
	}
	c, err := pipeline.NewStyleCompiler(cfg.Style)
	if err != nil {
		return err
	}
	s.style = c
	return nil
}

// startDebug binds the debug listener before the endpoint descriptor is
// built so that port 0 resolves to the real port.
func (s *Server) startDebug(cfg *config.Config) error {
	if !cfg.Debug.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Debug.Host, strconv.Itoa(cfg.Debug.Port)))
	if err != nil {
		return err
	}
	ep := inspector.NewEndpoint(cfg.Debug.Host, ln.Addr().(*net.TCPAddr).Port)

	hub := inspector.NewHub(s.logger)
	if s.events == nil {
		s.events = hub
	} else {
		s.events = fanout{hub, s.events}
	}
	s.hub = hub

	// A nil store must reach the listener as a nil interface.
	var journal inspector.Journal
	if s.journal != nil {
		journal = s.journal
	}

	s.debug = inspector.NewListener(ep, hub, journal, s.logger)
	s.debug.Serve(ln)
	s.endpoint = &ep
	return nil
}

func (s *Server) startServer(cfg *config.Config) error {
	srv := httpserver.New(cfg.Server.Port, s.logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	builder := rendercontext.NewBuilder(rendercontext.ServerMeta{
		Debug: s.endpoint,
		Port:  srv.Port,
	}, cfg.Request.MaxBodyBytes)

	asset.Mount(srv.Router, routesFrom(cfg), asset.HandlerConfig{
		Compiler: s.compiler,
		Builder:  builder,
		Journal:  s.journal,
		Logger:   s.logger,
	}, cfg.Server.ContentRoot)

	for _, r := range routesFrom(cfg) {
		s.logger.Info("registered asset route",
			slog.String("kind", string(r.Kind)),
			slog.String("path", r.Pattern),
			slog.String("source", r.Source))
	}

	s.http = srv
	go func() {
		if err := srv.Start(); err != nil {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// startWatcher publishes source changes when there is a publisher. A
// missing source directory only disables notifications.
func (s *Server) startWatcher(cfg *config.Config) {
	if s.events == nil {
		return
	}

	var assets []inspector.WatchedAsset
	for _, r := range routesFrom(cfg) {
		assets = append(assets, inspector.WatchedAsset{
			Asset:  string(r.Kind),
			Route:  r.Pattern,
			Source: r.Source,
		})
	}

	w, err := inspector.NewSourceWatcher(assets, s.events, s.logger)
	if err != nil {
		s.logger.Warn("asset change notifications disabled", slog.String("error", err.Error()))
		return
	}
	s.watcher = w
	go w.Run(s.ctx)
}

// Port returns the bound HTTP port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.http == nil {
		return 0
	}
	return s.http.Port
}

// DebugEndpoint returns the debug listener descriptor, or nil when the
// listener is disabled or not started.
func (s *Server) DebugEndpoint() *inspector.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// Config returns the configuration currently in effect.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Compiler returns the shared asset compiler, or nil before Start.
func (s *Server) Compiler() *asset.Compiler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiler
}

// Journal returns the compilation journal, nil when disabled.
func (s *Server) Journal() ports.JournalStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal
}

func settingsFrom(cfg *config.Config, execs *pipeline.Executors) asset.Settings {
	return asset.Settings{
		Executors:         execs,
		ReportDegradation: cfg.Pipeline.ReportDegradation,
	}
}

func routesFrom(cfg *config.Config) []asset.Route {
	return []asset.Route{
		{Kind: ports.AssetScript, Pattern: cfg.Assets.Script.Route, Source: cfg.Assets.Script.Source},
		{Kind: ports.AssetStyle, Pattern: cfg.Assets.Style.Route, Source: cfg.Assets.Style.Source},
	}
}

// restartRequired lists the settings that differ between old and updated
// but are only read at startup.
// retainRestartOnly copies the settings restartRequired watches from the
// running config into cfg, so the stored config describes what is actually
// in use and a later reload still compares against it.
func retainRestartOnly(running, cfg *config.Config) {
	if running == nil {
		return
	}
	cfg.Server.Port = running.Server.Port
	cfg.Server.ContentRoot = running.Server.ContentRoot
	cfg.Assets = running.Assets
	cfg.Style = running.Style
	cfg.Debug = running.Debug
	cfg.Journal = running.Journal
	cfg.Request.MaxBodyBytes = running.Request.MaxBodyBytes
	cfg.Telemetry = running.Telemetry
	cfg.Log = running.Log
}

func restartRequired(old, updated *config.Config) []string {
	if old == nil || updated == nil {
		return nil
	}

	var keys []string
	check := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}

	check("server.port", old.Server.Port != updated.Server.Port)
	check("server.content_root", old.Server.ContentRoot != updated.Server.ContentRoot)
	check("assets", old.Assets != updated.Assets)
	check("style", old.Style != updated.Style)
	check("debug", old.Debug != updated.Debug)
	check("journal", old.Journal != updated.Journal)
	check("request.max_body_bytes", old.Request.MaxBodyBytes != updated.Request.MaxBodyBytes)
	check("telemetry", old.Telemetry != updated.Telemetry)
	check("log", old.Log != updated.Log)

	return keys
}
