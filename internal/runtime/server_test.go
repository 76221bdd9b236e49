package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/domain"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/storage/memory"
)

const scriptSource = "const port: number = {{ .data.port }};\nconsole.log(\"q=\" + \"{{ .data.query.q }}\", port);\n"
const styleSource = "$c: {{ .data.query.c | default \"red\" }};\n.a {\n  color: $c;\n}\n"

type testEnv struct {
	dir        string
	configPath string
	scriptPath string
	stylePath  string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		scriptPath: filepath.Join(dir, "assets", "js.tmpl"),
		stylePath:  filepath.Join(dir, "assets", "css.tmpl"),
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0755); err != nil {
		t.Fatal(err)
	}
	env.writeFile(t, env.scriptPath, scriptSource)
	env.writeFile(t, env.stylePath, styleSource)
	env.writeFile(t, filepath.Join(dir, "index.txt"), "static file")
	env.writeConfig(t, extra)
	return env
}

func (e *testEnv) writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) writeConfig(t *testing.T, extra string) {
	t.Helper()
	content := fmt.Sprintf(`
server:
  port: 0
  content_root: %q
assets:
  script:
    route: /assets/js/javascript2.js
    source: %q
  style:
    route: /assets/css/style2.css
    source: %q
debug:
  enabled: true
  host: 127.0.0.1
  port: 0
%s`, e.dir, e.scriptPath, e.stylePath, extra)
	e.writeFile(t, e.configPath, content)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, env *testEnv, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger()), WithFileConfig(env.configPath)}, opts...)

	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func baseURL(s *Server) string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port())
}

func TestServer_New_RequiresConfig(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error without config provider")
	}
	if err.Error() != "config provider required (use WithFileConfig or WithConfigProvider)" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServer_New_InvalidPort(t *testing.T) {
	if _, err := New(WithFileConfig("config.yaml"), WithPort(70000)); err == nil {
		t.Error("expected error for out-of-range port")
	}
}

func TestServer_ServesCompiledAssets(t *testing.T) {
	env := newTestEnv(t, "")
	s := startServer(t, env)

	if s.Port() == 0 {
		t.Fatal("port 0 was not resolved")
	}

	resp, body := get(t, baseURL(s)+"/assets/js/javascript2.js?q=hi")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("script status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/javascript" {
		t.Errorf("script content type = %q", ct)
	}
	if d := resp.Header.Get("X-Asset-Degraded"); d != "" {
		t.Errorf("script degraded: %s\n%s", d, body)
	}
	if !strings.Contains(body, fmt.Sprint(s.Port())) {
		t.Errorf("script missing port %d:\n%s", s.Port(), body)
	}
	if !strings.Contains(body, "q=") || !strings.Contains(body, "hi") {
		t.Errorf("script missing query value:\n%s", body)
	}
	if strings.Contains(body, ": number") {
		t.Errorf("script still has type annotations:\n%s", body)
	}

	resp, body = get(t, baseURL(s)+"/assets/css/style2.css?c=green")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("style status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/css" {
		t.Errorf("style content type = %q", ct)
	}
	if body != ".a{color:green}" {
		t.Errorf("style body = %q", body)
	}

	resp, body = get(t, baseURL(s)+"/index.txt")
	if resp.StatusCode != http.StatusOK || body != "static file" {
		t.Errorf("static file = %d %q", resp.StatusCode, body)
	}

	resp, _ = get(t, baseURL(s)+"/missing.js")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_MissingSourceFallsThrough(t *testing.T) {
	env := newTestEnv(t, "")
	if err := os.Remove(env.scriptPath); err != nil {
		t.Fatal(err)
	}
	s := startServer(t, env)

	resp, _ := get(t, baseURL(s)+"/assets/js/javascript2.js")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_DebugListener(t *testing.T) {
	env := newTestEnv(t, "")
	s := startServer(t, env)

	ep := s.DebugEndpoint()
	if ep == nil {
		t.Fatal("expected debug endpoint")
	}
	if ep.Port == 0 {
		t.Fatal("debug port 0 was not resolved")
	}
	if !strings.HasPrefix(ep.URL, "ws://127.0.0.1:") {
		t.Errorf("endpoint url = %q", ep.URL)
	}

	get(t, baseURL(s)+"/assets/css/style2.css")

	resp, body := get(t, "http://"+ep.Host+"/compilations?asset=style")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("compilations status = %d: %s", resp.StatusCode, body)
	}
	var list struct {
		Data []domain.CompilationRecord `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 1 {
		t.Fatalf("compilations = %d, want 1", len(list.Data))
	}
	if list.Data[0].Route != "/assets/css/style2.css" {
		t.Errorf("route = %q", list.Data[0].Route)
	}

	resp, _ = get(t, "http://"+ep.Host+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stats status = %d", resp.StatusCode)
	}
}

func TestServer_DebugDisabled(t *testing.T) {
	env := newTestEnv(t, "")
	content, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatal(err)
	}
	env.writeFile(t, env.configPath, strings.Replace(string(content), "enabled: true", "enabled: false", 1))

	s := startServer(t, env)
	if s.DebugEndpoint() != nil {
		t.Error("expected no debug endpoint")
	}

	resp, _ := get(t, baseURL(s)+"/assets/css/style2.css")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServer_InjectedJournal(t *testing.T) {
	env := newTestEnv(t, "")
	store := memory.New(10)
	s := startServer(t, env, WithJournal(store))

	get(t, baseURL(s)+"/assets/js/javascript2.js")
	get(t, baseURL(s)+"/assets/css/style2.css")

	if store.Len() != 2 {
		t.Errorf("journal entries = %d, want 2", store.Len())
	}
	if s.Journal() != ports.JournalStore(store) {
		t.Error("Journal() did not return the injected store")
	}
}

func TestServer_JournalDisabled(t *testing.T) {
	env := newTestEnv(t, "journal:\n  type: none\n")
	s := startServer(t, env)

	if s.Journal() != nil {
		t.Error("expected nil journal")
	}
	resp, _ := get(t, "http://"+s.DebugEndpoint().Host+"/compilations")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestServer_Reload(t *testing.T) {
	env := newTestEnv(t, "")
	s := startServer(t, env)

	env.writeFile(t, env.scriptPath, "console.log([[ .data.port ]] as number);\n")
	_, body := get(t, baseURL(s)+"/assets/js/javascript2.js")
	if !strings.Contains(body, "[[") {
		t.Fatalf("old delimiters should leave [[ ]] untouched:\n%s", body)
	}

	cfg, err := config.Load(env.configPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Template.LeftDelim = "[["
	cfg.Template.RightDelim = "]]"
	cfg.Pipeline.ReportDegradation = false
	if err := s.reload(cfg); err != nil {
		t.Fatalf("reload() error = %v", err)
	}

	resp, body := get(t, baseURL(s)+"/assets/js/javascript2.js")
	if strings.Contains(body, "[[") {
		t.Errorf("new delimiters not applied:\n%s", body)
	}
	if !strings.Contains(body, fmt.Sprint(s.Port())) {
		t.Errorf("script missing port:\n%s", body)
	}
	if resp.Header.Get("X-Asset-Degraded") != "" {
		t.Error("degradation header should be disabled after reload")
	}
	if s.Config().Template.LeftDelim != "[[" {
		t.Error("Config() not updated")
	}
}

func TestServer_ReloadKeepsRestartOnlySettings(t *testing.T) {
	var logs bytes.Buffer
	env := newTestEnv(t, "")
	s := startServer(t, env, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	running := *s.Config()

	reloadWith := func(mutate func(*config.Config)) {
		t.Helper()
		cfg, err := config.Load(env.configPath)
		if err != nil {
			t.Fatal(err)
		}
		mutate(cfg)
		if err := s.reload(cfg); err != nil {
			t.Fatalf("reload() error = %v", err)
		}
	}

	otherRoot := t.TempDir()
	reloadWith(func(c *config.Config) {
		c.Server.ContentRoot = otherRoot
		c.Server.Port = 9000
		c.Template.LeftDelim = "[["
		c.Template.RightDelim = "]]"
	})

	got := s.Config()
	if got.Server.ContentRoot != running.Server.ContentRoot {
		t.Errorf("content_root = %q, want running value %q", got.Server.ContentRoot, running.Server.ContentRoot)
	}
	if got.Server.Port != running.Server.Port {
		t.Errorf("port = %d, want running value %d", got.Server.Port, running.Server.Port)
	}
	if got.Template.LeftDelim != "[[" {
		t.Error("hot setting was not applied")
	}
	if keys := restartRequired(&running, got); len(keys) != 0 {
		t.Errorf("stored config differs from running config in %v", keys)
	}

	// The same edit is still reported on the next reload.
	logs.Reset()
	reloadWith(func(c *config.Config) { c.Server.ContentRoot = otherRoot })
	if !strings.Contains(logs.String(), "server.content_root") {
		t.Errorf("second reload did not warn about content_root:\n%s", logs.String())
	}

	_, body := get(t, baseURL(s)+"/index.txt")
	if body != "static file" {
		t.Errorf("static serving moved away from the running content root: %q", body)
	}
}

func TestRetainRestartOnly(t *testing.T) {
	running, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	updated := *running
	updated.Server.Port = 9000
	updated.Server.ContentRoot = "/elsewhere"
	updated.Assets.Script.Route = "/app.js"
	updated.Style.Compiler = "dartsass"
	updated.Debug.Enabled = !running.Debug.Enabled
	updated.Journal.Type = "sqlite"
	updated.Request.MaxBodyBytes = running.Request.MaxBodyBytes + 1
	updated.Telemetry.Enabled = !running.Telemetry.Enabled
	updated.Log.Level = "debug"
	updated.Template.LeftDelim = "<%"

	retainRestartOnly(running, &updated)

	if keys := restartRequired(running, &updated); len(keys) != 0 {
		t.Errorf("restart-only settings not retained: %v", keys)
	}
	if updated.Template.LeftDelim != "<%" {
		t.Error("hot setting was overwritten")
	}
}

func TestServer_ReloadRejectsBadConfig(t *testing.T) {
	env := newTestEnv(t, "")
	s := startServer(t, env)
	before := s.Compiler().Settings().Executors

	cfg, err := config.Load(env.configPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Transpile.Target = "es3"
	if err := s.reload(cfg); err == nil {
		t.Fatal("expected reload error")
	}
	if s.Compiler().Settings().Executors != before {
		t.Error("failed reload replaced the executors")
	}
}

func TestServer_WatchesConfigFile(t *testing.T) {
	env := newTestEnv(t, "")
	s := startServer(t, env)

	env.writeConfig(t, "pipeline:\n  script:\n    minify: false\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Config().Pipeline.Script.Minify {
			names := s.Compiler().Settings().Executors.Script.StageNames()
			if len(names) != 2 {
				t.Fatalf("script stages = %v", names)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("config change was not picked up")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.AssetEvent
	closed bool
}

func (p *recordingPublisher) Publish(ctx context.Context, event *domain.AssetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) snapshot() []*domain.AssetEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.AssetEvent(nil), p.events...)
}

func TestServer_PublishesSourceChanges(t *testing.T) {
	env := newTestEnv(t, "")
	pub := &recordingPublisher{}
	s := startServer(t, env, WithEventPublisher(pub))
	_ = s

	env.writeFile(t, env.stylePath, ".b { color: green; }\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range pub.snapshot() {
			if ev.Asset == "style" && ev.Type == domain.AssetEventChanged {
				if ev.Route != "/assets/css/style2.css" {
					t.Errorf("route = %q", ev.Route)
				}
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("no change event published")
}

func TestServer_EventsReachDebugClientsAndPublisher(t *testing.T) {
	env := newTestEnv(t, "")
	pub := &recordingPublisher{}
	s := startServer(t, env, WithEventPublisher(pub))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, s.DebugEndpoint().URL, nil)
	if err != nil {
		t.Fatalf("dial debug endpoint: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.writeFile(t, env.stylePath, ".b { color: green; }\n")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var got domain.AssetEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Asset != "style" || got.Route != "/assets/css/style2.css" {
		t.Errorf("websocket event = %+v", got)
	}

	for time.Now().Before(deadline.Add(3 * time.Second)) {
		for _, ev := range pub.snapshot() {
			if ev.Asset == "style" {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("injected publisher received no event")
}

func TestFanout(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{}
	f := fanout{a, b}

	event := &domain.AssetEvent{Type: domain.AssetEventChanged, Asset: "script"}
	if err := f.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(a.snapshot()) != 1 || len(b.snapshot()) != 1 {
		t.Errorf("events = %d/%d, want 1/1", len(a.snapshot()), len(b.snapshot()))
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("Close() did not reach every publisher")
	}
}

func TestServer_ShutdownClosesDependencies(t *testing.T) {
	env := newTestEnv(t, "")
	pub := &recordingPublisher{}

	s, err := New(WithLogger(discardLogger()), WithFileConfig(env.configPath), WithEventPublisher(pub))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	port := s.Port()

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if !pub.closed {
		t.Error("event publisher not closed")
	}
	if _, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond); err == nil {
		t.Error("server still accepting connections")
	}
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port

	env := newTestEnv(t, "")
	var logs bytes.Buffer
	s, err := New(
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithFileConfig(env.configPath),
		WithPort(busy),
	)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Start(context.Background())
	if err == nil {
		s.Shutdown(context.Background())
		t.Skip("port was bindable on this platform")
	}
	if !strings.Contains(err.Error(), "start server") {
		t.Errorf("error = %v", err)
	}
	if s.DebugEndpoint() != nil {
		// The debug listener was opened before the failure and must be released.
		if _, derr := net.DialTimeout("tcp", s.DebugEndpoint().Host, 200*time.Millisecond); derr == nil {
			t.Error("debug listener still open after failed start")
		}
	}
}

func TestRestartRequired(t *testing.T) {
	base, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{name: "nothing", mutate: func(*config.Config) {}},
		{name: "hot settings only", mutate: func(c *config.Config) {
			c.Template.LeftDelim = "<%"
			c.Transpile.Target = "es2017"
			c.Pipeline.Script.Minify = false
		}},
		{name: "port", mutate: func(c *config.Config) { c.Server.Port = 9000 }, want: []string{"server.port"}},
		{name: "routes and journal", mutate: func(c *config.Config) {
			c.Assets.Script.Route = "/app.js"
			c.Journal.Type = "sqlite"
		}, want: []string{"assets", "journal"}},
		{name: "style compiler", mutate: func(c *config.Config) { c.Style.Compiler = "dartsass" }, want: []string{"style"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := *base
			tt.mutate(&updated)
			got := restartRequired(base, &updated)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("restartRequired() = %v, want %v", got, tt.want)
			}
		})
	}

	if restartRequired(nil, base) != nil {
		t.Error("nil old config should report nothing")
	}
}
