package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nesting levels are
// separated by a double underscore, e.g. ASSETD_SERVER__PORT.
const EnvPrefix = "ASSETD_"

// DefaultPath is the config file loaded when no explicit path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Assets    AssetsConfig    `koanf:"assets"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Template  TemplateConfig  `koanf:"template"`
	Transpile TranspileConfig `koanf:"transpile"`
	Style     StyleConfig     `koanf:"style"`
	Debug     DebugConfig     `koanf:"debug"`
	Journal   JournalConfig   `koanf:"journal"`
	Request   RequestConfig   `koanf:"request"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port        int    `koanf:"port"`
	ContentRoot string `koanf:"content_root"`
}

type AssetsConfig struct {
	Script AssetConfig `koanf:"script"`
	Style  AssetConfig `koanf:"style"`
}

// AssetConfig binds a route pattern to the template source compiled for it.
type AssetConfig struct {
	Route  string `koanf:"route"`
	Source string `koanf:"source"`
}

type PipelineConfig struct {
	Script            ScriptStages `koanf:"script"`
	Style             StyleStages  `koanf:"style"`
	ReportDegradation bool         `koanf:"report_degradation"`
}

type ScriptStages struct {
	Template  bool `koanf:"template"`
	Transpile bool `koanf:"transpile"`
	Minify    bool `koanf:"minify"`
}

type StyleStages struct {
	Template bool `koanf:"template"`
	Compile  bool `koanf:"compile"`
}

type TemplateConfig struct {
	LeftDelim  string `koanf:"left_delim"`
	RightDelim string `koanf:"right_delim"`
}

type TranspileConfig struct {
	Target string `koanf:"target"` // esnext, es2020, es2017, ...
	Format string `koanf:"format"` // preserve, esm, cjs, iife
}

type StyleConfig struct {
	Compiler     string `koanf:"compiler"` // builtin, dartsass
	DartSassPath string `koanf:"dart_sass_path"`
}

type DebugConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

type JournalConfig struct {
	Type     string       `koanf:"type"` // memory, sqlite, none
	Capacity int          `koanf:"capacity"`
	SQLite   SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RequestConfig struct {
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

var defaults = map[string]any{
	"server.port":                 8587,
	"server.content_root":         "www",
	"assets.script.route":         "/assets/js/javascript2.js",
	"assets.script.source":        "www/assets/js.tmpl",
	"assets.style.route":          "/assets/css/style2.css",
	"assets.style.source":         "www/assets/css.tmpl",
	"pipeline.script.template":    true,
	"pipeline.script.transpile":   true,
	"pipeline.script.minify":      true,
	"pipeline.style.template":     true,
	"pipeline.style.compile":      true,
	"pipeline.report_degradation": true,
	"template.left_delim":         "{{",
	"template.right_delim":        "}}",
	"transpile.target":            "esnext",
	"transpile.format":            "preserve",
	"style.compiler":              "builtin",
	"debug.enabled":               true,
	"debug.host":                  "127.0.0.1",
	"debug.port":                  9229,
	"journal.type":                "memory",
	"journal.capacity":            256,
	"journal.sqlite.path":         "./data/journal.db",
	"request.max_body_bytes":      1 << 20,
	"telemetry.enabled":           false,
	"log.level":                   "info",
	"log.format":                  "json",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path (a missing file is not an error), overlays
// ASSETD_ environment variables and fills in defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Server.ContentRoot = substituteEnvVars(cfg.Server.ContentRoot)
	cfg.Assets.Script.Source = substituteEnvVars(cfg.Assets.Script.Source)
	cfg.Assets.Style.Source = substituteEnvVars(cfg.Assets.Style.Source)
	cfg.Style.DartSassPath = substituteEnvVars(cfg.Style.DartSassPath)
	cfg.Journal.SQLite.Path = substituteEnvVars(cfg.Journal.SQLite.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	// Port 0 binds a free port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Debug.Enabled && (c.Debug.Port < 0 || c.Debug.Port > 65535) {
		return fmt.Errorf("debug.port %d out of range", c.Debug.Port)
	}
	if !strings.HasPrefix(c.Assets.Script.Route, "/") || !strings.HasPrefix(c.Assets.Style.Route, "/") {
		return fmt.Errorf("asset routes must be absolute paths")
	}
	if c.Template.LeftDelim == "" || c.Template.RightDelim == "" {
		return fmt.Errorf("template delimiters cannot be empty")
	}
	switch c.Transpile.Format {
	case "preserve", "esm", "cjs", "iife":
	default:
		return fmt.Errorf("invalid transpile.format %q (must be preserve, esm, cjs or iife)", c.Transpile.Format)
	}
	switch c.Style.Compiler {
	case "builtin":
	case "dartsass":
		if c.Style.DartSassPath == "" {
			return fmt.Errorf("style.dart_sass_path is required when style.compiler is dartsass")
		}
	default:
		return fmt.Errorf("invalid style.compiler %q (must be builtin or dartsass)", c.Style.Compiler)
	}
	switch c.Journal.Type {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("invalid journal.type %q (must be memory, sqlite or none)", c.Journal.Type)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
