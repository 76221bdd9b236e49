package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/scss"
	"github.com/tjfontaine/assetd/internal/stage"
)

// Stage positions within a chain.
const (
	orderTemplate = 10
	orderCompile  = 20
	orderMinify   = 30
)

// Executors holds one executor per asset kind.
type Executors struct {
	Script *Executor
	Style  *Executor
}

// For returns the executor compiling kind.
func (e *Executors) For(kind ports.AssetKind) *Executor {
	if kind == ports.AssetStyle {
		return e.Style
	}
	return e.Script
}

// NewStyleCompiler creates the stylesheet backend selected by cfg. The
// caller owns the result and must Close it.
func NewStyleCompiler(cfg config.StyleConfig) (stage.StyleCompiler, error) {
	switch cfg.Compiler {
	case "", "builtin":
		return scss.Compiler{}, nil
	case "dartsass":
		if cfg.DartSassPath == "" {
			return nil, fmt.Errorf("style.dart_sass_path is required for the dartsass compiler")
		}
		return stage.NewDartSass(cfg.DartSassPath, 0), nil
	default:
		return nil, fmt.Errorf("unknown style compiler %q", cfg.Compiler)
	}
}

// NewExecutorsFromConfig builds the script and style chains. Disabled stages
// are left out of the chain entirely. The style compiler is shared across
// rebuilds and is not owned by the returned executors.
func NewExecutorsFromConfig(cfg *config.Config, compiler stage.StyleCompiler, logger *slog.Logger) (*Executors, error) {
	tmpl := stage.NewTemplate(stage.TemplateOptions{
		LeftDelim:  cfg.Template.LeftDelim,
		RightDelim: cfg.Template.RightDelim,
	})

	var script []StageConfig
	if cfg.Pipeline.Script.Template {
		script = append(script, StageConfig{Name: stage.NameTemplate, Order: orderTemplate, Stage: tmpl})
	}
	if cfg.Pipeline.Script.Transpile {
		tr, err := stage.NewTranspile(stage.TranspileOptions{
			Target: cfg.Transpile.Target,
			Format: cfg.Transpile.Format,
		})
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.NameTranspile, err)
		}
		script = append(script, StageConfig{Name: stage.NameTranspile, Order: orderCompile, Stage: tr})
	}
	if cfg.Pipeline.Script.Minify {
		script = append(script, StageConfig{Name: stage.NameMinify, Order: orderMinify, Stage: stage.NewMinify()})
	}

	var style []StageConfig
	if cfg.Pipeline.Style.Template {
		style = append(style, StageConfig{Name: stage.NameTemplate, Order: orderTemplate, Stage: tmpl})
	}
	if cfg.Pipeline.Style.Compile {
		if compiler == nil {
			return nil, fmt.Errorf("stage %s: no style compiler", stage.NameStylesheet)
		}
		style = append(style, StageConfig{Name: stage.NameStylesheet, Order: orderCompile, Stage: stage.NewStylesheet(compiler)})
	}

	return &Executors{
		Script: NewExecutor(ExecutorConfig{Kind: ports.AssetScript, Stages: script, Logger: logger}),
		Style:  NewExecutor(ExecutorConfig{Kind: ports.AssetStyle, Stages: style, Logger: logger}),
	}, nil
}
