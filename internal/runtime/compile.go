package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/assetd/internal/asset"
	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/pipeline"
	"github.com/tjfontaine/assetd/internal/rendercontext"
)

// CompileRequest describes a one-off compilation outside the HTTP server.
type CompileRequest struct {
	Kind ports.AssetKind
	// Source defaults to the configured source for Kind.
	Source string
	Query  map[string]any
	Body   any
}

// Compile runs a single asset through the configured stage chain. The render
// context carries the configured port and no debug endpoint.
func Compile(ctx context.Context, cfg *config.Config, req CompileRequest, logger *slog.Logger) (*ports.PipelineResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	source := req.Source
	if source == "" {
		switch req.Kind {
		case ports.AssetScript:
			source = cfg.Assets.Script.Source
		case ports.AssetStyle:
			source = cfg.Assets.Style.Source
		default:
			return nil, fmt.Errorf("unknown asset kind %q", req.Kind)
		}
	}

	style, err := pipeline.NewStyleCompiler(cfg.Style)
	if err != nil {
		return nil, fmt.Errorf("init style compiler: %w", err)
	}
	defer style.Close()

	execs, err := pipeline.NewExecutorsFromConfig(cfg, style, logger)
	if err != nil {
		return nil, fmt.Errorf("build pipelines: %w", err)
	}

	query := req.Query
	if query == nil {
		query = map[string]any{}
	}
	rc := rendercontext.New(req.Body, query, map[string]any{}, rendercontext.ServerMeta{Port: cfg.Server.Port})

	compiler := asset.NewCompiler(settingsFrom(cfg, execs))
	return compiler.CompileFile(ctx, req.Kind, source, rc)
}
