// Package asset serves compiled assets. Each route reads its template source
// fresh, renders it against the request and runs the asset kind's stage
// chain. Nothing is cached between requests.
package asset

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/pipeline"
	"github.com/tjfontaine/assetd/internal/rendercontext"
	"github.com/tjfontaine/assetd/internal/stage"
)

// Settings are the parts of the compiler that can change while serving.
type Settings struct {
	Executors         *pipeline.Executors
	ReportDegradation bool
}

// Compiler runs stage chains against the current Settings. Swap replaces
// the settings atomically; a request in flight keeps the settings it
// started with.
type Compiler struct {
	settings atomic.Pointer[Settings]
}

// NewCompiler creates a compiler with the initial settings.
func NewCompiler(s Settings) *Compiler {
	c := &Compiler{}
	c.Swap(s)
	return c
}

// Swap installs new settings for subsequent requests.
func (c *Compiler) Swap(s Settings) {
	c.settings.Store(&s)
}

// Settings returns the current settings.
func (c *Compiler) Settings() Settings {
	return *c.settings.Load()
}

// Run compiles text read from source.
func (c *Compiler) Run(ctx context.Context, kind ports.AssetKind, source, text string, rc rendercontext.Context) *ports.PipelineResult {
	return c.run(ctx, c.Settings(), kind, source, text, rc)
}

func (c *Compiler) run(ctx context.Context, s Settings, kind ports.AssetKind, source, text string, rc rendercontext.Context) *ports.PipelineResult {
	ctx = stage.WithSource(ctx, source)
	return s.Executors.For(kind).Run(ctx, text, rc)
}

// CompileFile reads source and compiles it. The only error is a failure to
// read the source; stage failures are reported in the result.
func (c *Compiler) CompileFile(ctx context.Context, kind ports.AssetKind, source string, rc rendercontext.Context) (*ports.PipelineResult, error) {
	text, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return c.Run(ctx, kind, source, string(text), rc), nil
}
