package stage

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/rendercontext"
)

// Minify compresses plain JavaScript and emits an inline source map.
// Top-level names are kept, since the script may define globals other
// scripts rely on.
type Minify struct{}

// NewMinify creates the minify stage.
func NewMinify() *Minify {
	return &Minify{}
}

func (m *Minify) Name() string { return NameMinify }

func (m *Minify) Process(ctx context.Context, in string, _ rendercontext.Context) (string, error) {
	result := api.Transform(in, api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcemap:         api.SourceMapInline,
		SourcesContent:    api.SourcesContentInclude,
		Sourcefile:        SourceFrom(ctx, "asset.js"),
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", esbuildError(result.Errors)
	}
	return string(result.Code), nil
}

var _ ports.Stage = (*Minify)(nil)
