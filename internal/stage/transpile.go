package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/rendercontext"
)

// TranspileOptions configures the TypeScript transform.
type TranspileOptions struct {
	// Target is the output language level, e.g. "esnext" or "es2017".
	Target string
	// Format is "preserve" (default), "esm", "cjs" or "iife". Only preserve
	// and esm leave module imports untouched; cjs and iife wrap them in
	// interop helpers.
	Format string
}

// Transpile strips TypeScript syntax and lowers the result to the target
// language level, appending an inline source map with embedded sources.
type Transpile struct {
	target api.Target
	format api.Format
}

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

var formats = map[string]api.Format{
	"":         api.FormatDefault,
	"preserve": api.FormatDefault,
	"esm":      api.FormatESModule,
	"cjs":      api.FormatCommonJS,
	"iife":     api.FormatIIFE,
}

// tsconfig disables import interop the same way a tsconfig.json would.
const tsconfig = `{"compilerOptions":{"esModuleInterop":false}}`

// NewTranspile validates opts and creates the stage.
func NewTranspile(opts TranspileOptions) (*Transpile, error) {
	name := strings.ToLower(opts.Target)
	if name == "" {
		name = "esnext"
	}
	target, ok := targets[name]
	if !ok {
		return nil, fmt.Errorf("unknown transpile target %q", opts.Target)
	}
	format, ok := formats[strings.ToLower(opts.Format)]
	if !ok {
		return nil, fmt.Errorf("unknown transpile format %q", opts.Format)
	}
	return &Transpile{target: target, format: format}, nil
}

func (t *Transpile) Name() string { return NameTranspile }

func (t *Transpile) Process(ctx context.Context, in string, _ rendercontext.Context) (string, error) {
	result := api.Transform(in, api.TransformOptions{
		Loader:         api.LoaderTS,
		Target:         t.target,
		Format:         t.format,
		Sourcemap:      api.SourceMapInline,
		SourcesContent: api.SourcesContentInclude,
		Sourcefile:     SourceFrom(ctx, "asset.ts"),
		TsconfigRaw:    tsconfig,
		LogLevel:       api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", esbuildError(result.Errors)
	}
	return string(result.Code), nil
}

var _ ports.Stage = (*Transpile)(nil)
