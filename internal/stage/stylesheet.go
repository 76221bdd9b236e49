package stage

import (
	"context"
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"

	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/rendercontext"
)

// StyleCompiler translates a preprocessor stylesheet into plain CSS.
type StyleCompiler interface {
	Name() string
	Compile(ctx context.Context, src, sourceName string) (string, error)
	Close() error
}

// Stylesheet compiles SCSS and compresses the resulting CSS.
type Stylesheet struct {
	compiler StyleCompiler
	minifier *minify.M
}

// NewStylesheet creates the stylesheet stage around compiler.
func NewStylesheet(compiler StyleCompiler) *Stylesheet {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)

	return &Stylesheet{compiler: compiler, minifier: m}
}

func (s *Stylesheet) Name() string { return NameStylesheet }

// Compiler returns the backend in use.
func (s *Stylesheet) Compiler() StyleCompiler {
	return s.compiler
}

func (s *Stylesheet) Process(ctx context.Context, in string, _ rendercontext.Context) (string, error) {
	out, err := s.compiler.Compile(ctx, in, SourceFrom(ctx, "asset.scss"))
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.compiler.Name(), err)
	}

	compressed, err := s.minifier.String("text/css", out)
	if err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	return compressed, nil
}

var _ ports.Stage = (*Stylesheet)(nil)
