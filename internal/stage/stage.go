// Package stage holds the transform stages that make up the asset pipelines.
// Every stage is stateless per request and safe for concurrent use.
package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Stage names, used in logs, spans, journal records and the degradation header.
const (
	NameTemplate   = "template"
	NameTranspile  = "transpile"
	NameMinify     = "minify"
	NameStylesheet = "stylesheet"
)

type sourceKey struct{}

// WithSource records the template source path for diagnostics and source maps.
func WithSource(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, sourceKey{}, path)
}

// SourceFrom returns the source path set by WithSource, or fallback.
func SourceFrom(ctx context.Context, fallback string) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return fallback
}

// esbuildError flattens esbuild diagnostics into a single error.
func esbuildError(msgs []api.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		lines = append(lines, m.Text)
	}
	return fmt.Errorf("%s", strings.Join(lines, "; "))
}
