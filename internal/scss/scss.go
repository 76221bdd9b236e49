// Package scss is an in-process compiler for the commonly used subset of the
// SCSS syntax: variables (with !default and !global), nested rules and the
// parent selector, nested properties, #{} interpolation, @mixin/@include with
// @content, and @media/@supports bubbling. Plain CSS at-rules pass through.
//
// Control flow (@if, @each, ...), @use/@forward, @extend, Sass functions
// and arithmetic are rejected with a SyntaxError; CSS functions such as
// rgba(), calc() and linear-gradient() pass through. Full Sass is available
// through the Dart Sass backend of the stylesheet stage.
package scss

import (
	"context"
	"strings"
)

// Compile translates SCSS source to CSS, one rule per line.
func Compile(src string) (string, error) {
	clean, err := stripComments(src)
	if err != nil {
		return "", err
	}
	nodes, err := parse(clean)
	if err != nil {
		return "", err
	}
	out, err := compileNodes(nodes, frame{scope: newScope(nil)})
	if err != nil {
		return "", err
	}
	return strings.Join(out.rules, "\n"), nil
}

// Compiler adapts Compile to the stylesheet stage's compiler contract.
type Compiler struct{}

// Compile ignores ctx: compilation is a bounded, in-memory operation.
func (Compiler) Compile(ctx context.Context, src, sourceName string) (string, error) {
	return Compile(src)
}

func (Compiler) Name() string { return "builtin" }

func (Compiler) Close() error { return nil }
