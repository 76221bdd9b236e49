package stage

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"text/template/parse"

	"github.com/Masterminds/sprig/v3"

	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/rendercontext"
)

// TemplateOptions configures the template stage.
type TemplateOptions struct {
	LeftDelim  string
	RightDelim string
}

// Template expands text/template directives against the render context.
// The context is exposed as the template's dot, so request data is reached
// as {{ .data.query.name }}. Missing keys and nil values print nothing.
type Template struct {
	left, right string
	funcs       template.FuncMap
}

// NewTemplate creates a template stage. Empty delimiters select {{ and }}.
func NewTemplate(opts TemplateOptions) *Template {
	funcs := sprig.TxtFuncMap()
	// Templates must not read the process environment.
	delete(funcs, "env")
	delete(funcs, "expandenv")
	funcs[blankFunc] = blank

	return &Template{
		left:  opts.LeftDelim,
		right: opts.RightDelim,
		funcs: funcs,
	}
}

func (t *Template) Name() string { return NameTemplate }

// Process parses and executes in on every call; nothing is cached between
// requests.
func (t *Template) Process(ctx context.Context, in string, rc rendercontext.Context) (string, error) {
	tmpl, err := template.New(SourceFrom(ctx, "asset")).
		Delims(t.left, t.right).
		Funcs(t.funcs).
		Parse(in)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	for _, tt := range tmpl.Templates() {
		if tt.Tree != nil {
			blankNil(tt.Tree, tt.Tree.Root)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any(rc)); err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	return buf.String(), nil
}

// blankFunc is appended to every printing action.
const blankFunc = "assetdBlank"

func blank(v any) any {
	if v == nil {
		return ""
	}
	return v
}

// blankNil rewrites printing actions to end in blankFunc, so that a nil
// result renders as "" instead of text/template's "<no value>".
func blankNil(tree *parse.Tree, n parse.Node) {
	switch n := n.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			blankNil(tree, c)
		}
	case *parse.ActionNode:
		if len(n.Pipe.Decl) > 0 {
			return
		}
		ident := parse.NewIdentifier(blankFunc).SetTree(tree).SetPos(n.Pos)
		n.Pipe.Cmds = append(n.Pipe.Cmds, &parse.CommandNode{
			NodeType: parse.NodeCommand,
			Pos:      n.Pos,
			Args:     []parse.Node{ident},
		})
	case *parse.IfNode:
		blankNil(tree, n.List)
		blankNil(tree, n.ElseList)
	case *parse.RangeNode:
		blankNil(tree, n.List)
		blankNil(tree, n.ElseList)
	case *parse.WithNode:
		blankNil(tree, n.List)
		blankNil(tree, n.ElseList)
	}
}

var _ ports.Stage = (*Template)(nil)
