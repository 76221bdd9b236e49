package scss

import (
	"fmt"
	"strings"
)

type scope struct {
	vars   map[string]string
	mixins map[string]*mixin
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]string{}, mixins: map[string]*mixin{}, parent: parent}
}

func (s *scope) lookup(name string) (string, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return "", false
}

func (s *scope) root() *scope {
	sc := s
	for sc.parent != nil {
		sc = sc.parent
	}
	return sc
}

func (s *scope) mixin(name string) (*mixin, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if m, ok := sc.mixins[name]; ok {
			return m, true
		}
	}
	return nil, false
}

type param struct {
	name   string
	def    string
	hasDef bool
}

type mixin struct {
	name   string
	params []param
	body   []*node
	scope  *scope
}

// content is the block passed to an @include, evaluated in the caller's scope.
type content struct {
	nodes []*node
	scope *scope
}

// frame carries everything a block body is compiled against.
type frame struct {
	scope      *scope
	selectors  []string // nil at the root and inside non-style at-rules
	allowDecls bool
	propPrefix string
	content    *content
	depth      int
}

const maxIncludeDepth = 64

// body is the result of compiling a block body.
type body struct {
	decls []string
	rules []string
}

func (b *body) merge(o body) {
	b.decls = append(b.decls, o.decls...)
	b.rules = append(b.rules, o.rules...)
}

func compileNodes(nodes []*node, f frame) (body, error) {
	var out body
	for _, n := range nodes {
		var (
			res body
			err error
		)
		if n.block {
			res, err = compileBlock(n, f)
		} else {
			res, err = compileStatement(n, f)
		}
		if err != nil {
			return body{}, err
		}
		out.merge(res)
	}
	return out, nil
}

func compileStatement(n *node, f frame) (body, error) {
	text := n.text

	switch {
	case strings.HasPrefix(text, "$"):
		return body{}, declareVariable(n, f.scope)

	case strings.HasPrefix(text, "@"):
		name, rest := atName(text)
		switch name {
		case "include":
			return include(n, rest, nil, f)
		case "content":
			if f.content == nil {
				return body{}, nil
			}
			cf := f
			cf.scope = newScope(f.content.scope)
			cf.content = nil
			return compileNodes(f.content.nodes, cf)
		case "import", "charset", "namespace":
			value, err := evalValue(rest, f.scope, n.line)
			if err != nil {
				return body{}, err
			}
			return body{rules: []string{"@" + name + " " + value + ";"}}, nil
		case "debug", "warn":
			return body{}, nil
		case "error":
			value, _ := evalValue(rest, f.scope, n.line)
			return body{}, &SyntaxError{Line: n.line, Msg: "@error " + unquote(value)}
		case "use", "forward", "extend", "return":
			return body{}, unsupported(n, name)
		default:
			value, err := evalValue(rest, f.scope, n.line)
			if err != nil {
				return body{}, err
			}
			return body{rules: []string{strings.TrimSpace("@" + name + " " + value) + ";"}}, nil
		}
	}

	colon := indexTopLevel(text, ':')
	if colon < 0 {
		return body{}, &SyntaxError{Line: n.line, Msg: fmt.Sprintf("expected declaration, found %q", text)}
	}
	if f.selectors == nil && !f.allowDecls {
		return body{}, &SyntaxError{Line: n.line, Msg: "declarations may only be used within style rules"}
	}

	prop, err := interpolate(strings.TrimSpace(text[:colon]), f.scope, n.line)
	if err != nil {
		return body{}, err
	}
	value, err := evalValue(text[colon+1:], f.scope, n.line)
	if err != nil {
		return body{}, err
	}
	if value == "" {
		return body{}, &SyntaxError{Line: n.line, Msg: fmt.Sprintf("expected value for %q", prop)}
	}
	if f.propPrefix != "" {
		prop = f.propPrefix + "-" + prop
	}

	return body{decls: []string{prop + ":" + value}}, nil
}

func compileBlock(n *node, f frame) (body, error) {
	prelude := n.text

	if strings.HasPrefix(prelude, "@") {
		name, rest := atName(prelude)
		switch name {
		case "mixin":
			return body{}, defineMixin(n, rest, f.scope)
		case "include":
			return include(n, rest, &content{nodes: n.children, scope: f.scope}, f)
		case "media", "supports":
			return compileConditional(n, name, rest, f)
		case "if", "else", "each", "for", "while", "function", "at-root":
			return body{}, unsupported(n, name)
		default:
			return compileAtBlock(n, name, rest, f)
		}
	}

	// font: { family: x; } nested property namespace
	if strings.HasSuffix(prelude, ":") {
		ns, err := interpolate(strings.TrimSpace(strings.TrimSuffix(prelude, ":")), f.scope, n.line)
		if err != nil {
			return body{}, err
		}
		nf := f
		nf.scope = newScope(f.scope)
		if nf.propPrefix != "" {
			ns = nf.propPrefix + "-" + ns
		}
		nf.propPrefix = ns
		return compileNodes(n.children, nf)
	}

	return compileRule(n, f)
}

func compileRule(n *node, f frame) (body, error) {
	sel, err := interpolate(n.text, f.scope, n.line)
	if err != nil {
		return body{}, err
	}
	selectors, err := resolveSelectors(f.selectors, sel, n.line)
	if err != nil {
		return body{}, err
	}

	nf := frame{
		scope:     newScope(f.scope),
		selectors: selectors,
		content:   f.content,
		depth:     f.depth,
	}
	inner, err := compileNodes(n.children, nf)
	if err != nil {
		return body{}, err
	}

	var out body
	visible := visibleSelectors(selectors)
	if len(inner.decls) > 0 && len(visible) > 0 {
		out.rules = append(out.rules, strings.Join(visible, ",")+"{"+strings.Join(inner.decls, ";")+"}")
	}
	out.rules = append(out.rules, inner.rules...)
	return out, nil
}

// compileConditional handles @media and @supports. Inside a style rule the
// block bubbles up, wrapping the current selectors.
func compileConditional(n *node, name, query string, f frame) (body, error) {
	q, err := evalValue(query, f.scope, n.line)
	if err != nil {
		return body{}, err
	}

	nf := f
	nf.scope = newScope(f.scope)
	nf.propPrefix = ""
	inner, err := compileNodes(n.children, nf)
	if err != nil {
		return body{}, err
	}

	var parts []string
	if len(inner.decls) > 0 {
		visible := visibleSelectors(f.selectors)
		if len(visible) == 0 {
			return body{}, &SyntaxError{Line: n.line, Msg: "declarations may only be used within style rules"}
		}
		parts = append(parts, strings.Join(visible, ",")+"{"+strings.Join(inner.decls, ";")+"}")
	}
	parts = append(parts, inner.rules...)
	if len(parts) == 0 {
		return body{}, nil
	}

	return body{rules: []string{"@" + name + " " + q + "{" + strings.Join(parts, "") + "}"}}, nil
}

// compileAtBlock handles @font-face, @keyframes, @page and friends: the body
// is compiled from scratch, without parent selectors.
func compileAtBlock(n *node, name, rest string, f frame) (body, error) {
	prelude, err := evalValue(rest, f.scope, n.line)
	if err != nil {
		return body{}, err
	}

	nf := frame{
		scope:      newScope(f.scope),
		allowDecls: true,
		content:    f.content,
		depth:      f.depth,
	}
	inner, err := compileNodes(n.children, nf)
	if err != nil {
		return body{}, err
	}

	head := "@" + name
	if prelude != "" {
		head += " " + prelude
	}
	parts := strings.Join(inner.decls, ";") + strings.Join(inner.rules, "")
	return body{rules: []string{head + "{" + parts + "}"}}, nil
}

func declareVariable(n *node, sc *scope) error {
	colon := strings.IndexByte(n.text, ':')
	if colon < 0 {
		return &SyntaxError{Line: n.line, Msg: fmt.Sprintf("expected ':' in %q", n.text)}
	}
	name := normalizeName(strings.TrimSpace(n.text[1:colon]))
	raw := strings.TrimSpace(n.text[colon+1:])

	var isDefault, isGlobal bool
	for {
		switch {
		case strings.HasSuffix(raw, "!default"):
			isDefault = true
			raw = strings.TrimSpace(strings.TrimSuffix(raw, "!default"))
			continue
		case strings.HasSuffix(raw, "!global"):
			isGlobal = true
			raw = strings.TrimSpace(strings.TrimSuffix(raw, "!global"))
			continue
		}
		break
	}

	target := sc
	if isGlobal {
		target = sc.root()
	}
	if isDefault {
		if _, ok := target.lookup(name); ok {
			return nil
		}
	}

	value, err := evalValue(raw, sc, n.line)
	if err != nil {
		return err
	}
	// Without !global a declaration inside a block shadows outer variables.
	target.vars[name] = value
	return nil
}

func defineMixin(n *node, rest string, sc *scope) error {
	name, args := splitCall(rest)
	if name == "" {
		return &SyntaxError{Line: n.line, Msg: "@mixin requires a name"}
	}

	m := &mixin{name: normalizeName(name), body: n.children, scope: sc}
	for _, a := range args {
		a = strings.TrimSpace(a)
		if !strings.HasPrefix(a, "$") {
			return &SyntaxError{Line: n.line, Msg: fmt.Sprintf("invalid mixin parameter %q", a)}
		}
		p := param{name: a[1:]}
		if i := strings.IndexByte(a, ':'); i >= 0 {
			p.name = a[1:i]
			p.def = strings.TrimSpace(a[i+1:])
			p.hasDef = true
		}
		p.name = normalizeName(strings.TrimSpace(p.name))
		m.params = append(m.params, p)
	}

	sc.mixins[m.name] = m
	return nil
}

func include(n *node, rest string, block *content, f frame) (body, error) {
	if f.depth >= maxIncludeDepth {
		return body{}, &SyntaxError{Line: n.line, Msg: "@include nested too deeply"}
	}

	name, args := splitCall(rest)
	m, ok := f.scope.mixin(normalizeName(name))
	if !ok {
		return body{}, &SyntaxError{Line: n.line, Msg: fmt.Sprintf("undefined mixin %q", name)}
	}

	ms := newScope(m.scope)
	bound := map[string]bool{}
	positional := 0
	for _, a := range args {
		a = strings.TrimSpace(a)
		if strings.HasPrefix(a, "$") && indexTopLevel(a, ':') > 0 {
			i := indexTopLevel(a, ':')
			key := normalizeName(strings.TrimSpace(a[1:i]))
			v, err := evalValue(a[i+1:], f.scope, n.line)
			if err != nil {
				return body{}, err
			}
			ms.vars[key] = v
			bound[key] = true
			continue
		}
		if positional >= len(m.params) {
			return body{}, &SyntaxError{Line: n.line, Msg: fmt.Sprintf("too many arguments for mixin %q", name)}
		}
		v, err := evalValue(a, f.scope, n.line)
		if err != nil {
			return body{}, err
		}
		p := m.params[positional]
		ms.vars[p.name] = v
		bound[p.name] = true
		positional++
	}
	for _, p := range m.params {
		if bound[p.name] {
			continue
		}
		if !p.hasDef {
			return body{}, &SyntaxError{Line: n.line, Msg: fmt.Sprintf("missing argument $%s for mixin %q", p.name, name)}
		}
		v, err := evalValue(p.def, ms, n.line)
		if err != nil {
			return body{}, err
		}
		ms.vars[p.name] = v
	}

	nf := f
	nf.scope = ms
	nf.content = block
	nf.depth = f.depth + 1
	return compileNodes(m.body, nf)
}

// resolveSelectors combines parent and child selector lists. A child with '&'
// substitutes the parent; otherwise it becomes a descendant.
func resolveSelectors(parents []string, sel string, line int) ([]string, error) {
	var out []string
	for _, child := range splitTopLevel(sel, ',') {
		child = collapseSpace(child)
		if child == "" {
			return nil, &SyntaxError{Line: line, Msg: "empty selector"}
		}
		if len(parents) == 0 {
			if strings.Contains(child, "&") {
				return nil, &SyntaxError{Line: line, Msg: "top-level selectors may not contain the parent selector \"&\""}
			}
			out = append(out, child)
			continue
		}
		for _, p := range parents {
			if strings.Contains(child, "&") {
				out = append(out, strings.ReplaceAll(child, "&", p))
			} else {
				out = append(out, p+" "+child)
			}
		}
	}
	return out, nil
}

// visibleSelectors drops %placeholder selectors, which only exist for @extend.
func visibleSelectors(sels []string) []string {
	var out []string
	for _, s := range sels {
		if !strings.Contains(s, "%") {
			out = append(out, s)
		}
	}
	return out
}

func atName(text string) (name, rest string) {
	text = text[1:]
	i := 0
	for i < len(text) && (isNameChar(text[i])) {
		i++
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// splitCall splits "name(a, b)" into name and arguments.
func splitCall(s string) (string, []string) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, nil
	}
	name := strings.TrimSpace(s[:open])
	inner := strings.TrimSpace(s[open+1:])
	inner = strings.TrimSuffix(inner, ")")
	if strings.TrimSpace(inner) == "" {
		return name, nil
	}
	return name, splitTopLevel(inner, ',')
}

func unsupported(n *node, directive string) error {
	return &SyntaxError{Line: n.line, Msg: fmt.Sprintf("@%s is not supported by the builtin compiler", directive)}
}
