package scss

import (
	"fmt"
	"strings"
)

// node is either a statement (text ends at ';') or a block (text is the
// prelude before '{').
type node struct {
	block    bool
	text     string
	line     int
	children []*node
}

// SyntaxError reports a malformed stylesheet.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// stripComments removes /* */ and // comments. Newlines inside block comments
// are kept so line numbers stay accurate.
func stripComments(src string) (string, error) {
	var b strings.Builder
	b.Grow(len(src))
	line := 1

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			j, err := scanString(src, i, line)
			if err != nil {
				return "", err
			}
			b.WriteString(src[i:j])
			i = j
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", &SyntaxError{Line: line, Msg: "unterminated comment"}
			}
			comment := src[i : i+2+end+2]
			n := strings.Count(comment, "\n")
			b.WriteString(strings.Repeat("\n", n))
			line += n
			i += len(comment)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case hasURLPrefix(src[i:]):
			// url(http://...) is not a comment
			j := strings.IndexByte(src[i:], ')')
			if j < 0 {
				j = len(src) - i - 1
			}
			b.WriteString(src[i : i+j+1])
			line += strings.Count(src[i:i+j+1], "\n")
			i += j + 1
		default:
			if c == '\n' {
				line++
			}
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), nil
}

func hasURLPrefix(s string) bool {
	return len(s) >= 4 && strings.EqualFold(s[:4], "url(")
}

// scanString returns the index just past the string literal starting at i.
func scanString(src string, i, line int) (int, error) {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '\n':
			return 0, &SyntaxError{Line: line, Msg: "unterminated string"}
		case quote:
			return j + 1, nil
		}
	}
	return 0, &SyntaxError{Line: line, Msg: "unterminated string"}
}

type parser struct {
	src  string
	pos  int
	line int
}

// parse turns comment-free source into a statement/block tree.
func parse(src string) ([]*node, error) {
	p := &parser{src: src, line: 1}
	return p.parseBlock(true)
}

func (p *parser) parseBlock(top bool) ([]*node, error) {
	var (
		nodes     []*node
		buf       strings.Builder
		startLine int
		parens    int
		interp    int
	)

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			nodes = append(nodes, &node{text: text, line: startLine})
		}
		buf.Reset()
		startLine = 0
	}
	write := func(s string) {
		if startLine == 0 && strings.TrimSpace(s) != "" {
			startLine = p.line
		}
		buf.WriteString(s)
	}

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"' || c == '\'':
			j, err := scanString(p.src, p.pos, p.line)
			if err != nil {
				return nil, err
			}
			write(p.src[p.pos:j])
			p.pos = j
		case c == '\n':
			buf.WriteByte(c)
			p.line++
			p.pos++
		case c == '#' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '{':
			interp++
			write("#{")
			p.pos += 2
		case c == '}' && interp > 0:
			interp--
			write("}")
			p.pos++
		case c == '(':
			parens++
			write("(")
			p.pos++
		case c == ')':
			if parens == 0 {
				return nil, &SyntaxError{Line: p.line, Msg: "unexpected )"}
			}
			parens--
			write(")")
			p.pos++
		case parens > 0:
			write(string(c))
			p.pos++
		case c == ';':
			flush()
			p.pos++
		case c == '{':
			prelude := strings.TrimSpace(buf.String())
			line := startLine
			if line == 0 {
				line = p.line
			}
			buf.Reset()
			startLine = 0
			p.pos++
			children, err := p.parseBlock(false)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &node{block: true, text: prelude, line: line, children: children})
		case c == '}':
			if top {
				return nil, &SyntaxError{Line: p.line, Msg: "unexpected }"}
			}
			p.pos++
			flush()
			return nodes, nil
		default:
			write(string(c))
			p.pos++
		}
	}

	if parens > 0 {
		return nil, &SyntaxError{Line: p.line, Msg: "unclosed ("}
	}
	if interp > 0 {
		return nil, &SyntaxError{Line: p.line, Msg: "unclosed interpolation"}
	}
	if !top {
		return nil, &SyntaxError{Line: p.line, Msg: "expected }"}
	}
	flush()
	return nodes, nil
}

// splitTopLevel splits s on sep outside strings, parentheses and
// interpolation.
func splitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"' || c == '\'':
			if j, err := scanString(s, i, 0); err == nil {
				i = j - 1
			}
		case c == '(' || c == '{' || c == '[':
			depth++
		case c == ')' || c == '}' || c == ']':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// indexTopLevel returns the first index of sep outside nesting, or -1.
func indexTopLevel(s string, sep byte) int {
	parts := splitTopLevel(s, sep)
	if len(parts) < 2 {
		return -1
	}
	return len(parts[0])
}
