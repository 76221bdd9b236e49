package scss

import (
	"fmt"
	"strings"
)

// evalValue substitutes $variables and #{} interpolation and collapses
// whitespace outside string literals. Values that need Sass evaluation
// (arithmetic, Sass functions) are rejected instead of copied through.
func evalValue(raw string, sc *scope, line int) (string, error) {
	if err := checkValue(raw, line); err != nil {
		return "", err
	}
	return expand(raw, sc, line, true)
}

// interpolate only resolves #{} (selectors and property names).
func interpolate(raw string, sc *scope, line int) (string, error) {
	return expand(raw, sc, line, false)
}

func expand(raw string, sc *scope, line int, vars bool) (string, error) {
	var b strings.Builder
	space := false

	emit := func(s string) {
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteString(s)
	}

	for i := 0; i < len(raw); {
		c := raw[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			space = true
			i++

		case c == '"' || c == '\'':
			j, err := scanString(raw, i, line)
			if err != nil {
				return "", err
			}
			inner, err := interpolateString(raw[i+1:j-1], sc, line)
			if err != nil {
				return "", err
			}
			emit(string(c) + inner + string(c))
			i = j

		case c == '#' && i+1 < len(raw) && raw[i+1] == '{':
			end := matchBrace(raw, i+1)
			if end < 0 {
				return "", &SyntaxError{Line: line, Msg: "unclosed interpolation"}
			}
			v, err := evalValue(raw[i+2:end], sc, line)
			if err != nil {
				return "", err
			}
			emit(unquote(v))
			i = end + 1

		case vars && c == '$' && i+1 < len(raw) && isNameStart(raw[i+1]):
			j := i + 1
			for j < len(raw) && isNameChar(raw[j]) {
				j++
			}
			name := normalizeName(raw[i+1 : j])
			v, ok := sc.lookup(name)
			if !ok {
				return "", &SyntaxError{Line: line, Msg: fmt.Sprintf("undefined variable $%s", raw[i+1:j])}
			}
			emit(v)
			i = j

		default:
			j := i
			for j < len(raw) && !isBreak(raw[j], vars) {
				j++
			}
			if j == i {
				j++
			}
			emit(raw[i:j])
			i = j
		}
	}

	return b.String(), nil
}

// interpolateString resolves #{} inside a quoted string body.
func interpolateString(s string, sc *scope, line int) (string, error) {
	if !strings.Contains(s, "#{") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '#' && i+1 < len(s) && s[i+1] == '{' {
			end := matchBrace(s, i+1)
			if end < 0 {
				return "", &SyntaxError{Line: line, Msg: "unclosed interpolation"}
			}
			v, err := evalValue(s[i+2:end], sc, line)
			if err != nil {
				return "", err
			}
			b.WriteString(unquote(v))
			i = end + 1
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String(), nil
}

// matchBrace returns the index of the '}' matching the '{' at open.
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isBreak(c byte, vars bool) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '"', '\'', '#':
		return true
	case '$':
		return vars
	}
	return false
}

func isNameStart(c byte) bool {
	return c == '_' || c == '-' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9'
}

// normalizeName treats '_' and '-' as the same character in identifiers.
func normalizeName(s string) string {
	return strings.ReplaceAll(s, "_", "-")
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
