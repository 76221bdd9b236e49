package scss

import (
	"fmt"
	"strings"
)

// cssFunctions are the functions a plain CSS value may call. Anything else
// (darken, map-get, if, math.div, ...) is a Sass function.
var cssFunctions = map[string]bool{
	"rgb": true, "rgba": true, "hsl": true, "hsla": true, "hwb": true,
	"lab": true, "lch": true, "oklab": true, "oklch": true, "color": true,
	"color-mix": true, "light-dark": true, "device-cmyk": true,

	"url": true, "var": true, "env": true, "attr": true,
	"counter": true, "counters": true, "format": true, "local": true, "tech": true,
	"image": true, "image-set": true, "cross-fade": true, "element": true, "paint": true,

	"linear-gradient": true, "radial-gradient": true, "conic-gradient": true,
	"repeating-linear-gradient": true, "repeating-radial-gradient": true,
	"repeating-conic-gradient": true,

	"matrix": true, "matrix3d": true, "perspective": true,
	"translate": true, "translate3d": true, "translatex": true, "translatey": true, "translatez": true,
	"rotate": true, "rotate3d": true, "rotatex": true, "rotatey": true, "rotatez": true,
	"scale": true, "scale3d": true, "scalex": true, "scaley": true, "scalez": true,
	"skew": true, "skewx": true, "skewy": true,

	"cubic-bezier": true, "steps": true, "linear": true,

	"blur": true, "brightness": true, "contrast": true, "drop-shadow": true,
	"grayscale": true, "hue-rotate": true, "invert": true, "opacity": true,
	"saturate": true, "sepia": true,

	"repeat": true, "minmax": true, "fit-content": true,

	"inset": true, "circle": true, "ellipse": true, "polygon": true, "path": true,
	"rect": true, "xywh": true,

	"selector": true, "supports": true, "layer": true, "style": true,
	"not": true, "and": true, "or": true,
}

// mathFunctions take CSS math expressions, so operators inside them are
// left for the browser.
var mathFunctions = map[string]bool{
	"calc": true, "min": true, "max": true, "clamp": true,
	"round": true, "mod": true, "rem": true, "abs": true, "sign": true,
	"sin": true, "cos": true, "tan": true, "asin": true, "acos": true,
	"atan": true, "atan2": true, "pow": true, "sqrt": true, "hypot": true,
	"log": true, "exp": true,
	"var": true, "env": true, "attr": true,
}

// opaqueFunctions hold raw text (urls, selectors) that is never inspected.
var opaqueFunctions = map[string]bool{"url": true, "selector": true}

var vendorPrefixes = []string{"-webkit-", "-moz-", "-ms-", "-o-"}

// checkValue rejects values that only a full Sass evaluator could compile:
// calls to functions outside the CSS set and arithmetic outside CSS math
// functions. A literal slash between plain values (font: 12px/1.5,
// grid-row: 1 / 3) is CSS and stays.
func checkValue(raw string, line int) error {
	type group struct {
		bare bool
		math bool
	}
	var stack []group
	bareEnd := -1

	inMath := func() bool {
		for _, g := range stack {
			if g.math {
				return true
			}
		}
		return false
	}
	arithmetic := func(op byte) error {
		return &SyntaxError{Line: line, Msg: fmt.Sprintf("arithmetic (%q) is not supported", string(op))}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '"' || c == '\'':
			j, err := scanString(raw, i, line)
			if err != nil {
				return err
			}
			i = j - 1

		case c == '#' && i+1 < len(raw) && raw[i+1] == '{':
			end := matchBrace(raw, i+1)
			if end < 0 {
				return nil
			}
			i = end

		case c == '(':
			name := callName(raw, i)
			if name == "" {
				stack = append(stack, group{bare: true})
				continue
			}
			if strings.Trim(name, "-") == "" {
				return arithmetic('-')
			}
			fn := strings.ToLower(stripVendor(name))
			if !cssFunctions[fn] && !mathFunctions[fn] {
				return &SyntaxError{Line: line, Msg: fmt.Sprintf("function %s() is not supported", name)}
			}
			if opaqueFunctions[fn] {
				end := matchParen(raw, i)
				if end < 0 {
					return nil
				}
				i = end
				continue
			}
			stack = append(stack, group{math: mathFunctions[fn]})

		case c == ')':
			if n := len(stack); n > 0 {
				if stack[n-1].bare {
					bareEnd = i
				}
				stack = stack[:n-1]
			}

		case inMath():

		case c == '*':
			return arithmetic(c)

		case c == '%' || c == '-' || c == '+':
			if standalone(raw, i) {
				return arithmetic(c)
			}
			if c == '-' && i > 0 && isOperand(raw[i-1]) && i+1 < len(raw) && raw[i+1] == '$' {
				return arithmetic(c)
			}
			if c == '+' && joinsOperands(raw, i) {
				return arithmetic(c)
			}

		case c == '/':
			l := prevNonSpace(raw, i)
			r := nextNonSpace(raw, i)
			if l >= 0 && (l == bareEnd || endsVariable(raw, l)) {
				return arithmetic(c)
			}
			if r < len(raw) && (raw[r] == '$' || raw[r] == '(') {
				return arithmetic(c)
			}
		}
	}
	return nil
}

// callName returns the identifier directly before the '(' at open, or "" for
// a bare parenthesized group.
func callName(s string, open int) string {
	k := open
	for k > 0 && (isNameChar(s[k-1]) || s[k-1] == '.') {
		k--
	}
	return s[k:open]
}

func stripVendor(name string) string {
	lower := strings.ToLower(name)
	for _, p := range vendorPrefixes {
		if strings.HasPrefix(lower, p) {
			return name[len(p):]
		}
	}
	return name
}

// matchParen returns the index of the ')' matching the '(' at open.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// standalone reports whether s[i] is a word of its own.
func standalone(s string, i int) bool {
	before := i == 0 || isSpace(s[i-1]) || s[i-1] == '(' || s[i-1] == ','
	after := i+1 == len(s) || isSpace(s[i+1]) || s[i+1] == ')' || s[i+1] == ','
	return before && after
}

// joinsOperands reports whether the '+' at i sits between two operands, as in
// 1px+2px or $a+$b. Exponents (1e+3) and unicode ranges (U+0025-00FF) are
// plain CSS.
func joinsOperands(s string, i int) bool {
	if i == 0 || i+1 == len(s) {
		return false
	}
	prev, next := s[i-1], s[i+1]
	if !isOperand(prev) {
		return false
	}
	if !(isDigit(next) || next == '$' || next == '(' || next == '.') {
		return false
	}
	if (prev == 'e' || prev == 'E') && i >= 2 && isDigit(s[i-2]) {
		return false
	}
	start := i
	for start > 0 && !isSpace(s[start-1]) && s[start-1] != ',' && s[start-1] != '(' {
		start--
	}
	return !(i-start == 1 && (s[start] == 'u' || s[start] == 'U'))
}

// isOperand reports whether c can end a number, variable or group.
func isOperand(c byte) bool {
	return isNameChar(c) || c == ')' || c == '%'
}

// endsVariable reports whether the word ending at s[end] is a $variable.
func endsVariable(s string, end int) bool {
	k := end
	for k >= 0 && isNameChar(s[k]) {
		k--
	}
	return k >= 0 && k < end && s[k] == '$'
}

func prevNonSpace(s string, i int) int {
	j := i - 1
	for j >= 0 && isSpace(s[j]) {
		j--
	}
	return j
}

func nextNonSpace(s string, i int) int {
	j := i + 1
	for j < len(s) && isSpace(s[j]) {
		j++
	}
	return j
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
