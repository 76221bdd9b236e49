package scss

import (
	"errors"
	"strings"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "plain css",
			src:  "a { color: red; }\nb{margin:0 auto}",
			want: "a{color:red}\nb{margin:0 auto}",
		},
		{
			name: "variables and nesting",
			src: `$primary: #336699;
$pad: 4px !default;

.nav {
  color: $primary;
  ul { margin: 0; }
  &:hover { color: red; }
  &-item, .link { padding: $pad 2px; }
}`,
			want: ".nav{color:#336699}\n.nav ul{margin:0}\n.nav:hover{color:red}\n.nav-item,.nav .link{padding:4px 2px}",
		},
		{
			name: "default does not override",
			src:  "$c: red;\n$c: blue !default;\na { color: $c; }",
			want: "a{color:red}",
		},
		{
			name: "block variables shadow",
			src:  "$c: red;\n.a { $c: blue; color: $c; }\n.b { color: $c; }",
			want: ".a{color:blue}\n.b{color:red}",
		},
		{
			name: "global assignment",
			src:  "$c: red;\n.a { $c: blue !global; color: $c; }\n.b { color: $c; }",
			want: ".a{color:blue}\n.b{color:blue}",
		},
		{
			name: "underscore and dash are equivalent",
			src:  "$main_color: teal;\na { color: $main-color; }",
			want: "a{color:teal}",
		},
		{
			name: "mixin with default and content",
			src: `@mixin button($bg, $fg: white) {
  background: $bg;
  color: $fg;
  @content;
}
.btn { @include button(blue) { border: 0; } }`,
			want: ".btn{background:blue;color:white;border:0}",
		},
		{
			name: "mixin keyword arguments",
			src: `@mixin box($w, $h: 1px) { width: $w; height: $h; }
.x { @include box($h: 3px, $w: 2px); }`,
			want: ".x{width:2px;height:3px}",
		},
		{
			name: "mixin emitting nested rules",
			src: `@mixin hoverable { &:hover { opacity: .5; } }
a { color: red; @include hoverable; }`,
			want: "a{color:red}\na:hover{opacity:.5}",
		},
		{
			name: "media bubbling",
			src:  ".a { color: red; @media (max-width: 600px) { color: blue; } }",
			want: ".a{color:red}\n@media (max-width: 600px){.a{color:blue}}",
		},
		{
			name: "top level media",
			src:  "$bp: 40em;\n@media screen and (min-width: $bp) { .a { .b { float: left; } } }",
			want: "@media screen and (min-width: 40em){.a .b{float:left}}",
		},
		{
			name: "keyframes",
			src:  "@keyframes spin { from { transform: rotate(0deg); } to { transform: rotate(360deg); } }",
			want: "@keyframes spin{from{transform:rotate(0deg)}to{transform:rotate(360deg)}}",
		},
		{
			name: "font face",
			src:  "@font-face { font-family: \"Inter\"; src: url(/fonts/inter.woff2); }",
			want: "@font-face{font-family:\"Inter\";src:url(/fonts/inter.woff2)}",
		},
		{
			name: "interpolation",
			src:  "$side: left;\n.m-#{$side} { margin-#{$side}: 1px; content: \"#{$side}\"; }",
			want: ".m-left{margin-left:1px;content:\"left\"}",
		},
		{
			name: "nested properties",
			src:  "a { font: { family: serif; size: 12px; } }",
			want: "a{font-family:serif;font-size:12px}",
		},
		{
			name: "comments",
			src:  "/* header\n */\na { // trailing\n color: red; /* inline */ }",
			want: "a{color:red}",
		},
		{
			name: "url with double slash is not a comment",
			src:  "a { background: url(http://example.com/a.png); }",
			want: "a{background:url(http://example.com/a.png)}",
		},
		{
			name: "semicolon inside data url",
			src:  "a { background: url(data:image/png;base64,AAAA); }",
			want: "a{background:url(data:image/png;base64,AAAA)}",
		},
		{
			name: "placeholder rules are dropped",
			src:  "%base { color: red; }\na { color: blue; }",
			want: "a{color:blue}",
		},
		{
			name: "plain css import passes through",
			src:  "@import url(\"theme.css\");\na { color: red; }",
			want: "@import url(\"theme.css\");\na{color:red}",
		},
		{
			name: "empty rules produce nothing",
			src:  "a { }\nb { c { } }",
			want: "",
		},
		{
			name: "child combinator",
			src:  "ul { > li { list-style: none; } + p { margin: 0; } }",
			want: "ul > li{list-style:none}\nul + p{margin:0}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.src)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compile() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{name: "undefined variable", src: "a { color: $missing; }", wantMsg: "undefined variable $missing"},
		{name: "unclosed block", src: "a { color: red;", wantMsg: "expected }"},
		{name: "stray brace", src: "a { color: red; } }", wantMsg: "unexpected }"},
		{name: "unterminated string", src: "a { content: \"oops; }", wantMsg: "unterminated string"},
		{name: "unterminated comment", src: "a { /* color: red; }", wantMsg: "unterminated comment"},
		{name: "top level declaration", src: "color: red;", wantMsg: "declarations may only be used within style rules"},
		{name: "control flow", src: "@if $x { a { color: red; } }", wantMsg: "@if is not supported"},
		{name: "module system", src: "@use \"sass:math\";", wantMsg: "@use is not supported"},
		{name: "undefined mixin", src: "a { @include nope; }", wantMsg: "undefined mixin"},
		{name: "missing mixin argument", src: "@mixin m($a) { b: $a; }\na { @include m; }", wantMsg: "missing argument $a"},
		{name: "error directive", src: "@error \"boom\";", wantMsg: "@error boom"},
		{name: "parent selector at root", src: "&:hover { color: red; }", wantMsg: "parent selector"},
		{name: "not a declaration", src: "a { color red; }", wantMsg: "expected declaration"},
		{name: "template leftovers", src: "a { color: {{ .data.query.c }}; }", wantMsg: ""},
		{name: "multiplication", src: "$w: 10px;\n.a { width: $w * 2; }", wantMsg: "arithmetic"},
		{name: "addition", src: "$a: 1px; $b: 2px;\n.a { margin: $a + $b; }", wantMsg: "arithmetic"},
		{name: "addition without spaces", src: ".a { margin: 1px+2px; }", wantMsg: "arithmetic"},
		{name: "subtraction", src: "$a: 4px;\n.a { margin: $a - 1px; }", wantMsg: "arithmetic"},
		{name: "modulo", src: ".a { width: 10 % 3; }", wantMsg: "arithmetic"},
		{name: "division by variable", src: "$a: 4px;\n.a { width: $a/2; }", wantMsg: "arithmetic"},
		{name: "division of group", src: ".a { width: (10px + 2px) / 2; }", wantMsg: "arithmetic"},
		{name: "arithmetic in mixin argument", src: "@mixin m($a) { b: $a; }\n.a { @include m(2px * 3); }", wantMsg: "arithmetic"},
		{name: "arithmetic in media query", src: "$bp: 40em;\n@media (min-width: $bp + 1) { .a { b: c; } }", wantMsg: "arithmetic"},
		{name: "arithmetic in css function", src: "$x: 4px;\n.a { transform: translate($x * 2, 0); }", wantMsg: "arithmetic"},
		{name: "darken", src: "$c: #336699;\n.a { color: darken($c, 10%); }", wantMsg: "function darken() is not supported"},
		{name: "percentage", src: ".a { width: percentage(0.5); }", wantMsg: "function percentage() is not supported"},
		{name: "map-get", src: ".a { width: map-get($m, k); }", wantMsg: "function map-get() is not supported"},
		{name: "if function", src: ".a { color: if(true, red, blue); }", wantMsg: "function if() is not supported"},
		{name: "module function", src: ".a { width: math.div(10px, 2); }", wantMsg: "function math.div() is not supported"},
		{name: "sass function nested in css function", src: ".a { background: linear-gradient(lighten(red, 5%), red); }", wantMsg: "function lighten() is not supported"},
		{name: "sass function in variable", src: "$c: mix(red, blue);\n.a { color: $c; }", wantMsg: "function mix() is not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			if err == nil {
				t.Fatal("Compile() expected error")
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Errorf("expected *SyntaxError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCompile_CSSValuesPassThrough(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "font shorthand", value: "italic 12px/1.5 serif"},
		{name: "grid line", value: "1 / 3"},
		{name: "aspect ratio", value: "16 / 9"},
		{name: "calc", value: "calc(100% - 10px)"},
		{name: "nested math", value: "clamp(1rem, 2vw + 1rem, calc(3rem * 2))"},
		{name: "rgba", value: "rgba(0,0,0,.5)"},
		{name: "space separated color", value: "rgb(0 0 0 / 50%)"},
		{name: "negative offsets", value: "translate(-50%, -50%)"},
		{name: "gradient", value: "linear-gradient(to right, #fff 0%, #000 100%)"},
		{name: "custom property", value: "var(--gap, 4px)"},
		{name: "vendor prefix", value: "-webkit-linear-gradient(top, red, blue)"},
		{name: "url with operators", value: "url(/img/a+b*c.png)"},
		{name: "unicode range", value: "U+0025-00FF"},
		{name: "exponent", value: "1e+3px"},
		{name: "easing", value: "cubic-bezier(.17,.67,.83,.67)"},
		{name: "grid tracks", value: "repeat(auto-fill, minmax(120px, 1fr))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(".a { b: " + tt.value + "; }")
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if want := ".a{b:" + tt.value + "}"; got != want {
				t.Errorf("Compile() = %s, want %s", got, want)
			}
		})
	}
}

func TestCompile_InterpolatedSlash(t *testing.T) {
	got, err := Compile("$size: 12px; $lh: 1.5;\n.a { font: #{$size}/#{$lh} serif; margin: 0 -$size; }")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if want := ".a{font:12px/1.5 serif;margin:0 -12px}"; got != want {
		t.Errorf("Compile() = %s, want %s", got, want)
	}
}

func TestCompile_ErrorLine(t *testing.T) {
	_, err := Compile("a {\n  color: red;\n  width: $w;\n}")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
	if se.Line != 3 {
		t.Errorf("Line = %d, want 3", se.Line)
	}
}

func TestCompile_RecursiveMixin(t *testing.T) {
	_, err := Compile("@mixin loop { @include loop; }\na { @include loop; }")
	if err == nil || !strings.Contains(err.Error(), "nested too deeply") {
		t.Errorf("expected depth error, got %v", err)
	}
}
