package parser_test

import (
	"errors"
	"strings"
	"testing"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/parser"
)

func parseModule(t *testing.T, source string) *ast.Module {
	t.Helper()
	mod, err := parser.NewModuleParser().ParseModule([]byte(source))
	if err != nil {
		t.Fatalf("ParseModule returned error: %v", err)
	}
	if mod == nil {
		t.Fatalf("ParseModule returned nil module")
	}
	return mod
}

func TestParseModuleIgnoresComments(t *testing.T) {
	mod := parseModule(t, `
// Leading comment
package sample;

/* block
   comment */
pub fn Identity ::= {Input. Input};
`)
	if mod.Package == nil || ast.JoinPath(mod.Package.NamePath) != "sample" {
		t.Fatalf("expected package sample, got %#v", mod.Package)
	}
	if len(mod.Body) != 1 {
		t.Fatalf("expected single statement in module body, got %d", len(mod.Body))
	}
	def, ok := mod.Body[0].(*ast.Definition)
	if !ok {
		t.Fatalf("expected first body element to be Definition, got %T", mod.Body[0])
	}
	if def.IsPrivate {
		t.Fatalf("expected pub definition")
	}
	if got := ast.FormatDefinition(def); got != "pub fn Identity ::= {Input. Input};" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestParseDefinitionShapes(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "constant with type parameter",
			source: "pub fn Constant<I> ::= {_Ignored. I};",
			want:   "pub fn Constant<I> ::= {_Ignored. I};",
		},
		{
			name:   "juxtaposed body",
			source: "pub fn Sheinfinkel ::= {X. Y. Z. X Z {Y Z}};",
			want:   "pub fn Sheinfinkel ::= {X. Y. Z. X, Z, {Y, Z}};",
		},
		{
			name:   "parenthesised single item collapses",
			source: "fn FirstOf ::= {Input. (Constant<Input>)};",
			want:   "fn FirstOf ::= {Input. Constant<Input>};",
		},
		{
			name:   "zero parameters",
			source: "pub fn Nil ::= {Constant<True>};",
			want:   "pub fn Nil ::= {Constant<True>};",
		},
		{
			name:   "nested instantiation closes with double angle",
			source: "pub fn Null ::= {P. {P, Constant<Constant<False>>}};",
			want:   "pub fn Null ::= {P. P, Constant<Constant<False>>};",
		},
		{
			name:   "preconditions with trailing comma",
			source: "pub fn Composed<F, G> ::= {Input. {F, {G, Input}}} where G: Input, F: {G, Input},;",
			want:   "pub fn Composed<F, G> ::= {Input. F, {G, Input}} where G: Input, F: {G, Input};",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod := parseModule(t, tc.source)
			if len(mod.Body) != 1 {
				t.Fatalf("expected one statement, got %d", len(mod.Body))
			}
			def, ok := mod.Body[0].(*ast.Definition)
			if !ok {
				t.Fatalf("expected Definition, got %T", mod.Body[0])
			}
			if got := ast.FormatDefinition(def); got != tc.want {
				t.Fatalf("rendering mismatch\n got: %s\nwant: %s", got, tc.want)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	mod := parseModule(t, `
package demo.numbers;
import prelude;
pub atom Red, Green;
atom Hidden;
eval ToNumber {Add Two Three};
assert If {Eq Three Three} "A" "B" == "A";
`)
	if got := ast.JoinPath(mod.Package.NamePath); got != "demo.numbers" {
		t.Fatalf("expected dotted package path, got %q", got)
	}
	if len(mod.Imports) != 1 || ast.JoinPath(mod.Imports[0].PackagePath) != "prelude" {
		t.Fatalf("unexpected imports %#v", mod.Imports)
	}
	if len(mod.Body) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(mod.Body))
	}
	atoms, ok := mod.Body[0].(*ast.AtomDeclaration)
	if !ok || len(atoms.Names) != 2 || atoms.IsPrivate {
		t.Fatalf("unexpected atom declaration %#v", mod.Body[0])
	}
	hidden, ok := mod.Body[1].(*ast.AtomDeclaration)
	if !ok || !hidden.IsPrivate {
		t.Fatalf("expected private atom declaration, got %#v", mod.Body[1])
	}
	eval, ok := mod.Body[2].(*ast.EvalStatement)
	if !ok {
		t.Fatalf("expected EvalStatement, got %T", mod.Body[2])
	}
	if got := ast.Format(eval.Expression); got != "{ToNumber, {Add, Two, Three}}" {
		t.Fatalf("unexpected eval expression %s", got)
	}
	assert, ok := mod.Body[3].(*ast.AssertStatement)
	if !ok {
		t.Fatalf("expected AssertStatement, got %T", mod.Body[3])
	}
	if got := ast.Format(assert.Actual); got != `{If, {Eq, Three, Three}, "A", "B"}` {
		t.Fatalf("unexpected assert lhs %s", got)
	}
	if got := ast.Format(assert.Expected); got != `"A"` {
		t.Fatalf("unexpected assert rhs %s", got)
	}
}

func TestParseExpressionFlattensCommaAndJuxtaposition(t *testing.T) {
	mp := parser.NewModuleParser()
	for _, src := range []string{
		"a, b, {c, {d, e}, f}, g, h",
		"a b {c {d e} f} g h",
		"a b (c (d, e) f) g h;",
	} {
		expr, err := mp.ParseExpression([]byte(src))
		if err != nil {
			t.Fatalf("ParseExpression(%q): %v", src, err)
		}
		if got := ast.Format(expr); got != "{a, b, {c, {d, e}, f}, g, h}" {
			t.Fatalf("ParseExpression(%q) = %s", src, got)
		}
	}
}

func TestParseExpressionMatchesBuiltTree(t *testing.T) {
	expr, err := parser.NewModuleParser().ParseExpression([]byte(`If {Eq Three Three} "A" Constant<B, 2>`))
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}
	want := ast.App(ast.ID("If"), ast.Call("Eq", "Three", "Three"), ast.Str("A"), ast.Inst("Constant", ast.ID("B"), ast.Num(2)))
	if got := ast.Format(expr); got != ast.Format(want) {
		t.Fatalf("ParseExpression = %s, want %s", got, ast.Format(want))
	}
}

func TestParseChainedInstantiation(t *testing.T) {
	mp := parser.NewModuleParser()
	cases := map[string]string{
		"Composed<<A, B>>":          "Composed<A, B>",
		"Composed<<A, B, C, D>>":    "Composed<A, Composed<B, Composed<C, D>>>",
		"Composed<<Pair<X>, B, C>>": "Composed<Pair<X>, Composed<B, C>>",
		"F Composed<<A, B, C>> Z":   "{F, Composed<A, Composed<B, C>>, Z}",
	}
	for src, want := range cases {
		expr, err := mp.ParseExpression([]byte(src))
		if err != nil {
			t.Fatalf("ParseExpression(%q): %v", src, err)
		}
		if got := ast.Format(expr); got != want {
			t.Fatalf("ParseExpression(%q) = %s, want %s", src, got, want)
		}
	}
	if _, err := mp.ParseExpression([]byte("Composed<<A>>")); !errors.Is(err, parser.ErrSyntax) {
		t.Fatalf("expected syntax error for a single chained argument, got %v", err)
	}
	if _, err := mp.ParseExpression([]byte("Composed<<A, B>")); !errors.Is(err, parser.ErrSyntax) {
		t.Fatalf("expected syntax error for an unclosed chain, got %v", err)
	}
}

func TestParseNormalizesIdentifiers(t *testing.T) {
	mp := parser.NewModuleParser()
	// "e" followed by a combining acute accent normalizes to the precomposed form.
	expr, err := mp.ParseExpression([]byte("Cafe\u0301"))
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}
	id, ok := expr.(*ast.Identifier)
	if !ok {
		t.Fatalf("expected identifier, got %T", expr)
	}
	if id.Name != "Caf\u00e9" {
		t.Fatalf("expected NFC identifier, got %q", id.Name)
	}
}

func TestParseRecordsSpans(t *testing.T) {
	mod := parseModule(t, "eval Identity\n  \"x\";")
	stmt := mod.Body[0].(*ast.EvalStatement)
	span := stmt.Span()
	if span.Start.Line != 1 || span.Start.Column != 1 {
		t.Fatalf("unexpected start %+v", span.Start)
	}
	if span.End.Line != 2 || span.End.Column != 7 {
		t.Fatalf("unexpected end %+v", span.End)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"missing semicolon":    "pub fn A ::= {X. X}",
		"empty group":          "eval {};",
		"unterminated string":  `eval "abc;`,
		"unterminated comment": "/* never closed",
		"bad character":        "eval A $ B;",
		"keyword as name":      "fn where ::= {X. X};",
		"late package":         "atom A; package late;",
		"unclosed type args":   "eval Constant<A;",
		"assert without rhs":   "assert A == ;",
	}
	mp := parser.NewModuleParser()
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := mp.ParseModule([]byte(src))
			if err == nil {
				t.Fatalf("expected syntax error for %q", src)
			}
			if !errors.Is(err, parser.ErrSyntax) {
				t.Fatalf("expected ErrSyntax, got %v", err)
			}
			if !strings.Contains(err.Error(), ":") {
				t.Fatalf("expected positioned error, got %q", err.Error())
			}
		})
	}
}

func TestStartsWithDeclaration(t *testing.T) {
	if !parser.StartsWithDeclaration([]byte("  pub fn X ::= {A. A};")) {
		t.Fatalf("expected declaration")
	}
	if parser.StartsWithDeclaration([]byte("Identity X")) {
		t.Fatalf("expected expression")
	}
}

func TestPackageName(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"package demo;\n", "demo"},
		{"/* a { */ package demo; eval Identity;", "demo"},
		{"// note\npackage a.b.c;\n", "a.b.c"},
		{"eval Identity;\npackage late;\n", ""},
		{"", ""},
	}
	for _, tc := range cases {
		path, err := parser.PackageName([]byte(tc.source))
		if err != nil {
			t.Fatalf("PackageName(%q) error: %v", tc.source, err)
		}
		if got := strings.Join(path, "."); got != tc.want {
			t.Fatalf("PackageName(%q) = %q, want %q", tc.source, got, tc.want)
		}
	}
	if _, err := parser.PackageName([]byte("package demo eval;")); !errors.Is(err, parser.ErrSyntax) {
		t.Fatalf("expected syntax error for unterminated package statement, got %v", err)
	}
}
