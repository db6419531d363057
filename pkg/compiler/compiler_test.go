package compiler

import (
	"errors"
	"strings"
	"testing"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/parser"
	"lambda/interpreter-go/pkg/runtime"
)

func parseSource(t *testing.T, pkg, src string) Source {
	t.Helper()
	mod, err := parser.NewModuleParser().ParseModule([]byte(src))
	if err != nil {
		t.Fatalf("parse %s: %v", pkg, err)
	}
	return Source{Package: pkg, Path: pkg + ".lam", Module: mod}
}

func mustCompile(t *testing.T, sources ...Source) *Registry {
	t.Helper()
	reg, err := Compile(sources, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return reg
}

func compileIssues(t *testing.T, sources ...Source) *CompileError {
	t.Helper()
	_, err := Compile(sources, Options{})
	if err == nil {
		t.Fatalf("expected compile error")
	}
	var compileErr *CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
	return compileErr
}

func TestCompileBuildsShapesForEveryDefinition(t *testing.T) {
	reg := mustCompile(t, parseSource(t, "demo", `
pub fn Identity ::= {Input. Input};
pub fn Constant<I> ::= {_Ignored. I};
pub fn Sheinfinkel ::= {X. Y. Z. {X, Z, {Y, Z}}};
fn Default ::= {Identity};
`))
	cases := map[string]int{"Identity": 1, "Constant": 2, "Sheinfinkel": 3, "Default": 0}
	for name, arity := range cases {
		def, ok := reg.Definition("demo", name)
		if !ok {
			t.Fatalf("missing definition %s", name)
		}
		if def.Arity() != arity {
			t.Fatalf("%s arity = %d, want %d", name, def.Arity(), arity)
		}
		if len(def.Shapes) != arity+1 {
			t.Fatalf("%s has %d shapes, want %d", name, len(def.Shapes), arity+1)
		}
		if !def.Shapes[arity].Terminal() {
			t.Fatalf("%s last shape not terminal", name)
		}
	}
	constant, _ := reg.Definition("demo", "Constant")
	if got := constant.Slots(); strings.Join(got, ",") != "I,_Ignored" {
		t.Fatalf("type parameters must lead the slots, got %v", got)
	}
	if _, ok := constant.Body.(runtime.SlotRef); !ok {
		t.Fatalf("expected slot reference body, got %T", constant.Body)
	}
	defs := reg.Definitions("demo")
	if len(defs) != 4 || defs[0].Name != "Identity" || defs[3].Name != "Default" {
		t.Fatalf("definitions not in declaration order: %v", defs)
	}
}

func TestCompileBuiltModules(t *testing.T) {
	shapes := Source{Package: "shapes", Path: "shapes.lam", Module: ast.Mod([]ast.Statement{
		ast.Atoms("Circle", "Square"),
		ast.Fn("Pick", []string{"X", "_Y"}, ast.ID("X")),
		ast.FnGeneric("Const", []string{"I"}, []string{"_Z"}, ast.ID("I")),
	}, nil, ast.Pkg("shapes"))}
	app := Source{Package: "app", Path: "app.lam", Module: ast.Mod([]ast.Statement{
		ast.Eval(ast.Call("Pick", "Circle", "Square")),
		ast.Assert(ast.App(ast.Inst("Const", ast.Str("kept")), ast.Num(7)), ast.Str("kept")),
	}, []*ast.ImportStatement{ast.Imp("shapes")}, nil)}

	reg := mustCompile(t, shapes, app)
	stmts := reg.Statements("app")
	if len(stmts) != 2 || stmts[0].Kind != StatementEval || stmts[1].Kind != StatementAssert {
		t.Fatalf("unexpected statements %#v", stmts)
	}
	if _, ok := stmts[1].Expected.(runtime.ConstRef); !ok {
		t.Fatalf("expected literal on the right of assert, got %T", stmts[1].Expected)
	}
	pick, ok := reg.Definition("shapes", "Pick")
	if !ok || pick.Arity() != 2 || len(pick.Shapes) != 3 {
		t.Fatalf("unexpected Pick definition %#v", pick)
	}
}

func TestCompileLowersInstantiationToApplication(t *testing.T) {
	reg := mustCompile(t, parseSource(t, "demo", `
pub fn Constant<I> ::= {_Ignored. I};
pub fn FirstOf ::= {Input. (Constant<Input>)};
`))
	first, _ := reg.Definition("demo", "FirstOf")
	apply, ok := first.Body.(runtime.Apply)
	if !ok {
		t.Fatalf("expected Apply, got %T", first.Body)
	}
	callee, ok := apply.Callee.(runtime.GlobalRef)
	if !ok || callee.Definition.Name != "Constant" {
		t.Fatalf("expected GlobalRef to Constant, got %#v", apply.Callee)
	}
	if len(apply.Args) != 1 {
		t.Fatalf("expected one type argument, got %d", len(apply.Args))
	}
	if slot, ok := apply.Args[0].(runtime.SlotRef); !ok || slot.Name != "Input" || slot.Index != 0 {
		t.Fatalf("unexpected argument %#v", apply.Args[0])
	}
}

func TestCompileReportsErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		src  string
		kind *runtime.Error
		text string
	}{
		{"unbound name", "pub fn A ::= {X. {Missing, X}};", runtime.ErrUnboundName, "undefined name Missing"},
		{"unbound precondition", "pub fn A ::= {X. X} where Y: X;", runtime.ErrUnboundName, "undefined name Y"},
		{"duplicate definition", "pub fn A ::= {X. X}; fn A ::= {Y. Y};", runtime.ErrDuplicateName, "A already declared"},
		{"duplicate parameter", "pub fn A<X> ::= {X. X};", runtime.ErrDuplicateName, "parameter X declared twice"},
		{"atom clashes with definition", "atom A; pub fn A ::= {X. X};", runtime.ErrDuplicateName, "A already declared"},
		{"excess type arguments", "pub fn C<I> ::= {_X. I}; pub fn B ::= {X. C<X, X>};", runtime.ErrArityMismatch, "takes 1 type arguments, got 2"},
		{"type arguments on parameter", "pub fn B ::= {X. Y. X<Y>};", runtime.ErrShapeMismatch, "parameter X cannot take type arguments"},
		{"type arguments on atom", "atom Red; eval Red<Red>;", runtime.ErrShapeMismatch, "Red is not a definition"},
		{"self reference", "pub fn Loop ::= {X. {Loop, X}};", runtime.ErrNonTermination, "Loop -> Loop"},
		{"mutual reference", "fn Ping ::= {X. {Pong, X}}; fn Pong ::= {X. {Ping, X}};", runtime.ErrNonTermination, "Ping -> Pong -> Ping"},
		{"zero arity cycle", "fn A ::= {B}; fn B ::= {A};", runtime.ErrNonTermination, "refers to itself"},
		{"unknown import", "import nowhere; pub fn A ::= {X. X};", runtime.ErrImport, "unknown package nowhere"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			compileErr := compileIssues(t, parseSource(t, "demo", tc.src))
			if !errors.Is(compileErr, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind.Kind, compileErr)
			}
			if !strings.Contains(compileErr.Error(), tc.text) {
				t.Fatalf("expected %q in %q", tc.text, compileErr.Error())
			}
		})
	}
}

func TestCompileAggregatesIssuesWithLocations(t *testing.T) {
	compileErr := compileIssues(t, parseSource(t, "demo", `pub fn A ::= {X. {Nope, X}};
pub fn B ::= {X. {Never, X}};
eval Missing;
`))
	if len(compileErr.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d: %v", len(compileErr.Issues), compileErr)
	}
	first := compileErr.Issues[0]
	if first.Span.Start.Line != 1 || first.Span.Start.Column != 19 {
		t.Fatalf("expected issue at the offending identifier, got %+v", first.Span)
	}
	if !strings.HasPrefix(first.Error(), "demo.lam:1:19: UnboundName") {
		t.Fatalf("unexpected issue text %q", first.Error())
	}
	if first.Err.Expr != "Nope" {
		t.Fatalf("expected offending expression recorded, got %q", first.Err.Expr)
	}
}

func TestCompileResolvesImportsAndVisibility(t *testing.T) {
	lib := parseSource(t, "lib", `
pub atom Shared;
atom Secret;
pub fn Identity ::= {X. X};
fn Hidden ::= {X. X};
`)
	other := parseSource(t, "other", `pub atom Shared;`)

	t.Run("public names are visible", func(t *testing.T) {
		app := parseSource(t, "app", `import lib; eval Identity Shared;`)
		reg := mustCompile(t, lib, app)
		if stmts := reg.Statements("app"); len(stmts) != 1 || stmts[0].Kind != StatementEval {
			t.Fatalf("expected one eval statement, got %#v", stmts)
		}
		if stmts := reg.Statements("lib"); len(stmts) != 0 {
			t.Fatalf("expected no statements for lib, got %d", len(stmts))
		}
	})

	t.Run("private names are not", func(t *testing.T) {
		app := parseSource(t, "app", `import lib; eval Hidden Secret;`)
		compileErr := compileIssues(t, lib, app)
		if !errors.Is(compileErr, runtime.ErrUnboundName) || !strings.Contains(compileErr.Error(), "Hidden is private to package lib") {
			t.Fatalf("unexpected error %v", compileErr)
		}
	})

	t.Run("ambiguous imports", func(t *testing.T) {
		app := parseSource(t, "app", `import lib; import other; eval Identity Shared;`)
		compileErr := compileIssues(t, lib, other, app)
		if !errors.Is(compileErr, runtime.ErrAmbiguousName) {
			t.Fatalf("expected AmbiguousName, got %v", compileErr)
		}
	})

	t.Run("own package shadows imports", func(t *testing.T) {
		app := parseSource(t, "app", `import lib; atom Shared; eval Identity Shared;`)
		reg := mustCompile(t, lib, app)
		stmt := reg.Statements("app")[0]
		apply := stmt.Actual.(runtime.Apply)
		atom := apply.Args[0].(runtime.ConstRef).Value.(runtime.AtomValue)
		if atom.Package != "app" {
			t.Fatalf("expected local atom, got %#v", atom)
		}
	})

	t.Run("implicit imports", func(t *testing.T) {
		app := parseSource(t, "app", `eval Identity Shared;`)
		reg, err := Compile([]Source{lib, app}, Options{ImplicitImports: []string{"lib"}})
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if got := reg.ImplicitImports(); len(got) != 1 || got[0] != "lib" {
			t.Fatalf("unexpected implicit imports %v", got)
		}
	})
}

func TestCompileRegistersNatives(t *testing.T) {
	increment := runtime.NativeFunctionValue{Package: "builtin", Name: "Increment", Impl: func(arg runtime.Value) (runtime.Value, error) { return arg, nil }}
	app := parseSource(t, "app", `import builtin; eval Increment 0;`)
	reg, err := Compile([]Source{app}, Options{Natives: []runtime.NativeFunctionValue{increment}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := reg.Packages(); strings.Join(got, ",") != "app,builtin" {
		t.Fatalf("unexpected packages %v", got)
	}
	code, err := reg.CompileExpression("repl", []string{"builtin"}, parseExpr(t, "Increment 1"))
	if err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	apply := code.(runtime.Apply)
	if native, ok := apply.Callee.(runtime.ConstRef).Value.(runtime.NativeFunctionValue); !ok || native.Name != "Increment" {
		t.Fatalf("unexpected callee %#v", apply.Callee)
	}
	if _, err := reg.CompileExpression("repl", nil, parseExpr(t, "Increment 1")); !errors.Is(err, runtime.ErrUnboundName) {
		t.Fatalf("expected UnboundName without import, got %v", err)
	}
	if _, err := reg.CompileExpression("repl", []string{"missing"}, parseExpr(t, "1")); !errors.Is(err, runtime.ErrImport) {
		t.Fatalf("expected ImportError, got %v", err)
	}
}
