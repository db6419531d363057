package interpreter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lambda/interpreter-go/pkg/compiler"
	"lambda/interpreter-go/pkg/driver"
	"lambda/interpreter-go/pkg/parser"
	"lambda/interpreter-go/pkg/runtime"
	"lambda/interpreter-go/pkg/stdlib"
)

const testPackage = "test"

// newTestInterpreter compiles the prelude plus source (package test) into a
// fresh interpreter.
func newTestInterpreter(t *testing.T, source string, opts Options) *Interpreter {
	t.Helper()
	loader, err := driver.NewLoader(nil, true)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	prelude, err := loader.LoadPrelude()
	if err != nil {
		t.Fatalf("LoadPrelude: %v", err)
	}
	var sources []compiler.Source
	for _, file := range prelude.Files {
		sources = append(sources, compiler.Source{Package: prelude.Package, Path: file.Path, Module: file.AST})
	}
	if source != "" {
		mod, err := parser.NewModuleParser().ParseModule([]byte(source))
		if err != nil {
			t.Fatalf("parse test source: %v", err)
		}
		sources = append(sources, compiler.Source{Package: testPackage, Path: "test.lam", Module: mod})
	}
	registry, err := compiler.Compile(sources, compiler.Options{
		Natives:         stdlib.Natives(),
		ImplicitImports: []string{stdlib.PreludePackage},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return New(registry, opts)
}

func resolveSource(interp *Interpreter, expr string) (runtime.Value, error) {
	node, err := parser.NewModuleParser().ParseExpression([]byte(expr))
	if err != nil {
		return nil, err
	}
	return interp.Resolve(testPackage, nil, node)
}

func mustResolve(t *testing.T, interp *Interpreter, expr string) runtime.Value {
	t.Helper()
	val, err := resolveSource(interp, expr)
	if err != nil {
		t.Fatalf("resolve %q: %v", expr, err)
	}
	return val
}

func mustBool(t *testing.T, interp *Interpreter, expr string) bool {
	t.Helper()
	val := mustResolve(t, interp, expr)
	b, err := interp.DecodeBool(val)
	if err != nil {
		t.Fatalf("decode %q as boolean: %v", expr, err)
	}
	return b
}

func mustNumber(t *testing.T, interp *Interpreter, expr string) int64 {
	t.Helper()
	val := mustResolve(t, interp, expr)
	n, err := interp.DecodeNumber(val)
	if err != nil {
		t.Fatalf("decode %q as numeral: %v", expr, err)
	}
	return n.Int64()
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimLeft(contents, "\n")), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
