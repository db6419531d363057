package compiler

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/runtime"
)

// Registry holds every compiled definition. It is built once by Compile and
// never modified afterwards.
type Registry struct {
	packages   map[string]*Package
	statements []Statement
	implicit   []string
}

// Package groups the names declared by one package.
type Package struct {
	Name    string
	symbols map[string]symbol
	order   []string
}

type symbol struct {
	name       string
	pkg        string
	definition *runtime.Definition
	value      runtime.Value
	private    bool
}

func (s symbol) code() runtime.Code {
	if s.definition != nil {
		return runtime.GlobalRef{Definition: s.definition}
	}
	return runtime.ConstRef{Value: s.value}
}

// StatementKind distinguishes top-level eval and assert statements.
type StatementKind int

const (
	StatementEval StatementKind = iota
	StatementAssert
)

// Statement is a lowered top-level eval or assert.
type Statement struct {
	Package  string
	Path     string
	Kind     StatementKind
	Actual   runtime.Code
	Expected runtime.Code
	Source   ast.Statement
}

func newRegistry() *Registry {
	return &Registry{packages: make(map[string]*Package)}
}

func (r *Registry) ensurePackage(name string) *Package {
	if pkg, ok := r.packages[name]; ok {
		return pkg
	}
	pkg := &Package{Name: name, symbols: make(map[string]symbol)}
	r.packages[name] = pkg
	return pkg
}

func (p *Package) declare(sym symbol) bool {
	if _, exists := p.symbols[sym.name]; exists {
		return false
	}
	p.symbols[sym.name] = sym
	p.order = append(p.order, sym.name)
	return true
}

// Packages lists package names in sorted order.
func (r *Registry) Packages() []string {
	names := maps.Keys(r.packages)
	slices.Sort(names)
	return names
}

// HasPackage reports whether name was compiled into the registry.
func (r *Registry) HasPackage(name string) bool {
	_, ok := r.packages[name]
	return ok
}

// Definitions returns a package's definitions in declaration order.
func (r *Registry) Definitions(pkg string) []*runtime.Definition {
	p, ok := r.packages[pkg]
	if !ok {
		return nil
	}
	var out []*runtime.Definition
	for _, name := range p.order {
		if def := p.symbols[name].definition; def != nil {
			out = append(out, def)
		}
	}
	return out
}

// Definition looks up a definition by package and name, ignoring visibility.
func (r *Registry) Definition(pkg, name string) (*runtime.Definition, bool) {
	p, ok := r.packages[pkg]
	if !ok {
		return nil, false
	}
	sym, ok := p.symbols[name]
	if !ok || sym.definition == nil {
		return nil, false
	}
	return sym.definition, true
}

// Statements returns the lowered eval/assert statements of pkg in source order.
func (r *Registry) Statements(pkg string) []Statement {
	return slices.DeleteFunc(slices.Clone(r.statements), func(stmt Statement) bool {
		return stmt.Package != pkg
	})
}

// ImplicitImports lists the packages visible from every scope.
func (r *Registry) ImplicitImports() []string {
	return slices.Clone(r.implicit)
}
