package compiler

import (
	"errors"
	"fmt"
	"strings"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/runtime"
)

// Source is one parsed file together with the package it belongs to.
type Source struct {
	Package string
	Path    string
	Module  *ast.Module
}

// Options configures a compilation.
type Options struct {
	// Natives are host functions, registered as public names of their Package.
	Natives []runtime.NativeFunctionValue
	// ImplicitImports are visible from every source without an import statement.
	ImplicitImports []string
}

// Issue is a single compile failure with its location.
type Issue struct {
	Path    string
	Package string
	Span    ast.Span
	Err     *runtime.Error
}

func (i *Issue) Error() string {
	loc := "package " + i.Package
	if i.Path != "" {
		loc = i.Path
	}
	if !i.Span.IsZero() {
		loc = fmt.Sprintf("%s:%d:%d", loc, i.Span.Start.Line, i.Span.Start.Column)
	}
	return fmt.Sprintf("%s: %v", loc, i.Err)
}

func (i *Issue) Unwrap() error { return i.Err }

// CompileError aggregates every issue found while compiling a program.
type CompileError struct {
	Issues []*Issue
}

func (e *CompileError) Error() string {
	if len(e.Issues) == 0 {
		return "compile: invalid program"
	}
	var b strings.Builder
	b.WriteString("compile failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue.Error())
	}
	return b.String()
}

func (e *CompileError) Unwrap() []error {
	out := make([]error, len(e.Issues))
	for i, issue := range e.Issues {
		out[i] = issue
	}
	return out
}

type compilation struct {
	registry *Registry
	issues   []*Issue
}

func (c *compilation) report(src Source, node ast.Node, err error) {
	var rtErr *runtime.Error
	if !errors.As(err, &rtErr) {
		rtErr = runtime.NewError(runtime.ErrorImport, err.Error())
	}
	issue := &Issue{Path: src.Path, Package: src.Package, Err: rtErr}
	if node != nil {
		issue.Span = node.Span()
	}
	c.issues = append(c.issues, issue)
}

// Compile declares every name of every source, lowers definition bodies and
// statements, rejects self-referential definitions and builds term shapes.
func Compile(sources []Source, opts Options) (*Registry, error) {
	c := &compilation{registry: newRegistry()}
	c.registry.implicit = append([]string{}, opts.ImplicitImports...)

	for _, native := range opts.Natives {
		pkg := c.registry.ensurePackage(native.Package)
		if !pkg.declare(symbol{name: native.Name, pkg: native.Package, value: native}) {
			c.issues = append(c.issues, &Issue{Package: native.Package, Err: runtime.NewError(runtime.ErrorDuplicateName, fmt.Sprintf("native %s declared twice", native.Name))})
		}
	}
	for _, src := range sources {
		c.declare(src)
	}
	for _, src := range sources {
		c.lower(src)
	}
	c.checkCycles()
	if len(c.issues) > 0 {
		return nil, &CompileError{Issues: c.issues}
	}
	for _, pkgName := range c.registry.Packages() {
		for _, def := range c.registry.Definitions(pkgName) {
			def.Shapes = BuildShapes(def)
		}
	}
	return c.registry, nil
}

func (c *compilation) declare(src Source) {
	if src.Module == nil {
		return
	}
	pkg := c.registry.ensurePackage(src.Package)
	for _, stmt := range src.Module.Body {
		switch s := stmt.(type) {
		case *ast.AtomDeclaration:
			for _, id := range s.Names {
				sym := symbol{
					name:    id.Name,
					pkg:     src.Package,
					value:   runtime.AtomValue{Package: src.Package, Name: id.Name},
					private: s.IsPrivate,
				}
				if !pkg.declare(sym) {
					c.report(src, id, runtime.NewError(runtime.ErrorDuplicateName, fmt.Sprintf("%s already declared in package %s", id.Name, src.Package)))
				}
			}
		case *ast.Definition:
			def := &runtime.Definition{
				Package: src.Package,
				Name:    s.ID.Name,
				Private: s.IsPrivate,
				Source:  s,
			}
			for _, tp := range s.TypeParams {
				def.TypeParams = append(def.TypeParams, tp.Name)
			}
			for _, param := range s.Params {
				def.Params = append(def.Params, param.Name)
			}
			if !pkg.declare(symbol{name: def.Name, pkg: src.Package, definition: def, private: s.IsPrivate}) {
				c.report(src, s.ID, runtime.NewError(runtime.ErrorDuplicateName, fmt.Sprintf("%s already declared in package %s", def.Name, src.Package)))
			}
		}
	}
}

func (c *compilation) lower(src Source) {
	if src.Module == nil {
		return
	}
	var imports []string
	for _, imp := range src.Module.Imports {
		name := ast.JoinPath(imp.PackagePath)
		if !c.registry.HasPackage(name) {
			c.report(src, imp, runtime.NewError(runtime.ErrorImport, fmt.Sprintf("unknown package %s", name)))
			continue
		}
		imports = append(imports, name)
	}
	scope, errs := c.registry.scope(src.Package, imports)
	for _, err := range errs {
		c.report(src, nil, err)
	}

	for _, stmt := range src.Module.Body {
		switch s := stmt.(type) {
		case *ast.Definition:
			c.lowerDefinition(src, scope, s)
		case *ast.EvalStatement:
			code, err := lowerExpression(scope, nil, s.Expression)
			if err != nil {
				c.report(src, errorNode(err, s), err)
				continue
			}
			c.registry.statements = append(c.registry.statements, Statement{
				Package: src.Package,
				Path:    src.Path,
				Kind:    StatementEval,
				Actual:  code,
				Source:  s,
			})
		case *ast.AssertStatement:
			actual, err := lowerExpression(scope, nil, s.Actual)
			if err != nil {
				c.report(src, errorNode(err, s), err)
				continue
			}
			expected, err := lowerExpression(scope, nil, s.Expected)
			if err != nil {
				c.report(src, errorNode(err, s), err)
				continue
			}
			c.registry.statements = append(c.registry.statements, Statement{
				Package:  src.Package,
				Path:     src.Path,
				Kind:     StatementAssert,
				Actual:   actual,
				Expected: expected,
				Source:   s,
			})
		}
	}
}

func (c *compilation) lowerDefinition(src Source, scope *Scope, node *ast.Definition) {
	def, ok := c.registry.Definition(src.Package, node.ID.Name)
	if !ok || def.Source != node {
		// Duplicate declaration; already reported.
		return
	}
	slots := make(map[string]int, node.Arity())
	for i, id := range node.Slots() {
		if _, dup := slots[id.Name]; dup {
			c.report(src, id, runtime.NewError(runtime.ErrorDuplicateName, fmt.Sprintf("parameter %s declared twice in %s", id.Name, def.Name)))
			continue
		}
		slots[id.Name] = i
	}
	body, err := lowerExpression(scope, slots, node.Body)
	if err != nil {
		c.report(src, errorNode(err, node), err)
	} else {
		def.Body = body
	}
	for _, pre := range node.Preconditions {
		function, err := lowerExpression(scope, slots, pre.Function)
		if err != nil {
			c.report(src, errorNode(err, pre), err)
			continue
		}
		argument, err := lowerExpression(scope, slots, pre.Argument)
		if err != nil {
			c.report(src, errorNode(err, pre), err)
			continue
		}
		def.Preconditions = append(def.Preconditions, runtime.Precondition{Function: function, Argument: argument, Source: pre})
	}
}

// BuildShapes returns Term_0 through Term_N for a definition of arity N.
func BuildShapes(def *runtime.Definition) []runtime.Shape {
	shapes := make([]runtime.Shape, def.Arity()+1)
	for i := range shapes {
		shapes[i] = runtime.Shape{Definition: def, Bound: i}
	}
	return shapes
}

// CompileExpression lowers a closed expression as if it appeared in a file of
// package pkg with the given imports.
func (r *Registry) CompileExpression(pkg string, imports []string, expr ast.Expression) (runtime.Code, error) {
	scope, errs := r.scope(pkg, imports)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return lowerExpression(scope, nil, expr)
}
