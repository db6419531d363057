package typechecker

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"lambda/interpreter-go/pkg/ast"
)

// Severity ranks a diagnostic; only errors block evaluation.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic represents a precondition coverage error or warning.
type Diagnostic struct {
	Severity   Severity
	Package    string
	Definition string
	Message    string
	Node       ast.Node
}

// Options tunes how strictly declarations are held to their preconditions.
type Options struct {
	// Strict turns missing preconditions into errors and requires a where
	// clause on every definition that applies one of its parameters.
	Strict bool
}

// Checker compares each definition's declared preconditions with the
// applications its body performs.
type Checker struct {
	opts Options
}

// New returns a checker instance.
func New(opts Options) *Checker {
	return &Checker{opts: opts}
}

// CheckModule inspects every definition of a module and returns diagnostics.
func (c *Checker) CheckModule(pkg string, module *ast.Module) ([]Diagnostic, error) {
	if module == nil {
		return nil, fmt.Errorf("typechecker: module is nil")
	}
	var diagnostics []Diagnostic
	for _, stmt := range module.Body {
		def, ok := stmt.(*ast.Definition)
		if !ok {
			continue
		}
		diagnostics = append(diagnostics, c.checkDefinition(pkg, def)...)
	}
	return diagnostics, nil
}

// Application is one single-argument step of a folded body.
type Application struct {
	Function string
	Argument string
	Node     ast.Expression
}

func (a Application) String() string {
	return a.Function + ": " + a.Argument
}

// Applications folds the body into single-argument steps and returns each
// step in evaluation order (arguments before the application consuming them).
func Applications(body ast.Expression) []Application {
	var out []Application
	var walk func(expr ast.Expression)
	walk = func(expr ast.Expression) {
		switch e := expr.(type) {
		case *ast.Application:
			walk(e.Callee)
			for _, arg := range e.Arguments {
				walk(arg)
			}
			out = append(out, Application{
				Function: ast.Format(e.Callee),
				Argument: ast.Format(e.Arguments[0]),
				Node:     e,
			})
		case *ast.Instantiation:
			for _, arg := range e.TypeArgs {
				walk(arg)
			}
		}
	}
	walk(ast.Fold(body))
	return out
}

// head returns the leftmost callee of a folded application chain.
func head(expr ast.Expression) ast.Expression {
	for {
		app, ok := expr.(*ast.Application)
		if !ok {
			return expr
		}
		expr = app.Callee
	}
}

func (c *Checker) checkDefinition(pkg string, def *ast.Definition) []Diagnostic {
	var diags []Diagnostic
	report := func(sev Severity, node ast.Node, format string, args ...any) {
		diags = append(diags, Diagnostic{
			Severity:   sev,
			Package:    pkg,
			Definition: def.ID.Name,
			Message:    fmt.Sprintf(format, args...),
			Node:       node,
		})
	}

	slots := lo.Map(def.Slots(), func(id *ast.Identifier, _ int) string { return id.Name })
	isSlot := func(expr ast.Expression) bool {
		id, ok := expr.(*ast.Identifier)
		return ok && lo.Contains(slots, id.Name)
	}

	steps := Applications(def.Body)
	performed := lo.Uniq(lo.Map(steps, func(a Application, _ int) string { return a.String() }))
	required := lo.Uniq(lo.FilterMap(steps, func(a Application, _ int) (string, bool) {
		app := a.Node.(*ast.Application)
		return a.String(), isSlot(head(app.Callee))
	}))
	declared := lo.Map(def.Preconditions, func(pre *ast.Precondition, _ int) string {
		return ast.Format(ast.Fold(pre.Function)) + ": " + ast.Format(ast.Fold(pre.Argument))
	})

	for i, pre := range declared {
		if !lo.Contains(performed, pre) {
			report(SeverityWarning, def.Preconditions[i], "precondition %s is never applied by the body", pre)
		}
	}
	for _, dup := range lo.FindDuplicates(declared) {
		report(SeverityWarning, def, "precondition %s declared more than once", dup)
	}

	missing := lo.Without(required, declared...)
	if len(missing) > 0 && (len(def.Preconditions) > 0 || c.opts.Strict) {
		sev := SeverityWarning
		if c.opts.Strict {
			sev = SeverityError
		}
		for _, pre := range missing {
			report(sev, def, "missing precondition %s", pre)
		}
	}

	used := map[string]bool{}
	ast.Walk(def.Body, func(expr ast.Expression) bool {
		if id, ok := expr.(*ast.Identifier); ok {
			used[id.Name] = true
		}
		return true
	})
	for _, slot := range def.Slots() {
		if used[slot.Name] || strings.HasPrefix(slot.Name, "_") {
			continue
		}
		report(SeverityWarning, slot, "parameter %s is never used; prefix it with _ to silence this warning", slot.Name)
	}
	return diags
}

// HasErrors reports whether any diagnostic blocks evaluation.
func HasErrors(diags []Diagnostic) bool {
	return lo.ContainsBy(diags, func(d Diagnostic) bool { return d.Severity == SeverityError })
}

// Describe renders a diagnostic with its location for CLI output.
func Describe(d Diagnostic) string {
	loc := d.Package
	if d.Node != nil {
		if span := d.Node.Span(); !span.IsZero() {
			loc = fmt.Sprintf("%s:%d:%d", loc, span.Start.Line, span.Start.Column)
		}
	}
	return fmt.Sprintf("%s: %s: %s: %s", d.Severity, loc, d.Definition, d.Message)
}
