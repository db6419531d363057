package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"lambda/interpreter-go/pkg/compiler"
	"lambda/interpreter-go/pkg/driver"
	"lambda/interpreter-go/pkg/runtime"
	"lambda/interpreter-go/pkg/stdlib"
	"lambda/interpreter-go/pkg/typechecker"
)

// ErrPreconditions is returned when the precondition checker reports errors.
var ErrPreconditions = errors.New("precondition check failed")

// ProgramEvaluationOptions configures EvaluateProgram.
type ProgramEvaluationOptions struct {
	SkipTypecheck bool
	// AllowDiagnostics evaluates even when the checker reports errors.
	AllowDiagnostics bool
	Strict           bool
	Interpreter      Options
	// OnResult is called after each statement of the entry package.
	OnResult func(StatementResult)
}

// StatementResult is the outcome of one eval or assert statement.
type StatementResult struct {
	Statement compiler.Statement
	Value     runtime.Value
	Expected  runtime.Value
	Passed    bool
	Err       error
}

// ProgramResult collects everything EvaluateProgram produced, even when it
// stopped early.
type ProgramResult struct {
	Registry    *compiler.Registry
	Diagnostics []typechecker.Diagnostic
	Results     []StatementResult
}

// Failures returns the assert statements that did not hold.
func (r *ProgramResult) Failures() []StatementResult {
	var out []StatementResult
	for _, res := range r.Results {
		if res.Statement.Kind == compiler.StatementAssert && !res.Passed && res.Err == nil {
			out = append(out, res)
		}
	}
	return out
}

// AssertionError reports every failed assert of a run.
type AssertionError struct {
	Failures []StatementResult
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d assertion(s) failed:", len(e.Failures))
	for _, failure := range e.Failures {
		b.WriteString("\n- ")
		b.WriteString(DescribeResult(failure))
	}
	return b.String()
}

// DescribeResult renders a statement result for CLI output.
func DescribeResult(res StatementResult) string {
	loc := res.Statement.Path
	if res.Statement.Source != nil {
		if span := res.Statement.Source.Span(); !span.IsZero() {
			loc = fmt.Sprintf("%s:%d:%d", loc, span.Start.Line, span.Start.Column)
		}
	}
	switch {
	case res.Err != nil:
		return fmt.Sprintf("%s: %v", loc, res.Err)
	case res.Statement.Kind == compiler.StatementEval:
		return runtime.Format(res.Value)
	case res.Passed:
		return fmt.Sprintf("%s: ok", loc)
	default:
		return fmt.Sprintf("%s: expected %s, got %s", loc, runtime.Format(res.Expected), runtime.Format(res.Value))
	}
}

// TypecheckProgram runs the precondition checker over every user module.
func TypecheckProgram(program *driver.Program, strict bool) ([]typechecker.Diagnostic, error) {
	if program == nil {
		return nil, fmt.Errorf("interpreter: program is nil")
	}
	checker := typechecker.New(typechecker.Options{Strict: strict})
	var diags []typechecker.Diagnostic
	for _, mod := range program.Modules {
		if mod.Kind == driver.RootStdlib {
			continue
		}
		for _, file := range mod.Files {
			fileDiags, err := checker.CheckModule(mod.Package, file.AST)
			if err != nil {
				return nil, fmt.Errorf("typecheck %s: %w", file.Path, err)
			}
			diags = append(diags, fileDiags...)
		}
	}
	return diags, nil
}

// CompileProgram compiles every module of a program together with the host
// natives.
func CompileProgram(program *driver.Program) (*compiler.Registry, error) {
	if program == nil {
		return nil, fmt.Errorf("interpreter: program is nil")
	}
	return compiler.Compile(ProgramSources(program), compiler.Options{
		Natives:         stdlib.Natives(),
		ImplicitImports: program.Implicit,
	})
}

// ProgramSources flattens a program into compiler inputs, dependencies first.
func ProgramSources(program *driver.Program) []compiler.Source {
	var sources []compiler.Source
	for _, mod := range program.Modules {
		for _, file := range mod.Files {
			sources = append(sources, compiler.Source{Package: mod.Package, Path: file.Path, Module: file.AST})
		}
	}
	return sources
}

// EvaluateProgram checks and compiles a program, then runs the eval and
// assert statements of its entry package in source order. A resolution
// error stops the run; failed asserts are collected into an AssertionError.
func EvaluateProgram(program *driver.Program, opts ProgramEvaluationOptions) (*ProgramResult, error) {
	result := &ProgramResult{}
	if !opts.SkipTypecheck {
		diags, err := TypecheckProgram(program, opts.Strict)
		if err != nil {
			return result, err
		}
		result.Diagnostics = diags
		if typechecker.HasErrors(diags) && !opts.AllowDiagnostics {
			return result, ErrPreconditions
		}
	}
	registry, err := CompileProgram(program)
	if err != nil {
		return result, err
	}
	result.Registry = registry

	interp := New(registry, opts.Interpreter)
	for _, stmt := range registry.Statements(program.Entry.Package) {
		res := interp.RunStatement(stmt)
		result.Results = append(result.Results, res)
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
		if res.Err != nil {
			return result, res.Err
		}
	}
	if failures := result.Failures(); len(failures) > 0 {
		return result, &AssertionError{Failures: failures}
	}
	return result, nil
}

// RunStatement evaluates one lowered statement with a fresh budget per side.
func (i *Interpreter) RunStatement(stmt compiler.Statement) StatementResult {
	res := StatementResult{Statement: stmt}
	i.ResetBudget()
	res.Value, res.Err = i.Evaluate(stmt.Actual, nil)
	if res.Err != nil || stmt.Kind != compiler.StatementAssert {
		res.Passed = res.Err == nil
		return res
	}
	i.ResetBudget()
	res.Expected, res.Err = i.Evaluate(stmt.Expected, nil)
	res.Passed = res.Err == nil && runtime.Equal(res.Value, res.Expected)
	return res
}

