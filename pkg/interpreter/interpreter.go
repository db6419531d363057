package interpreter

import (
	"errors"
	"fmt"
	"io"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/compiler"
	"lambda/interpreter-go/pkg/runtime"
)

const (
	DefaultMaxSteps = 1_000_000
	DefaultMaxDepth = 10_000
)

// Options bounds a single resolution. Zero limits fall back to the defaults;
// negative limits disable the check.
type Options struct {
	MaxSteps int
	MaxDepth int
	// Trace receives one line per application step when set.
	Trace io.Writer
}

// Interpreter resolves compiled code against a registry. It is not safe for
// concurrent use; the registry it reads is.
type Interpreter struct {
	registry   *compiler.Registry
	opts       Options
	steps      int
	depth      int
	constants  map[*runtime.Definition]runtime.Value
	evaluating map[*runtime.Definition]bool
}

// New returns an interpreter over a compiled registry.
func New(registry *compiler.Registry, opts Options) *Interpreter {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Interpreter{
		registry:   registry,
		opts:       opts,
		constants:  make(map[*runtime.Definition]runtime.Value),
		evaluating: make(map[*runtime.Definition]bool),
	}
}

func (i *Interpreter) Registry() *compiler.Registry {
	return i.registry
}

// Steps reports how many applications the last resolution performed.
func (i *Interpreter) Steps() int {
	return i.steps
}

// ResetBudget starts a fresh step count for the next top-level resolution.
func (i *Interpreter) ResetBudget() {
	i.steps = 0
	i.depth = 0
}

// Resolve compiles expr in the scope of pkg and evaluates it to a value.
func (i *Interpreter) Resolve(pkg string, imports []string, expr ast.Expression) (runtime.Value, error) {
	code, err := i.registry.CompileExpression(pkg, imports, expr)
	if err != nil {
		return nil, err
	}
	i.ResetBudget()
	return i.Evaluate(code, nil)
}

// Evaluate runs lowered code. env is nil outside a definition body.
func (i *Interpreter) Evaluate(code runtime.Code, env *runtime.Environment) (runtime.Value, error) {
	switch c := code.(type) {
	case runtime.ConstRef:
		return c.Value, nil
	case runtime.SlotRef:
		if env == nil {
			return nil, runtime.NewError(runtime.ErrorUnboundName, fmt.Sprintf("parameter %s outside a definition", c.Name))
		}
		return env.Slot(c.Index)
	case runtime.GlobalRef:
		if c.Definition.Arity() == 0 {
			return i.constant(c.Definition)
		}
		return runtime.TermValue{Definition: c.Definition}, nil
	case runtime.Apply:
		fn, err := i.Evaluate(c.Callee, env)
		if err != nil {
			return nil, err
		}
		for _, argCode := range c.Args {
			arg, err := i.Evaluate(argCode, env)
			if err != nil {
				return nil, err
			}
			fn, err = i.Apply(fn, arg)
			if err != nil {
				return nil, locate(err, c.Source)
			}
		}
		return fn, nil
	case nil:
		return nil, runtime.NewError(runtime.ErrorArityMismatch, "missing code")
	default:
		return nil, fmt.Errorf("interpreter: unsupported code %T", code)
	}
}

// Apply performs one application step. A term that becomes saturated is
// evaluated immediately.
func (i *Interpreter) Apply(fn, arg runtime.Value) (runtime.Value, error) {
	i.steps++
	if i.opts.MaxSteps > 0 && i.steps > i.opts.MaxSteps {
		return nil, runtime.NewError(runtime.ErrorNonTermination, fmt.Sprintf("step budget of %d applications exhausted", i.opts.MaxSteps))
	}
	if i.opts.Trace != nil {
		fmt.Fprintf(i.opts.Trace, "apply %s <- %s\n", runtime.Format(fn), runtime.Format(arg))
	}
	switch f := fn.(type) {
	case runtime.NativeFunctionValue:
		return f.Impl(arg)
	case runtime.TermValue:
		shape, err := f.Definition.Shape(len(f.Args))
		if err != nil {
			return nil, err
		}
		next, err := shape.Next()
		if err != nil {
			return nil, err
		}
		bound := f.Bind(arg)
		if !next.Terminal() {
			return bound, nil
		}
		return i.saturate(bound)
	case nil:
		return nil, runtime.NewError(runtime.ErrorShapeMismatch, "cannot apply a missing value")
	default:
		return nil, &runtime.Error{
			Kind:    runtime.ErrorShapeMismatch,
			Message: fmt.Sprintf("%s %s is not a function and cannot be applied to %s", fn.Kind(), runtime.Format(fn), runtime.Format(arg)),
		}
	}
}

func (i *Interpreter) saturate(term runtime.TermValue) (runtime.Value, error) {
	i.depth++
	defer func() { i.depth-- }()
	if i.opts.MaxDepth > 0 && i.depth > i.opts.MaxDepth {
		return nil, runtime.NewError(runtime.ErrorNonTermination, fmt.Sprintf("nesting depth limit of %d exceeded while resolving %s", i.opts.MaxDepth, term.Definition.Name))
	}
	env, err := runtime.NewEnvironment(term.Definition, term.Args)
	if err != nil {
		return nil, err
	}
	return i.Evaluate(term.Definition.Body, env)
}

// constant evaluates a zero-arity definition once per interpreter.
func (i *Interpreter) constant(def *runtime.Definition) (runtime.Value, error) {
	if val, ok := i.constants[def]; ok {
		return val, nil
	}
	if i.evaluating[def] {
		return nil, runtime.NewError(runtime.ErrorNonTermination, fmt.Sprintf("definition %s refers to itself", def.Name))
	}
	i.evaluating[def] = true
	defer delete(i.evaluating, def)
	val, err := i.saturate(runtime.TermValue{Definition: def})
	if err != nil {
		return nil, err
	}
	i.constants[def] = val
	return val, nil
}

// locate attaches the failing sub-expression to errors that do not carry one yet.
func locate(err error, source ast.Expression) error {
	var rtErr *runtime.Error
	if source == nil || !errors.As(err, &rtErr) || rtErr.Expr != "" {
		return err
	}
	located := *rtErr
	located.Expr = ast.Format(source)
	return &located
}
