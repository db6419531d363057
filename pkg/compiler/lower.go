package compiler

import (
	"errors"
	"fmt"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/runtime"
)

type locatedError struct {
	node ast.Node
	err  *runtime.Error
}

func (e *locatedError) Error() string { return e.err.Error() }
func (e *locatedError) Unwrap() error { return e.err }

func failAt(node ast.Expression, err error) error {
	var rtErr *runtime.Error
	if !errors.As(err, &rtErr) {
		return err
	}
	located := *rtErr
	located.Expr = ast.Format(node)
	return &locatedError{node: node, err: &located}
}

func errorNode(err error, fallback ast.Node) ast.Node {
	var located *locatedError
	if errors.As(err, &located) && located.node != nil {
		return located.node
	}
	return fallback
}

// lowerExpression resolves names against slots (nil outside a definition)
// and scope, producing code the interpreter can run.
func lowerExpression(scope *Scope, slots map[string]int, expr ast.Expression) (runtime.Code, error) {
	switch e := expr.(type) {
	case *ast.Identifier:
		if idx, ok := slots[e.Name]; ok {
			return runtime.SlotRef{Index: idx, Name: e.Name}, nil
		}
		sym, err := scope.resolve(e.Name)
		if err != nil {
			return nil, failAt(e, err)
		}
		return sym.code(), nil
	case *ast.StringLiteral:
		return runtime.ConstRef{Value: runtime.StringValue{Val: e.Value}}, nil
	case *ast.NumberLiteral:
		return runtime.ConstRef{Value: runtime.NumberValue{Val: e.Value}}, nil
	case *ast.Instantiation:
		return lowerInstantiation(scope, slots, e)
	case *ast.Application:
		callee, err := lowerExpression(scope, slots, e.Callee)
		if err != nil {
			return nil, err
		}
		args := make([]runtime.Code, 0, len(e.Arguments))
		for _, arg := range e.Arguments {
			code, err := lowerExpression(scope, slots, arg)
			if err != nil {
				return nil, err
			}
			args = append(args, code)
		}
		return runtime.Apply{Callee: callee, Args: args, Source: e}, nil
	case nil:
		return nil, runtime.NewError(runtime.ErrorArityMismatch, "missing expression")
	default:
		return nil, failAt(expr, runtime.NewError(runtime.ErrorShapeMismatch, fmt.Sprintf("unsupported expression %s", expr.NodeType())))
	}
}

func lowerInstantiation(scope *Scope, slots map[string]int, inst *ast.Instantiation) (runtime.Code, error) {
	name := inst.Target.Name
	if _, ok := slots[name]; ok {
		return nil, failAt(inst, runtime.NewError(runtime.ErrorShapeMismatch, fmt.Sprintf("parameter %s cannot take type arguments", name)))
	}
	sym, err := scope.resolve(name)
	if err != nil {
		return nil, failAt(inst, err)
	}
	def := sym.definition
	if def == nil {
		return nil, failAt(inst, runtime.NewError(runtime.ErrorShapeMismatch, fmt.Sprintf("%s is not a definition and cannot take type arguments", name)))
	}
	if len(inst.TypeArgs) > len(def.TypeParams) {
		return nil, failAt(inst, runtime.NewError(runtime.ErrorArityMismatch, fmt.Sprintf("%s takes %d type arguments, got %d", name, len(def.TypeParams), len(inst.TypeArgs))))
	}
	args := make([]runtime.Code, 0, len(inst.TypeArgs))
	for _, arg := range inst.TypeArgs {
		code, err := lowerExpression(scope, slots, arg)
		if err != nil {
			return nil, err
		}
		args = append(args, code)
	}
	return runtime.Apply{Callee: runtime.GlobalRef{Definition: def}, Args: args, Source: inst}, nil
}

// references lists the definitions a code tree names, in first-seen order.
func references(code runtime.Code, out []*runtime.Definition) []*runtime.Definition {
	switch c := code.(type) {
	case runtime.GlobalRef:
		for _, seen := range out {
			if seen == c.Definition {
				return out
			}
		}
		return append(out, c.Definition)
	case runtime.Apply:
		out = references(c.Callee, out)
		for _, arg := range c.Args {
			out = references(arg, out)
		}
	}
	return out
}
