package interpreter

import (
	"fmt"
	"math/big"

	"lambda/interpreter-go/pkg/runtime"
	"lambda/interpreter-go/pkg/stdlib"
)

var (
	truthMarker = runtime.AtomValue{Package: stdlib.BuiltinPackage, Name: "#truthy"}
	falseMarker = runtime.AtomValue{Package: stdlib.BuiltinPackage, Name: "#falsy"}
)

// DecodeBool applies v to two private markers and reports which one it selects.
func (i *Interpreter) DecodeBool(v runtime.Value) (bool, error) {
	partial, err := i.Apply(v, truthMarker)
	if err != nil {
		return false, err
	}
	chosen, err := i.Apply(partial, falseMarker)
	if err != nil {
		return false, err
	}
	switch {
	case runtime.Equal(chosen, truthMarker):
		return true, nil
	case runtime.Equal(chosen, falseMarker):
		return false, nil
	default:
		return false, &runtime.Error{
			Kind:    runtime.ErrorShapeMismatch,
			Message: "value does not behave as a boolean",
			Expr:    runtime.Format(v),
		}
	}
}

// DecodeNumber counts how many times a numeral applies Increment to 0.
func (i *Interpreter) DecodeNumber(v runtime.Value) (*big.Int, error) {
	partial, err := i.Apply(v, stdlib.Increment())
	if err != nil {
		return nil, err
	}
	result, err := i.Apply(partial, runtime.NewNumber(0))
	if err != nil {
		return nil, err
	}
	num, ok := result.(runtime.NumberValue)
	if !ok {
		return nil, &runtime.Error{
			Kind:    runtime.ErrorShapeMismatch,
			Message: fmt.Sprintf("value does not behave as a numeral (got %s)", result.Kind()),
			Expr:    runtime.Format(v),
		}
	}
	return num.Val, nil
}
