package runtime

import "fmt"

// Environment holds the arguments of one saturated application in slot
// order. It lives only while that body is resolved.
type Environment struct {
	definition *Definition
	args       []Value
}

// NewEnvironment binds args to def's type parameters then parameters.
func NewEnvironment(def *Definition, args []Value) (*Environment, error) {
	if len(args) != def.Arity() {
		return nil, NewError(ErrorArityMismatch, fmt.Sprintf("%s expects %d arguments, got %d", def.Name, def.Arity(), len(args)))
	}
	return &Environment{definition: def, args: args}, nil
}

// Slot returns the argument at a lowered slot index.
func (e *Environment) Slot(index int) (Value, error) {
	if index < 0 || index >= len(e.args) {
		return nil, NewError(ErrorUnboundName, fmt.Sprintf("slot %d out of range in %s", index, e.definition.Name))
	}
	return e.args[index], nil
}
