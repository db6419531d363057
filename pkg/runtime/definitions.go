package runtime

import (
	"fmt"

	"lambda/interpreter-go/pkg/ast"
)

// Definition is the compiled, immutable template every term points at.
type Definition struct {
	Package       string
	Name          string
	TypeParams    []string
	Params        []string
	Body          Code
	Preconditions []Precondition
	Private       bool
	Shapes        []Shape
	Source        *ast.Definition
}

func (d *Definition) Arity() int {
	return len(d.TypeParams) + len(d.Params)
}

// Slots lists binding names in the order arguments arrive.
func (d *Definition) Slots() []string {
	out := make([]string, 0, d.Arity())
	out = append(out, d.TypeParams...)
	return append(out, d.Params...)
}

func (d *Definition) QualifiedName() string {
	if d.Package == "" {
		return d.Name
	}
	return d.Package + "." + d.Name
}

// Shape describes one state of a definition: Bound arguments out of Arity.
type Shape struct {
	Definition *Definition
	Bound      int
}

func (s Shape) Terminal() bool {
	return s.Bound == s.Definition.Arity()
}

// Shape returns the compiled shape for a term holding bound arguments.
func (d *Definition) Shape(bound int) (Shape, error) {
	if d == nil {
		return Shape{}, NewError(ErrorShapeMismatch, "term has no definition")
	}
	if bound < 0 || bound >= len(d.Shapes) {
		return Shape{}, NewError(ErrorArityMismatch, fmt.Sprintf("%s has no shape for %d bound arguments", d.Name, bound))
	}
	return d.Shapes[bound], nil
}

// Next is the shape produced by applying one more argument.
func (s Shape) Next() (Shape, error) {
	if s.Terminal() {
		return s, NewError(ErrorArityMismatch, fmt.Sprintf("%s is terminal and accepts no further arguments", s))
	}
	return Shape{Definition: s.Definition, Bound: s.Bound + 1}, nil
}

func (s Shape) String() string {
	return fmt.Sprintf("%s_%d", s.Definition.Name, s.Bound)
}

// Precondition is a lowered "Function: Argument" declaration.
type Precondition struct {
	Function Code
	Argument Code
	Source   *ast.Precondition
}

// Code is a lowered body expression.
type Code interface {
	codeNode()
}

// SlotRef reads an argument bound in the current frame.
type SlotRef struct {
	Index int
	Name  string
}

// GlobalRef names another definition. Zero-arity definitions evaluate on
// reference; others produce an unapplied term.
type GlobalRef struct {
	Definition *Definition
}

// ConstRef yields a fixed value: an atom, literal or native function.
type ConstRef struct {
	Value Value
}

// Apply folds Args into Callee left to right.
type Apply struct {
	Callee Code
	Args   []Code
	Source ast.Expression
}

func (SlotRef) codeNode()   {}
func (GlobalRef) codeNode() {}
func (ConstRef) codeNode()  {}
func (Apply) codeNode()     {}
