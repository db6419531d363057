package runtime

import (
	"fmt"
	"math/big"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindAtom Kind = iota
	KindString
	KindNumber
	KindTerm
	KindNativeFunction
)

func (k Kind) String() string {
	switch k {
	case KindAtom:
		return "atom"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTerm:
		return "term"
	case KindNativeFunction:
		return "native_function"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is the common interface for every resolved value.
type Value interface {
	Kind() Kind
}

// AtomValue is a declared, identity-only value.
type AtomValue struct {
	Package string
	Name    string
}

func (AtomValue) Kind() Kind { return KindAtom }

// StringValue is the atom denoted by a string literal.
type StringValue struct {
	Val string
}

func (StringValue) Kind() Kind { return KindString }

// NumberValue is the atom denoted by a natural-number literal.
type NumberValue struct {
	Val *big.Int
}

func (NumberValue) Kind() Kind { return KindNumber }

func NewNumber(n int64) NumberValue {
	return NumberValue{Val: big.NewInt(n)}
}

// NativeFunctionValue is a host-implemented unary function.
type NativeFunctionValue struct {
	Package string
	Name    string
	Impl    func(arg Value) (Value, error)
}

func (NativeFunctionValue) Kind() Kind { return KindNativeFunction }

// TermValue is a definition with its leading arguments bound. Args never
// reach the definition's arity: saturation evaluates the body instead.
type TermValue struct {
	Definition *Definition
	Args       []Value
}

func (TermValue) Kind() Kind { return KindTerm }

// Remaining reports how many arguments the term still accepts.
func (t TermValue) Remaining() int {
	if t.Definition == nil {
		return 0
	}
	return t.Definition.Arity() - len(t.Args)
}

// Bind returns the term with arg appended, leaving t untouched.
func (t TermValue) Bind(arg Value) TermValue {
	args := make([]Value, len(t.Args), len(t.Args)+1)
	copy(args, t.Args)
	return TermValue{Definition: t.Definition, Args: append(args, arg)}
}
