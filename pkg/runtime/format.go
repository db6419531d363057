package runtime

import (
	"strconv"
	"strings"
)

// Equal compares values structurally: atoms by identity, literals by value,
// terms by definition and pairwise-equal bound arguments.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case AtomValue:
		bv, ok := b.(AtomValue)
		return ok && av == bv
	case StringValue:
		bv, ok := b.(StringValue)
		return ok && av.Val == bv.Val
	case NumberValue:
		bv, ok := b.(NumberValue)
		return ok && av.Val != nil && bv.Val != nil && av.Val.Cmp(bv.Val) == 0
	case NativeFunctionValue:
		bv, ok := b.(NativeFunctionValue)
		return ok && av.Package == bv.Package && av.Name == bv.Name
	case TermValue:
		bv, ok := b.(TermValue)
		if !ok || av.Definition != bv.Definition || len(av.Args) != len(bv.Args) {
			return false
		}
		for i := range av.Args {
			if !Equal(av.Args[i], bv.Args[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Format renders a value in surface syntax; a partially applied term prints
// as its definition instantiated with the bound arguments.
func Format(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case nil:
		b.WriteString("<nil>")
	case AtomValue:
		b.WriteString(val.Name)
	case StringValue:
		b.WriteString(strconv.Quote(val.Val))
	case NumberValue:
		if val.Val == nil {
			b.WriteString("0")
			return
		}
		b.WriteString(val.Val.String())
	case NativeFunctionValue:
		b.WriteString(val.Name)
	case TermValue:
		b.WriteString(val.Definition.Name)
		if len(val.Args) == 0 {
			return
		}
		b.WriteByte('<')
		for i, arg := range val.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, arg)
		}
		b.WriteByte('>')
	default:
		b.WriteString("[" + v.Kind().String() + "]")
	}
}
