package runtime

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
)

func testDefinition(name string, typeParams, params []string) *Definition {
	def := &Definition{Package: "demo", Name: name, TypeParams: typeParams, Params: params}
	for i := 0; i <= def.Arity(); i++ {
		def.Shapes = append(def.Shapes, Shape{Definition: def, Bound: i})
	}
	return def
}

func TestTermBindLeavesOriginalUntouched(t *testing.T) {
	pair := testDefinition("Pair", nil, []string{"X", "Y", "F"})
	base := TermValue{Definition: pair}
	first := base.Bind(StringValue{Val: "a"})
	second := first.Bind(StringValue{Val: "b"})
	other := first.Bind(StringValue{Val: "c"})

	if len(base.Args) != 0 || len(first.Args) != 1 {
		t.Fatalf("bind mutated receiver: base=%d first=%d", len(base.Args), len(first.Args))
	}
	if Equal(second, other) {
		t.Fatalf("expected sibling terms to differ")
	}
	if got := second.Remaining(); got != 1 {
		t.Fatalf("expected 1 remaining argument, got %d", got)
	}
	if got := Format(second); got != `Pair<"a", "b">` {
		t.Fatalf("unexpected rendering %s", got)
	}
}

func TestEqualIsStructural(t *testing.T) {
	constant := testDefinition("Constant", []string{"I"}, []string{"_Ignored"})
	identity := testDefinition("Identity", nil, []string{"Input"})
	red := AtomValue{Package: "demo", Name: "Red"}

	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same atom", red, AtomValue{Package: "demo", Name: "Red"}, true},
		{"atom in other package", red, AtomValue{Package: "other", Name: "Red"}, false},
		{"atom vs string", red, StringValue{Val: "Red"}, false},
		{"numbers", NumberValue{Val: big.NewInt(3)}, NewNumber(3), true},
		{"different numbers", NewNumber(3), NewNumber(4), false},
		{"terms", TermValue{Definition: constant, Args: []Value{red}}, TermValue{Definition: constant, Args: []Value{red}}, true},
		{"terms with different args", TermValue{Definition: constant, Args: []Value{red}}, TermValue{Definition: constant, Args: []Value{NewNumber(1)}}, false},
		{"different definitions", TermValue{Definition: constant}, TermValue{Definition: identity}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Fatalf("Equal(%s, %s) = %v, want %v", Format(tc.a), Format(tc.b), got, tc.want)
			}
		})
	}
}

func TestShapesAdvanceToTerminal(t *testing.T) {
	def := testDefinition("Sheinfinkel", nil, []string{"X", "Y", "Z"})
	if len(def.Shapes) != 4 {
		t.Fatalf("expected N+1 shapes, got %d", len(def.Shapes))
	}
	shape := def.Shapes[0]
	for i := 0; i < 3; i++ {
		if shape.Terminal() {
			t.Fatalf("shape %s terminal too early", shape)
		}
		next, err := shape.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		shape = next
	}
	if !shape.Terminal() || shape.String() != "Sheinfinkel_3" {
		t.Fatalf("expected terminal Sheinfinkel_3, got %s", shape)
	}
	if _, err := shape.Next(); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ArityMismatch past terminal, got %v", err)
	}
}

func TestDefinitionShapeLookup(t *testing.T) {
	def := testDefinition("Apply", nil, []string{"F", "X"})
	shape, err := def.Shape(2)
	if err != nil || !shape.Terminal() {
		t.Fatalf("Shape(2) = %s, %v", shape, err)
	}
	if _, err := def.Shape(3); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ArityMismatch past the last shape, got %v", err)
	}
	bare := &Definition{Name: "Bare", Params: []string{"X"}}
	if _, err := bare.Shape(0); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ArityMismatch without compiled shapes, got %v", err)
	}
}

func TestEnvironmentBindsSlotsInOrder(t *testing.T) {
	def := testDefinition("Composed", []string{"F", "G"}, []string{"Input"})
	env, err := NewEnvironment(def, []Value{StringValue{Val: "f"}, StringValue{Val: "g"}, StringValue{Val: "x"}})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	slot, err := env.Slot(1)
	if err != nil || !Equal(slot, StringValue{Val: "g"}) {
		t.Fatalf("Slot(1) = %v, %v", slot, err)
	}
	slot, err = env.Slot(2)
	if err != nil || !Equal(slot, StringValue{Val: "x"}) {
		t.Fatalf("Slot(2) = %v, %v", slot, err)
	}
	if _, err := env.Slot(3); !errors.Is(err, ErrUnboundName) {
		t.Fatalf("expected UnboundName past the last slot, got %v", err)
	}
	if _, err := NewEnvironment(def, nil); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ArityMismatch for short frame, got %v", err)
	}
}

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &Error{Kind: ErrorShapeMismatch, Message: "cannot apply atom Red", Expr: "{Red, Blue}"})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected wrapped error to match ErrShapeMismatch")
	}
	if errors.Is(err, ErrArityMismatch) {
		t.Fatalf("unexpected match with ErrArityMismatch")
	}
	kind, ok := KindOf(err)
	if !ok || kind != ErrorShapeMismatch {
		t.Fatalf("KindOf = %v, %v", kind, ok)
	}
	if parsed, ok := ParseErrorKind("NonTermination"); !ok || parsed != ErrorNonTermination {
		t.Fatalf("ParseErrorKind = %v, %v", parsed, ok)
	}
	if got := err.Error(); got != "resolve: ShapeMismatch: cannot apply atom Red (in {Red, Blue})" {
		t.Fatalf("unexpected message %q", got)
	}
}
