package ast

import (
	"strconv"
	"strings"
)

// Format renders an expression in canonical surface syntax.
func Format(expr Expression) string {
	var b strings.Builder
	writeExpression(&b, expr)
	return b.String()
}

func writeExpression(b *strings.Builder, expr Expression) {
	switch e := expr.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Identifier:
		b.WriteString(e.Name)
	case *StringLiteral:
		b.WriteString(strconv.Quote(e.Value))
	case *NumberLiteral:
		if e.Value == nil {
			b.WriteString("0")
			return
		}
		b.WriteString(e.Value.String())
	case *Instantiation:
		b.WriteString(e.Target.Name)
		b.WriteByte('<')
		for i, arg := range e.TypeArgs {
			if i > 0 {
				b.WriteString(", ")
			}
			writeExpression(b, arg)
		}
		b.WriteByte('>')
	case *Application:
		b.WriteByte('{')
		writeExpression(b, e.Callee)
		for _, arg := range e.Arguments {
			b.WriteString(", ")
			writeExpression(b, arg)
		}
		b.WriteByte('}')
	default:
		b.WriteString("<" + string(expr.NodeType()) + ">")
	}
}

// FormatDefinition renders a definition in canonical declaration syntax.
func FormatDefinition(def *Definition) string {
	var b strings.Builder
	if !def.IsPrivate {
		b.WriteString("pub ")
	}
	b.WriteString("fn ")
	b.WriteString(def.ID.Name)
	if len(def.TypeParams) > 0 {
		b.WriteByte('<')
		for i, tp := range def.TypeParams {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(tp.Name)
		}
		b.WriteByte('>')
	}
	b.WriteString(" ::= {")
	for _, param := range def.Params {
		b.WriteString(param.Name)
		b.WriteString(". ")
	}
	if app, ok := def.Body.(*Application); ok {
		writeExpression(&b, app.Callee)
		for _, arg := range app.Arguments {
			b.WriteString(", ")
			writeExpression(&b, arg)
		}
	} else {
		writeExpression(&b, def.Body)
	}
	b.WriteByte('}')
	if len(def.Preconditions) > 0 {
		b.WriteString(" where ")
		for i, pre := range def.Preconditions {
			if i > 0 {
				b.WriteString(", ")
			}
			writeExpression(&b, pre.Function)
			b.WriteString(": ")
			writeExpression(&b, pre.Argument)
		}
	}
	b.WriteByte(';')
	return b.String()
}

// Fold rewrites every group into nested single-argument applications, so
// {F, A, B} becomes {{F, A}, B}. Other nodes are returned unchanged.
func Fold(expr Expression) Expression {
	switch e := expr.(type) {
	case *Application:
		acc := Fold(e.Callee)
		for _, arg := range e.Arguments {
			next := NewApplication(acc, []Expression{Fold(arg)})
			next.Loc = e.Loc
			acc = next
		}
		return acc
	case *Instantiation:
		args := make([]Expression, len(e.TypeArgs))
		for i, arg := range e.TypeArgs {
			args[i] = Fold(arg)
		}
		inst := NewInstantiation(e.Target, args)
		inst.Loc = e.Loc
		return inst
	default:
		return expr
	}
}

// Walk visits expr and every nested expression in pre-order.
func Walk(expr Expression, visit func(Expression) bool) {
	if expr == nil || !visit(expr) {
		return
	}
	switch e := expr.(type) {
	case *Instantiation:
		Walk(e.Target, visit)
		for _, arg := range e.TypeArgs {
			Walk(arg, visit)
		}
	case *Application:
		Walk(e.Callee, visit)
		for _, arg := range e.Arguments {
			Walk(arg, visit)
		}
	}
}
