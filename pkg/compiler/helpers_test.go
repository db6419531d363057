package compiler

import (
	"testing"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/parser"
)

func parseExpr(t *testing.T, src string) ast.Expression {
	t.Helper()
	expr, err := parser.NewModuleParser().ParseExpression([]byte(src))
	if err != nil {
		t.Fatalf("ParseExpression(%q): %v", src, err)
	}
	return expr
}
