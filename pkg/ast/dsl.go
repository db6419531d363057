package ast

import "math/big"

// Identifier and literal helpers.

func ID(name string) *Identifier {
	return NewIdentifier(name)
}

func IDs(names ...string) []*Identifier {
	out := make([]*Identifier, 0, len(names))
	for _, name := range names {
		out = append(out, ID(name))
	}
	return out
}

func Str(value string) *StringLiteral {
	return NewStringLiteral(value)
}

func Num(value int64) *NumberLiteral {
	return NewNumberLiteral(big.NewInt(value))
}

// Expression helpers.

func Inst(target string, typeArgs ...Expression) *Instantiation {
	return NewInstantiation(ID(target), typeArgs)
}

func App(callee Expression, args ...Expression) *Application {
	return NewApplication(callee, args)
}

// Call builds a group from named references: Call("If", "P", "T", "F").
func Call(callee string, args ...string) *Application {
	exprs := make([]Expression, 0, len(args))
	for _, arg := range args {
		exprs = append(exprs, ID(arg))
	}
	return NewApplication(ID(callee), exprs)
}

func Pre(function, argument Expression) *Precondition {
	return NewPrecondition(function, argument)
}

// Statement helpers.

func Fn(name string, params []string, body Expression, preconditions ...*Precondition) *Definition {
	return NewDefinition(ID(name), nil, IDs(params...), body, preconditions, false)
}

func FnGeneric(name string, typeParams []string, params []string, body Expression, preconditions ...*Precondition) *Definition {
	return NewDefinition(ID(name), IDs(typeParams...), IDs(params...), body, preconditions, false)
}

func Atoms(names ...string) *AtomDeclaration {
	return NewAtomDeclaration(IDs(names...), false)
}

func Eval(expr Expression) *EvalStatement {
	return NewEvalStatement(expr)
}

func Assert(actual, expected Expression) *AssertStatement {
	return NewAssertStatement(actual, expected)
}

func Pkg(path ...string) *PackageStatement {
	return NewPackageStatement(IDs(path...))
}

func Imp(path ...string) *ImportStatement {
	return NewImportStatement(IDs(path...))
}

func Mod(body []Statement, imports []*ImportStatement, pkg *PackageStatement) *Module {
	return NewModule(body, imports, pkg)
}
