package ast

import "strings"

// Definitions

// Precondition declares that applying Function to Argument resolves.
type Precondition struct {
	nodeImpl

	Function Expression `json:"function"`
	Argument Expression `json:"argument"`
}

func NewPrecondition(function, argument Expression) *Precondition {
	return &Precondition{nodeImpl: newNodeImpl(NodePrecondition), Function: function, Argument: argument}
}

type Definition struct {
	nodeImpl
	statementMarker

	ID            *Identifier     `json:"id"`
	TypeParams    []*Identifier   `json:"typeParams,omitempty"`
	Params        []*Identifier   `json:"params"`
	Body          Expression      `json:"body"`
	Preconditions []*Precondition `json:"preconditions,omitempty"`
	IsPrivate     bool            `json:"isPrivate,omitempty"`
}

func NewDefinition(id *Identifier, typeParams, params []*Identifier, body Expression, preconditions []*Precondition, isPrivate bool) *Definition {
	return &Definition{
		nodeImpl:      newNodeImpl(NodeDefinition),
		ID:            id,
		TypeParams:    typeParams,
		Params:        params,
		Body:          body,
		Preconditions: preconditions,
		IsPrivate:     isPrivate,
	}
}

// Arity counts type parameters and parameters; both bind one argument each.
func (d *Definition) Arity() int {
	return len(d.TypeParams) + len(d.Params)
}

// Slots lists the binding names in application order.
func (d *Definition) Slots() []*Identifier {
	out := make([]*Identifier, 0, d.Arity())
	out = append(out, d.TypeParams...)
	out = append(out, d.Params...)
	return out
}

type AtomDeclaration struct {
	nodeImpl
	statementMarker

	Names     []*Identifier `json:"names"`
	IsPrivate bool          `json:"isPrivate,omitempty"`
}

func NewAtomDeclaration(names []*Identifier, isPrivate bool) *AtomDeclaration {
	return &AtomDeclaration{nodeImpl: newNodeImpl(NodeAtomDeclaration), Names: names, IsPrivate: isPrivate}
}

// Top-level statements

type EvalStatement struct {
	nodeImpl
	statementMarker

	Expression Expression `json:"expression"`
}

func NewEvalStatement(expr Expression) *EvalStatement {
	return &EvalStatement{nodeImpl: newNodeImpl(NodeEvalStatement), Expression: expr}
}

type AssertStatement struct {
	nodeImpl
	statementMarker

	Actual   Expression `json:"actual"`
	Expected Expression `json:"expected"`
}

func NewAssertStatement(actual, expected Expression) *AssertStatement {
	return &AssertStatement{nodeImpl: newNodeImpl(NodeAssertStatement), Actual: actual, Expected: expected}
}

// Packages

type PackageStatement struct {
	nodeImpl

	NamePath []*Identifier `json:"namePath"`
}

func NewPackageStatement(namePath []*Identifier) *PackageStatement {
	return &PackageStatement{nodeImpl: newNodeImpl(NodePackageStatement), NamePath: namePath}
}

type ImportStatement struct {
	nodeImpl

	PackagePath []*Identifier `json:"packagePath"`
}

func NewImportStatement(packagePath []*Identifier) *ImportStatement {
	return &ImportStatement{nodeImpl: newNodeImpl(NodeImportStatement), PackagePath: packagePath}
}

type Module struct {
	nodeImpl

	Package *PackageStatement  `json:"package,omitempty"`
	Imports []*ImportStatement `json:"imports"`
	Body    []Statement        `json:"body"`
}

func NewModule(body []Statement, imports []*ImportStatement, pkg *PackageStatement) *Module {
	return &Module{nodeImpl: newNodeImpl(NodeModule), Package: pkg, Imports: imports, Body: body}
}

// JoinPath renders a dotted package path.
func JoinPath(path []*Identifier) string {
	parts := make([]string, 0, len(path))
	for _, id := range path {
		if id == nil {
			continue
		}
		parts = append(parts, id.Name)
	}
	return strings.Join(parts, ".")
}
