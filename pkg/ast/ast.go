package ast

import "math/big"

type NodeType string

const (
	NodeIdentifier       NodeType = "Identifier"
	NodeStringLiteral    NodeType = "StringLiteral"
	NodeNumberLiteral    NodeType = "NumberLiteral"
	NodeInstantiation    NodeType = "Instantiation"
	NodeApplication      NodeType = "Application"
	NodePrecondition     NodeType = "Precondition"
	NodeDefinition       NodeType = "Definition"
	NodeAtomDeclaration  NodeType = "AtomDeclaration"
	NodeEvalStatement    NodeType = "EvalStatement"
	NodeAssertStatement  NodeType = "AssertStatement"
	NodePackageStatement NodeType = "PackageStatement"
	NodeImportStatement  NodeType = "ImportStatement"
	NodeModule           NodeType = "Module"
)

type Node interface {
	NodeType() NodeType
	Span() Span
	isNode()
}

// Position is a 1-based line/column pair.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (s Span) IsZero() bool {
	return s.Start.Line == 0 && s.Start.Column == 0 && s.End.Line == 0 && s.End.Column == 0
}

type nodeImpl struct {
	Type NodeType `json:"type"`
	Loc  Span     `json:"span,omitempty"`
}

func newNodeImpl(kind NodeType) nodeImpl {
	return nodeImpl{Type: kind}
}

func (n nodeImpl) NodeType() NodeType { return n.Type }
func (n nodeImpl) Span() Span         { return n.Loc }
func (nodeImpl) isNode()              {}

func (n *nodeImpl) setSpan(span Span) { n.Loc = span }

type spanSetter interface {
	setSpan(Span)
}

// SetSpan records the source range of a node produced by the parser.
func SetSpan(node Node, span Span) {
	if setter, ok := node.(spanSetter); ok {
		setter.setSpan(span)
	}
}

// Marker interfaces.

type Expression interface {
	Node
	expressionNode()
}

type expressionMarker struct{}

func (expressionMarker) expressionNode() {}

type Statement interface {
	Node
	statementNode()
}

type statementMarker struct{}

func (statementMarker) statementNode() {}

// Identifier

type Identifier struct {
	nodeImpl
	expressionMarker

	Name string `json:"name"`
}

func NewIdentifier(name string) *Identifier {
	return &Identifier{nodeImpl: newNodeImpl(NodeIdentifier), Name: name}
}

// Literals

type StringLiteral struct {
	nodeImpl
	expressionMarker

	Value string `json:"value"`
}

func NewStringLiteral(value string) *StringLiteral {
	return &StringLiteral{nodeImpl: newNodeImpl(NodeStringLiteral), Value: value}
}

type NumberLiteral struct {
	nodeImpl
	expressionMarker

	Value *big.Int `json:"value"`
}

func NewNumberLiteral(value *big.Int) *NumberLiteral {
	return &NumberLiteral{nodeImpl: newNodeImpl(NodeNumberLiteral), Value: value}
}

// Instantiation binds the leading type parameters of a definition: Constant<X>.
type Instantiation struct {
	nodeImpl
	expressionMarker

	Target   *Identifier  `json:"target"`
	TypeArgs []Expression `json:"typeArgs"`
}

func NewInstantiation(target *Identifier, typeArgs []Expression) *Instantiation {
	return &Instantiation{nodeImpl: newNodeImpl(NodeInstantiation), Target: target, TypeArgs: typeArgs}
}

// ChainInstantiation right-nests a two-argument instantiation over args, so
// that Composed over A, B, C becomes Composed<A, Composed<B, C>>. args must
// hold at least two expressions.
func ChainInstantiation(target *Identifier, args []Expression) *Instantiation {
	inner := NewInstantiation(target, args[len(args)-2:])
	for i := len(args) - 3; i >= 0; i-- {
		id := NewIdentifier(target.Name)
		SetSpan(id, target.Span())
		inner = NewInstantiation(id, []Expression{args[i], inner})
	}
	return inner
}

// Application is a group: the callee followed by one or more arguments,
// folded left to right at resolution time.
type Application struct {
	nodeImpl
	expressionMarker

	Callee    Expression   `json:"callee"`
	Arguments []Expression `json:"arguments"`
}

func NewApplication(callee Expression, args []Expression) *Application {
	return &Application{nodeImpl: newNodeImpl(NodeApplication), Callee: callee, Arguments: args}
}
