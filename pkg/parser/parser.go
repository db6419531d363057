package parser

import (
	"errors"
	"fmt"

	"lambda/interpreter-go/pkg/ast"
)

// ErrSyntax is matched by every error the parser returns.
var ErrSyntax = errors.New("syntax error")

// SyntaxError reports a malformed source position.
type SyntaxError struct {
	Pos     ast.Position
	Message string
}

func newSyntaxError(pos ast.Position, msg string) *SyntaxError {
	return &SyntaxError{Pos: pos, Message: msg}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// ModuleParser turns .lam source into AST modules.
type ModuleParser struct{}

func NewModuleParser() *ModuleParser {
	return &ModuleParser{}
}

// ParseModule parses a complete source file.
func (p *ModuleParser) ParseModule(source []byte) (*ast.Module, error) {
	st, err := newState(source)
	if err != nil {
		return nil, err
	}
	return st.parseModule()
}

// ParseExpression parses a single application expression, with an optional
// trailing semicolon.
func (p *ModuleParser) ParseExpression(source []byte) (ast.Expression, error) {
	st, err := newState(source)
	if err != nil {
		return nil, err
	}
	expr, err := st.parseCall()
	if err != nil {
		return nil, err
	}
	if st.peek().kind == tokenSemicolon {
		st.advance()
	}
	if tok := st.peek(); tok.kind != tokenEOF {
		return nil, st.unexpected(tok, "end of expression")
	}
	return expr, nil
}

// StartsWithDeclaration reports whether source begins with a top-level keyword,
// distinguishing declarations from bare expressions in interactive input.
func StartsWithDeclaration(source []byte) bool {
	tok, err := newLexer(source).next()
	return err == nil && tok.kind == tokenKeyword
}

// PackageName lexes only the leading package statement of source and returns
// its path, or nil when the source does not start with one.
func PackageName(source []byte) ([]string, error) {
	lx := newLexer(source)
	tok, err := lx.next()
	if err != nil {
		return nil, err
	}
	if tok.kind != tokenKeyword || tok.text != "package" {
		return nil, nil
	}
	var path []string
	for {
		tok, err = lx.next()
		if err != nil {
			return nil, err
		}
		if tok.kind != tokenIdent {
			return nil, newSyntaxError(tok.start, "expected identifier in package path")
		}
		path = append(path, tok.text)
		tok, err = lx.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokenDot:
		case tokenSemicolon:
			return path, nil
		default:
			return nil, newSyntaxError(tok.start, "expected ';' after package statement")
		}
	}
}

type state struct {
	tokens  []token
	pos     int
	lastEnd ast.Position
}

func newState(source []byte) (*state, error) {
	tokens, err := newLexer(source).tokens()
	if err != nil {
		return nil, err
	}
	return &state{tokens: tokens}, nil
}

func (s *state) peek() token {
	return s.tokens[s.pos]
}

func (s *state) peekAt(offset int) token {
	if s.pos+offset >= len(s.tokens) {
		return s.tokens[len(s.tokens)-1]
	}
	return s.tokens[s.pos+offset]
}

func (s *state) advance() token {
	tok := s.tokens[s.pos]
	if tok.kind != tokenEOF {
		s.pos++
	}
	s.lastEnd = tok.end
	return tok
}

func (s *state) expect(kind tokenKind, context string) (token, error) {
	tok := s.peek()
	if tok.kind != kind {
		return tok, s.unexpected(tok, fmt.Sprintf("%s %s", kind, context))
	}
	return s.advance(), nil
}

func (s *state) expectKeyword(word string) error {
	tok := s.peek()
	if tok.kind != tokenKeyword || tok.text != word {
		return s.unexpected(tok, fmt.Sprintf("%q", word))
	}
	s.advance()
	return nil
}

func (s *state) unexpected(tok token, want string) error {
	got := tok.kind.String()
	if tok.text != "" && tok.kind != tokenEOF {
		got = fmt.Sprintf("%s %q", got, tok.text)
	}
	return newSyntaxError(tok.start, fmt.Sprintf("expected %s, found %s", want, got))
}

func (s *state) annotate(node ast.Node, start ast.Position) {
	ast.SetSpan(node, ast.Span{Start: start, End: s.lastEnd})
}

func (s *state) parseModule() (*ast.Module, error) {
	start := s.peek().start
	var (
		pkg     *ast.PackageStatement
		imports []*ast.ImportStatement
		body    []ast.Statement
	)
	for s.peek().kind != tokenEOF {
		tok := s.peek()
		if tok.kind != tokenKeyword {
			return nil, s.unexpected(tok, "declaration")
		}
		switch tok.text {
		case "package":
			if pkg != nil || len(imports) > 0 || len(body) > 0 {
				return nil, newSyntaxError(tok.start, "package statement must be the first item in a file")
			}
			stmt, err := s.parsePackage()
			if err != nil {
				return nil, err
			}
			pkg = stmt
		case "import":
			stmt, err := s.parseImport()
			if err != nil {
				return nil, err
			}
			imports = append(imports, stmt)
		case "pub", "fn", "atom":
			stmt, err := s.parseDeclaration()
			if err != nil {
				return nil, err
			}
			body = append(body, stmt)
		case "eval":
			stmt, err := s.parseEval()
			if err != nil {
				return nil, err
			}
			body = append(body, stmt)
		case "assert":
			stmt, err := s.parseAssert()
			if err != nil {
				return nil, err
			}
			body = append(body, stmt)
		default:
			return nil, s.unexpected(tok, "declaration")
		}
	}
	mod := ast.NewModule(body, imports, pkg)
	s.annotate(mod, start)
	return mod, nil
}

func (s *state) parsePath() ([]*ast.Identifier, error) {
	var path []*ast.Identifier
	for {
		id, err := s.parseIdentifier("in package path")
		if err != nil {
			return nil, err
		}
		path = append(path, id)
		if s.peek().kind != tokenDot {
			return path, nil
		}
		s.advance()
	}
}

func (s *state) parsePackage() (*ast.PackageStatement, error) {
	start := s.advance().start
	path, err := s.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenSemicolon, "after package statement"); err != nil {
		return nil, err
	}
	stmt := ast.NewPackageStatement(path)
	s.annotate(stmt, start)
	return stmt, nil
}

func (s *state) parseImport() (*ast.ImportStatement, error) {
	start := s.advance().start
	path, err := s.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenSemicolon, "after import statement"); err != nil {
		return nil, err
	}
	stmt := ast.NewImportStatement(path)
	s.annotate(stmt, start)
	return stmt, nil
}

func (s *state) parseIdentifier(context string) (*ast.Identifier, error) {
	tok, err := s.expect(tokenIdent, context)
	if err != nil {
		return nil, err
	}
	id := ast.NewIdentifier(tok.text)
	ast.SetSpan(id, ast.Span{Start: tok.start, End: tok.end})
	return id, nil
}

func (s *state) parseDeclaration() (ast.Statement, error) {
	start := s.peek().start
	isPrivate := true
	if tok := s.peek(); tok.kind == tokenKeyword && tok.text == "pub" {
		s.advance()
		isPrivate = false
	}
	tok := s.peek()
	if tok.kind == tokenKeyword && tok.text == "atom" {
		s.advance()
		return s.parseAtoms(start, isPrivate)
	}
	if err := s.expectKeyword("fn"); err != nil {
		return nil, err
	}
	return s.parseDefinition(start, isPrivate)
}

func (s *state) parseAtoms(start ast.Position, isPrivate bool) (ast.Statement, error) {
	var names []*ast.Identifier
	for {
		id, err := s.parseIdentifier("in atom declaration")
		if err != nil {
			return nil, err
		}
		names = append(names, id)
		if s.peek().kind != tokenComma {
			break
		}
		s.advance()
	}
	if _, err := s.expect(tokenSemicolon, "after atom declaration"); err != nil {
		return nil, err
	}
	decl := ast.NewAtomDeclaration(names, isPrivate)
	s.annotate(decl, start)
	return decl, nil
}

func (s *state) parseDefinition(start ast.Position, isPrivate bool) (ast.Statement, error) {
	id, err := s.parseIdentifier("as definition name")
	if err != nil {
		return nil, err
	}
	var typeParams []*ast.Identifier
	if s.peek().kind == tokenLAngle {
		s.advance()
		for {
			tp, err := s.parseIdentifier("in type parameter list")
			if err != nil {
				return nil, err
			}
			typeParams = append(typeParams, tp)
			if s.peek().kind != tokenComma {
				break
			}
			s.advance()
		}
		if _, err := s.expect(tokenRAngle, "to close type parameter list"); err != nil {
			return nil, err
		}
	}
	if _, err := s.expect(tokenDefine, "after definition name"); err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenLBrace, "to open definition body"); err != nil {
		return nil, err
	}
	var params []*ast.Identifier
	for s.peek().kind == tokenIdent && s.peekAt(1).kind == tokenDot {
		param, err := s.parseIdentifier("as parameter")
		if err != nil {
			return nil, err
		}
		s.advance()
		params = append(params, param)
	}
	body, err := s.parseCall()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenRBrace, "to close definition body"); err != nil {
		return nil, err
	}
	var preconditions []*ast.Precondition
	if tok := s.peek(); tok.kind == tokenKeyword && tok.text == "where" {
		s.advance()
		for {
			pre, err := s.parsePrecondition()
			if err != nil {
				return nil, err
			}
			preconditions = append(preconditions, pre)
			if s.peek().kind != tokenComma {
				break
			}
			s.advance()
			if s.peek().kind == tokenSemicolon {
				break
			}
		}
	}
	if _, err := s.expect(tokenSemicolon, "after definition"); err != nil {
		return nil, err
	}
	def := ast.NewDefinition(id, typeParams, params, body, preconditions, isPrivate)
	s.annotate(def, start)
	return def, nil
}

func (s *state) parsePrecondition() (*ast.Precondition, error) {
	start := s.peek().start
	function, err := s.parseTerm()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenColon, "in precondition"); err != nil {
		return nil, err
	}
	argument, err := s.parseTerm()
	if err != nil {
		return nil, err
	}
	pre := ast.NewPrecondition(function, argument)
	s.annotate(pre, start)
	return pre, nil
}

func (s *state) parseEval() (ast.Statement, error) {
	start := s.advance().start
	expr, err := s.parseCall()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenSemicolon, "after eval statement"); err != nil {
		return nil, err
	}
	stmt := ast.NewEvalStatement(expr)
	s.annotate(stmt, start)
	return stmt, nil
}

func (s *state) parseAssert() (ast.Statement, error) {
	start := s.advance().start
	actual, err := s.parseCall()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenEquals, "in assert statement"); err != nil {
		return nil, err
	}
	expected, err := s.parseCall()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenSemicolon, "after assert statement"); err != nil {
		return nil, err
	}
	stmt := ast.NewAssertStatement(actual, expected)
	s.annotate(stmt, start)
	return stmt, nil
}
