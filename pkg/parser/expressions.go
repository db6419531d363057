package parser

import (
	"lambda/interpreter-go/pkg/ast"
)

func startsTerm(kind tokenKind) bool {
	switch kind {
	case tokenIdent, tokenString, tokenNumber, tokenLBrace, tokenLParen:
		return true
	default:
		return false
	}
}

// parseCall reads one or more juxtaposed terms, optionally comma separated.
// A single term stands for itself; several form a group.
func (s *state) parseCall() (ast.Expression, error) {
	start := s.peek().start
	first, err := s.parseTerm()
	if err != nil {
		return nil, err
	}
	var args []ast.Expression
	for {
		tok := s.peek()
		if tok.kind == tokenComma && startsTerm(s.peekAt(1).kind) {
			s.advance()
		} else if !startsTerm(tok.kind) {
			break
		}
		arg, err := s.parseTerm()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		return first, nil
	}
	app := ast.NewApplication(first, args)
	s.annotate(app, start)
	return app, nil
}

func (s *state) parseTerm() (ast.Expression, error) {
	tok := s.peek()
	switch tok.kind {
	case tokenIdent:
		id, err := s.parseIdentifier("")
		if err != nil {
			return nil, err
		}
		if s.peek().kind != tokenLAngle {
			return id, nil
		}
		return s.parseInstantiation(id)
	case tokenString:
		s.advance()
		lit := ast.NewStringLiteral(tok.text)
		ast.SetSpan(lit, ast.Span{Start: tok.start, End: tok.end})
		return lit, nil
	case tokenNumber:
		s.advance()
		lit := ast.NewNumberLiteral(tok.number)
		ast.SetSpan(lit, ast.Span{Start: tok.start, End: tok.end})
		return lit, nil
	case tokenLBrace:
		return s.parseGroup(tokenRBrace)
	case tokenLParen:
		return s.parseGroup(tokenRParen)
	default:
		return nil, s.unexpected(tok, "expression")
	}
}

func (s *state) parseGroup(closer tokenKind) (ast.Expression, error) {
	open := s.advance()
	if s.peek().kind == closer {
		return nil, newSyntaxError(open.start, "empty group")
	}
	expr, err := s.parseCall()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(closer, "to close group"); err != nil {
		return nil, err
	}
	if app, ok := expr.(*ast.Application); ok {
		s.annotate(app, open.start)
	}
	return expr, nil
}

// parseInstantiation reads Name<A, B> or the right-nested form
// Name<<A, B, C>>, which stands for Name<A, Name<B, C>>.
func (s *state) parseInstantiation(target *ast.Identifier) (ast.Expression, error) {
	open := s.advance()
	if s.peek().kind == tokenLAngle {
		s.advance()
		args, err := s.parseTypeArgs()
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, newSyntaxError(open.start, "chained instantiation needs at least two arguments")
		}
		if _, err := s.expect(tokenRAngle, "to close chained arguments"); err != nil {
			return nil, err
		}
		if _, err := s.expect(tokenRAngle, "to close chained arguments"); err != nil {
			return nil, err
		}
		inst := ast.ChainInstantiation(target, args)
		spine := inst
		for i := 0; i < len(args)-1; i++ {
			s.annotate(spine, target.Span().Start)
			if next, ok := spine.TypeArgs[1].(*ast.Instantiation); ok && i < len(args)-2 {
				spine = next
			}
		}
		return inst, nil
	}
	args, err := s.parseTypeArgs()
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(tokenRAngle, "to close type arguments"); err != nil {
		return nil, err
	}
	inst := ast.NewInstantiation(target, args)
	s.annotate(inst, target.Span().Start)
	return inst, nil
}

func (s *state) parseTypeArgs() ([]ast.Expression, error) {
	var args []ast.Expression
	for {
		arg, err := s.parseTerm()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if s.peek().kind != tokenComma {
			break
		}
		s.advance()
	}
	return args, nil
}
