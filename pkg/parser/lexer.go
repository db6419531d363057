package parser

import (
	"fmt"
	"math/big"
	"strconv"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"lambda/interpreter-go/pkg/ast"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenKeyword
	tokenString
	tokenNumber
	tokenLBrace
	tokenRBrace
	tokenLParen
	tokenRParen
	tokenLAngle
	tokenRAngle
	tokenComma
	tokenDot
	tokenSemicolon
	tokenColon
	tokenDefine
	tokenEquals
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of input"
	case tokenIdent:
		return "identifier"
	case tokenKeyword:
		return "keyword"
	case tokenString:
		return "string"
	case tokenNumber:
		return "number"
	case tokenLBrace:
		return "'{'"
	case tokenRBrace:
		return "'}'"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLAngle:
		return "'<'"
	case tokenRAngle:
		return "'>'"
	case tokenComma:
		return "','"
	case tokenDot:
		return "'.'"
	case tokenSemicolon:
		return "';'"
	case tokenColon:
		return "':'"
	case tokenDefine:
		return "'::='"
	case tokenEquals:
		return "'=='"
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

var keywords = map[string]struct{}{
	"package": {},
	"import":  {},
	"pub":     {},
	"atom":    {},
	"fn":      {},
	"where":   {},
	"eval":    {},
	"assert":  {},
}

// IsKeyword reports whether name is reserved by the grammar.
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

type token struct {
	kind   tokenKind
	text   string
	number *big.Int
	start  ast.Position
	end    ast.Position
}

type lexer struct {
	src    []byte
	offset int
	line   int
	column int
}

func newLexer(src []byte) *lexer {
	return &lexer{src: src, line: 1, column: 1}
}

func (l *lexer) position() ast.Position {
	return ast.Position{Line: l.line, Column: l.column}
}

func (l *lexer) peekRune() (rune, int) {
	if l.offset >= len(l.src) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRune(l.src[l.offset:])
}

func (l *lexer) advance() rune {
	r, size := l.peekRune()
	if size == 0 {
		return utf8.RuneError
	}
	l.offset += size
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *lexer) hasPrefix(s string) bool {
	return len(l.src)-l.offset >= len(s) && string(l.src[l.offset:l.offset+len(s)]) == s
}

func (l *lexer) skipTrivia() error {
	for l.offset < len(l.src) {
		r, _ := l.peekRune()
		switch {
		case unicode.IsSpace(r):
			l.advance()
		case l.hasPrefix("//"):
			for l.offset < len(l.src) {
				if l.advance() == '\n' {
					break
				}
			}
		case l.hasPrefix("/*"):
			start := l.position()
			l.advance()
			l.advance()
			closed := false
			for l.offset < len(l.src) {
				if l.hasPrefix("*/") {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return newSyntaxError(start, "unterminated block comment")
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokenEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	if err := l.skipTrivia(); err != nil {
		return token{}, err
	}
	start := l.position()
	if l.offset >= len(l.src) {
		return token{kind: tokenEOF, start: start, end: start}, nil
	}
	if l.hasPrefix("::=") {
		for i := 0; i < 3; i++ {
			l.advance()
		}
		return token{kind: tokenDefine, text: "::=", start: start, end: l.position()}, nil
	}
	if l.hasPrefix("==") {
		l.advance()
		l.advance()
		return token{kind: tokenEquals, text: "==", start: start, end: l.position()}, nil
	}
	r, _ := l.peekRune()
	// '>' is always a single token so nested instantiations can close with '>>'.
	if kind, ok := punctuation[r]; ok {
		l.advance()
		return token{kind: kind, text: string(r), start: start, end: l.position()}, nil
	}
	switch {
	case r == '"':
		return l.lexString(start)
	case r >= '0' && r <= '9':
		return l.lexNumber(start)
	case r == '_' || unicode.IsLetter(r):
		return l.lexIdentifier(start), nil
	case r == utf8.RuneError:
		return token{}, newSyntaxError(start, "invalid UTF-8 in source")
	default:
		return token{}, newSyntaxError(start, fmt.Sprintf("unexpected character %q", r))
	}
}

var punctuation = map[rune]tokenKind{
	'{': tokenLBrace,
	'}': tokenRBrace,
	'(': tokenLParen,
	')': tokenRParen,
	'<': tokenLAngle,
	'>': tokenRAngle,
	',': tokenComma,
	'.': tokenDot,
	';': tokenSemicolon,
	':': tokenColon,
}

func (l *lexer) lexIdentifier(start ast.Position) token {
	begin := l.offset
	for l.offset < len(l.src) {
		r, _ := l.peekRune()
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) {
			break
		}
		l.advance()
	}
	text := norm.NFC.String(string(l.src[begin:l.offset]))
	kind := tokenIdent
	if IsKeyword(text) {
		kind = tokenKeyword
	}
	return token{kind: kind, text: text, start: start, end: l.position()}
}

func (l *lexer) lexNumber(start ast.Position) (token, error) {
	begin := l.offset
	for l.offset < len(l.src) {
		r, _ := l.peekRune()
		if r < '0' || r > '9' {
			break
		}
		l.advance()
	}
	text := string(l.src[begin:l.offset])
	if r, _ := l.peekRune(); l.offset < len(l.src) && (r == '_' || unicode.IsLetter(r)) {
		return token{}, newSyntaxError(start, fmt.Sprintf("malformed number literal %q", text+string(r)))
	}
	value, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return token{}, newSyntaxError(start, fmt.Sprintf("malformed number literal %q", text))
	}
	return token{kind: tokenNumber, text: text, number: value, start: start, end: l.position()}, nil
}

func (l *lexer) lexString(start ast.Position) (token, error) {
	begin := l.offset
	l.advance()
	for {
		if l.offset >= len(l.src) {
			return token{}, newSyntaxError(start, "unterminated string literal")
		}
		r := l.advance()
		if r == '\n' {
			return token{}, newSyntaxError(start, "newline in string literal")
		}
		if r == '\\' {
			if l.offset >= len(l.src) {
				return token{}, newSyntaxError(start, "unterminated string literal")
			}
			l.advance()
			continue
		}
		if r == '"' {
			break
		}
	}
	raw := string(l.src[begin:l.offset])
	value, err := strconv.Unquote(raw)
	if err != nil {
		return token{}, newSyntaxError(start, fmt.Sprintf("invalid string literal %s", raw))
	}
	return token{kind: tokenString, text: norm.NFC.String(value), start: start, end: l.position()}, nil
}
