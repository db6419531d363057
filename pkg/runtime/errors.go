package runtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies resolution and compilation failures.
type ErrorKind int

const (
	ErrorUnboundName ErrorKind = iota + 1
	ErrorArityMismatch
	ErrorShapeMismatch
	ErrorNonTermination
	ErrorDuplicateName
	ErrorAmbiguousName
	ErrorImport
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorUnboundName:
		return "UnboundName"
	case ErrorArityMismatch:
		return "ArityMismatch"
	case ErrorShapeMismatch:
		return "ShapeMismatch"
	case ErrorNonTermination:
		return "NonTermination"
	case ErrorDuplicateName:
		return "DuplicateName"
	case ErrorAmbiguousName:
		return "AmbiguousName"
	case ErrorImport:
		return "ImportError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ParseErrorKind maps the names printed by ErrorKind.String back to kinds.
func ParseErrorKind(name string) (ErrorKind, bool) {
	for k := ErrorUnboundName; k <= ErrorImport; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Error is the single error type raised by compilation and resolution.
type Error struct {
	Kind    ErrorKind
	Message string
	// Expr is the offending sub-expression in surface syntax, when known.
	Expr string
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	if e.Expr != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Kind, e.Message, e.Expr)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && other.Message == ""
}

var (
	ErrUnboundName    = &Error{Kind: ErrorUnboundName}
	ErrArityMismatch  = &Error{Kind: ErrorArityMismatch}
	ErrShapeMismatch  = &Error{Kind: ErrorShapeMismatch}
	ErrNonTermination = &Error{Kind: ErrorNonTermination}
	ErrDuplicateName  = &Error{Kind: ErrorDuplicateName}
	ErrAmbiguousName  = &Error{Kind: ErrorAmbiguousName}
	ErrImport         = &Error{Kind: ErrorImport}
)

// KindOf extracts the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var rtErr *Error
	if errors.As(err, &rtErr) {
		return rtErr.Kind, true
	}
	return 0, false
}
