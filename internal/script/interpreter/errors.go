package interpreter

import (
	"errors"
	"fmt"

	"github.com/holla2040/loxr/internal/script/token"
	"github.com/holla2040/loxr/internal/script/variable"
)

var (
	// ErrArity is wrapped by errors raised when a call passes the wrong
	// number of arguments.
	ErrArity = errors.New("arity mismatch")

	errInterrupted = errors.New("execution interrupted")
)

// ErrorKind classifies a RuntimeError.
type ErrorKind int

const (
	TypeError ErrorKind = iota
	DivisionByZero
	UndefinedVariable
	ArityMismatch
	Interrupted
)

var kindNames = map[ErrorKind]string{
	TypeError:         "TypeError",
	DivisionByZero:    "DivisionByZero",
	UndefinedVariable: "UndefinedVariable",
	ArityMismatch:     "ArityMismatch",
	Interrupted:       "Interrupted",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// RuntimeError aborts execution of a program. Token is the operator, name,
// or keyword the error is attributed to.
type RuntimeError struct {
	Kind    ErrorKind
	Token   token.Token
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("[line %d] %s", e.Token.Pos.Line, e.Message)
}

// Unwrap exposes the underlying cause, so errors.Is matches the sentinels
// in package variable.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// InternalError reports a broken interpreter invariant, such as a break
// signal reaching the top level. It is never caused by valid user input
// that passed the parser.
type InternalError struct {
	Message string
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

// runtimeError attributes err to tok, classifying it by its sentinel.
func runtimeError(tok token.Token, err error) *RuntimeError {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}

	kind := TypeError
	switch {
	case errors.Is(err, variable.ErrDivisionByZero):
		kind = DivisionByZero
	case errors.Is(err, variable.ErrUndefined):
		kind = UndefinedVariable
	case errors.Is(err, ErrArity):
		kind = ArityMismatch
	case errors.Is(err, errInterrupted):
		kind = Interrupted
	}
	return &RuntimeError{Kind: kind, Token: tok, Message: err.Error(), Err: err}
}
