package interpreter

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/holla2040/loxr/internal/script/variable"
)

// Native is a function implemented in Go and callable from Lox code.
type Native struct {
	name  string
	arity int
	fn    func(args []any) (any, error)
}

// NewNative wraps fn as a Lox callable. The interpreter checks the argument
// count against arity before fn runs.
func NewNative(name string, arity int, fn func(args []any) (any, error)) *Native {
	return &Native{name: name, arity: arity, fn: fn}
}

// Arity implements variable.Callable.
func (n *Native) Arity() int { return n.arity }

// Call implements variable.Callable.
func (n *Native) Call(args []any) (any, error) { return n.fn(args) }

func (n *Native) String() string { return "<native fn " + n.name + ">" }

// builtins returns the natives every interpreter starts with. clock reads
// the interpreter's time source at call time, so WithClock applies even
// though it runs after this.
func builtins(in *Interpreter) map[string]variable.Callable {
	return map[string]variable.Callable{
		"clock": NewNative("clock", 0, func(args []any) (any, error) {
			return float64(in.now().UnixNano()) / float64(time.Second), nil
		}),
		"str": NewNative("str", 1, func(args []any) (any, error) {
			return variable.Stringify(args[0]), nil
		}),
		"type": NewNative("type", 1, func(args []any) (any, error) {
			return variable.TypeName(args[0]), nil
		}),
		"len": NewNative("len", 1, func(args []any) (any, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("%w: len() requires a string, got %s", variable.ErrType, variable.TypeName(args[0]))
			}
			return float64(utf8.RuneCountInString(s)), nil
		}),
	}
}
