package variable

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Runtime values are plain Go values:
//
//	Number   float64
//	String   string
//	Boolean  bool
//	Nil      nil
//	Callable Callable

// Sentinel errors returned by the operators below. Callers attach the
// offending token and classify with errors.Is.
var (
	ErrType           = errors.New("type error")
	ErrDivisionByZero = errors.New("division by zero")
)

// Callable is a value that can be invoked with call syntax.
type Callable interface {
	Arity() int
	Call(args []any) (any, error)
	String() string
}

// ---------------------------------------------------------------------------
// Type helpers
// ---------------------------------------------------------------------------

// Stringify renders a value the way print shows it. Integral numbers have no
// decimal point and nil is "nil".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatNumber(val)
	case string:
		return val
	case Callable:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsTruthy returns the truthiness of a value: nil and false are falsy,
// everything else (including 0 and "") is truthy.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

// TypeName returns the type name of a value for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case Callable:
		return "function"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ---------------------------------------------------------------------------
// Arithmetic operations
// ---------------------------------------------------------------------------

// Add adds two numbers or concatenates two strings.
func Add(a, b any) (any, error) {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av + bv, nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return av + bv, nil
		}
	}
	return nil, fmt.Errorf("%w: operands must be two numbers or two strings, got %s and %s",
		ErrType, TypeName(a), TypeName(b))
}

// Subtract performs subtraction. Numeric only.
func Subtract(a, b any) (any, error) {
	fa, fb, err := numbers(a, b)
	if err != nil {
		return nil, err
	}
	return fa - fb, nil
}

// Multiply performs multiplication. Numeric only.
func Multiply(a, b any) (any, error) {
	fa, fb, err := numbers(a, b)
	if err != nil {
		return nil, err
	}
	return fa * fb, nil
}

// Divide performs division. Dividing by zero is an error rather than an
// infinity.
func Divide(a, b any) (any, error) {
	fa, fb, err := numbers(a, b)
	if err != nil {
		return nil, err
	}
	if fb == 0 {
		return nil, ErrDivisionByZero
	}
	return fa / fb, nil
}

// Modulo returns the floating-point remainder of a / b, with the sign of a.
func Modulo(a, b any) (any, error) {
	fa, fb, err := numbers(a, b)
	if err != nil {
		return nil, err
	}
	if fb == 0 {
		return nil, ErrDivisionByZero
	}
	return math.Mod(fa, fb), nil
}

// Compare returns -1, 0, or 1 comparing a and b. Both must be numbers.
func Compare(a, b any) (int, error) {
	fa, fb, err := numbers(a, b)
	if err != nil {
		return 0, err
	}
	switch {
	case fa < fb:
		return -1, nil
	case fa > fb:
		return 1, nil
	default:
		return 0, nil
	}
}

// Equal reports value equality. Values of different kinds are never equal
// and nil equals only nil.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case Callable:
		bv, ok := b.(Callable)
		return ok && av == bv
	default:
		return false
	}
}

// Negate performs unary minus on a number.
func Negate(v any) (any, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: operand must be a number, got %s", ErrType, TypeName(v))
	}
	return -f, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func numbers(a, b any) (float64, float64, error) {
	fa, aOk := a.(float64)
	fb, bOk := b.(float64)
	if !aOk || !bOk {
		return 0, 0, fmt.Errorf("%w: operands must be numbers, got %s and %s",
			ErrType, TypeName(a), TypeName(b))
	}
	return fa, fb, nil
}
