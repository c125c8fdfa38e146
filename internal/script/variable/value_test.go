package variable

import (
	"errors"
	"math"
	"testing"
)

type stubCallable struct{ name string }

func (s *stubCallable) Arity() int                   { return 0 }
func (s *stubCallable) Call(args []any) (any, error) { return nil, nil }
func (s *stubCallable) String() string               { return "<fn " + s.name + ">" }

// ---------------------------------------------------------------------------
// Stringify
// ---------------------------------------------------------------------------

func TestStringify(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, "nil"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"integral", 3.0, "3"},
		{"negative integral", -12.0, "-12"},
		{"zero", 0.0, "0"},
		{"decimal", 2.5, "2.5"},
		{"sum", 0.1 + 0.2, "0.30000000000000004"},
		{"large", 1e21, "1000000000000000000000"},
		{"infinity", math.Inf(1), "inf"},
		{"string", "hello", "hello"},
		{"callable", &stubCallable{name: "f"}, "<fn f>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Stringify(tc.input); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

func TestIsTruthy(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"zero", 0.0, true},
		{"empty string", "", true},
		{"callable", &stubCallable{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTruthy(tc.input); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	cases := []struct {
		name    string
		op      func(a, b any) (any, error)
		a, b    any
		want    any
		wantErr error
	}{
		{"add numbers", Add, 1.0, 2.0, 3.0, nil},
		{"concat strings", Add, "a", "b", "ab", nil},
		{"add number and string", Add, 1.0, "a", nil, ErrType},
		{"add string and number", Add, "a", 1.0, nil, ErrType},
		{"add nils", Add, nil, nil, nil, ErrType},
		{"subtract", Subtract, 5.0, 3.0, 2.0, nil},
		{"subtract strings", Subtract, "a", "b", nil, ErrType},
		{"multiply", Multiply, 4.0, 2.5, 10.0, nil},
		{"multiply bool", Multiply, true, 2.0, nil, ErrType},
		{"divide", Divide, 7.0, 2.0, 3.5, nil},
		{"divide by zero", Divide, 1.0, 0.0, nil, ErrDivisionByZero},
		{"divide string", Divide, "a", 1.0, nil, ErrType},
		{"modulo", Modulo, 7.0, 3.0, 1.0, nil},
		{"modulo negative", Modulo, -7.0, 3.0, -1.0, nil},
		{"modulo decimal", Modulo, 5.5, 2.0, 1.5, nil},
		{"modulo by zero", Modulo, 1.0, 0.0, nil, ErrDivisionByZero},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.op(tc.a, tc.b)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v (value %v)", tc.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTypeErrorMessage(t *testing.T) {
	_, err := Add(1.0, "a")
	want := "type error: operands must be two numbers or two strings, got number and string"
	if err == nil || err.Error() != want {
		t.Errorf("got %v, want %q", err, want)
	}
}

func TestNegate(t *testing.T) {
	got, err := Negate(3.0)
	if err != nil || got != -3.0 {
		t.Errorf("got %v, %v", got, err)
	}
	if _, err := Negate("3"); !errors.Is(err, ErrType) {
		t.Errorf("expected ErrType, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Comparison and equality
// ---------------------------------------------------------------------------

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b any
		want int
	}{
		{1.0, 2.0, -1},
		{2.0, 1.0, 1},
		{2.0, 2.0, 0},
	}
	for _, tc := range cases {
		got, err := Compare(tc.a, tc.b)
		if err != nil || got != tc.want {
			t.Errorf("Compare(%v, %v): got %d, %v; want %d", tc.a, tc.b, got, err, tc.want)
		}
	}
	if _, err := Compare("a", "b"); !errors.Is(err, ErrType) {
		t.Errorf("comparing strings should be a type error, got %v", err)
	}
}

func TestEqual(t *testing.T) {
	fn := &stubCallable{name: "f"}
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"nil nil", nil, nil, true},
		{"nil false", nil, false, false},
		{"false nil", false, nil, false},
		{"nil zero", nil, 0.0, false},
		{"numbers", 1.0, 1.0, true},
		{"different numbers", 1.0, 2.0, false},
		{"nan", math.NaN(), math.NaN(), false},
		{"strings", "a", "a", true},
		{"number and string", 1.0, "1", false},
		{"bools", true, true, true},
		{"same callable", fn, fn, true},
		{"different callables", fn, &stubCallable{name: "f"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTypeName(t *testing.T) {
	cases := map[string]any{
		"nil":      nil,
		"number":   1.0,
		"string":   "s",
		"boolean":  true,
		"function": &stubCallable{},
	}
	for want, v := range cases {
		if got := TypeName(v); got != want {
			t.Errorf("TypeName(%v): got %q, want %q", v, got, want)
		}
	}
}
