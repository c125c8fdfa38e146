// Package interpreter implements the tree walker for Lox. It evaluates a
// parsed AST by walking each statement and expression node against a chain
// of variable.Environment scopes, writing print output to an io.Writer.
package interpreter

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/holla2040/loxr/internal/script/ast"
	"github.com/holla2040/loxr/internal/script/token"
	"github.com/holla2040/loxr/internal/script/variable"
)

// outcome is the non-error result of executing a statement. A break travels
// up the call chain as outcomeBreak until a loop consumes it, so it can
// never be confused with a RuntimeError.
type outcome int

const (
	outcomeNormal outcome = iota
	outcomeBreak
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures the interpreter.
type Option func(*Interpreter)

// WithOutput sets the writer for print statements.
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) { in.out = w }
}

// WithEcho makes expression statements write their non-nil values to w,
// as an interactive session does.
func WithEcho(w io.Writer) Option {
	return func(in *Interpreter) { in.echo = w }
}

// WithLogger sets the logger for execution diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithNatives adds native functions to the global scope, replacing any
// built-in with the same name.
func WithNatives(natives map[string]variable.Callable) Option {
	return func(in *Interpreter) {
		for name, fn := range natives {
			in.natives[name] = fn
		}
	}
}

// WithGlobals runs programs against an existing global scope, so bindings
// survive across Interpret calls made by different interpreters.
func WithGlobals(env *variable.Environment) Option {
	return func(in *Interpreter) { in.globals = env }
}

// WithClock sets the time source used by the clock() native.
func WithClock(now func() time.Time) Option {
	return func(in *Interpreter) { in.now = now }
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// Interpreter walks an AST and evaluates it. The global scope is created
// per Interpreter, so separate instances never share state.
type Interpreter struct {
	ctx     context.Context
	globals *variable.Environment
	env     *variable.Environment // current scope, swapped only on block entry/exit
	out     io.Writer
	echo    io.Writer
	logger  *log.Logger
	now     func() time.Time
	natives map[string]variable.Callable
}

// New creates a new Interpreter. The context is checked once per loop
// iteration and between top-level statements; cancelling it stops a running
// program with an Interrupted error.
func New(ctx context.Context, opts ...Option) *Interpreter {
	in := &Interpreter{
		ctx:     ctx,
		globals: variable.NewGlobal(),
		out:     os.Stdout,
		logger:  log.New(io.Discard, "", 0),
		now:     time.Now,
		natives: make(map[string]variable.Callable),
	}
	for name, fn := range builtins(in) {
		in.natives[name] = fn
	}
	for _, opt := range opts {
		opt(in)
	}
	// A shared global scope keeps any rebinding a program made to a native.
	for name, fn := range in.natives {
		if _, err := in.globals.Get(name); err != nil {
			in.globals.Define(name, fn)
		}
	}
	in.env = in.globals
	return in
}

// Globals returns the interpreter's global scope.
func (in *Interpreter) Globals() *variable.Environment {
	return in.globals
}

// Interpret runs the program's statements in order. The first runtime
// error stops execution and is returned as a *RuntimeError.
func (in *Interpreter) Interpret(program *ast.Program) error {
	for _, stmt := range program.Statements {
		if err := in.ctx.Err(); err != nil {
			return in.interrupted(stmt.Pos(), err)
		}
		out, err := in.execute(stmt)
		if err != nil {
			in.logger.Printf("runtime error: %v", err)
			return err
		}
		if out == outcomeBreak {
			return &InternalError{Message: fmt.Sprintf("break escaped every loop (statement at line %d)", stmt.Pos().Line)}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statement dispatch
// ---------------------------------------------------------------------------

func (in *Interpreter) execute(stmt ast.Statement) (outcome, error) {
	switch s := stmt.(type) {
	case *ast.ExpressionStmt:
		val, err := in.evaluate(s.Expr)
		if err != nil {
			return outcomeNormal, err
		}
		if in.echo != nil && val != nil {
			fmt.Fprintf(in.echo, ">> %s\n", variable.Stringify(val))
		}
		return outcomeNormal, nil

	case *ast.PrintStmt:
		val, err := in.evaluate(s.Expr)
		if err != nil {
			return outcomeNormal, err
		}
		fmt.Fprintln(in.out, variable.Stringify(val))
		return outcomeNormal, nil

	case *ast.VarStmt:
		var val any
		if s.Initializer != nil {
			v, err := in.evaluate(s.Initializer)
			if err != nil {
				return outcomeNormal, err
			}
			val = v
		}
		in.env.Define(s.Name.Lexeme, val)
		return outcomeNormal, nil

	case *ast.BlockStmt:
		return in.executeBlock(s.Statements, variable.NewEnclosed(in.env))

	case *ast.IfStmt:
		return in.executeIf(s)

	case *ast.WhileStmt:
		return in.executeWhile(s)

	case *ast.BreakStmt:
		return outcomeBreak, nil

	default:
		return outcomeNormal, &InternalError{Message: fmt.Sprintf("unknown statement type %T", stmt)}
	}
}

// executeBlock runs stmts with env as the current scope. The previous
// scope is restored on every exit path: normal completion, break, or error.
func (in *Interpreter) executeBlock(stmts []ast.Statement, env *variable.Environment) (outcome, error) {
	previous := in.env
	in.env = env
	defer func() { in.env = previous }()

	for _, stmt := range stmts {
		out, err := in.execute(stmt)
		if err != nil || out == outcomeBreak {
			return out, err
		}
	}
	return outcomeNormal, nil
}

func (in *Interpreter) executeIf(s *ast.IfStmt) (outcome, error) {
	cond, err := in.evaluate(s.Condition)
	if err != nil {
		return outcomeNormal, err
	}
	if variable.IsTruthy(cond) {
		return in.execute(s.Then)
	}
	if s.Else != nil {
		return in.execute(s.Else)
	}
	return outcomeNormal, nil
}

func (in *Interpreter) executeWhile(s *ast.WhileStmt) (outcome, error) {
	for {
		if err := in.ctx.Err(); err != nil {
			return outcomeNormal, in.interrupted(s.Position, err)
		}
		cond, err := in.evaluate(s.Condition)
		if err != nil {
			return outcomeNormal, err
		}
		if !variable.IsTruthy(cond) {
			return outcomeNormal, nil
		}
		out, err := in.execute(s.Body)
		if err != nil {
			return outcomeNormal, err
		}
		if out == outcomeBreak {
			return outcomeNormal, nil
		}
	}
}

func (in *Interpreter) interrupted(pos token.Position, cause error) *RuntimeError {
	err := fmt.Errorf("%w: %v", errInterrupted, cause)
	return runtimeError(token.Token{Pos: pos}, err)
}

// ---------------------------------------------------------------------------
// Expression evaluation
// ---------------------------------------------------------------------------

func (in *Interpreter) evaluate(expr ast.Expression) (any, error) {
	switch ex := expr.(type) {
	case *ast.Literal:
		return ex.Value, nil

	case *ast.Grouping:
		return in.evaluate(ex.Inner)

	case *ast.Comma:
		var last any
		for _, e := range ex.Exprs {
			v, err := in.evaluate(e)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil

	case *ast.Variable:
		v, err := in.env.Get(ex.Name.Lexeme)
		if err != nil {
			return nil, runtimeError(ex.Name, err)
		}
		return v, nil

	case *ast.Assign:
		v, err := in.evaluate(ex.Value)
		if err != nil {
			return nil, err
		}
		if err := in.env.Assign(ex.Name.Lexeme, v); err != nil {
			return nil, runtimeError(ex.Name, err)
		}
		return v, nil

	case *ast.Unary:
		return in.evalUnary(ex)

	case *ast.Binary:
		return in.evalBinary(ex)

	case *ast.Logical:
		return in.evalLogical(ex)

	case *ast.Ternary:
		cond, err := in.evaluate(ex.Condition)
		if err != nil {
			return nil, err
		}
		if variable.IsTruthy(cond) {
			return in.evaluate(ex.Then)
		}
		return in.evaluate(ex.Else)

	case *ast.Call:
		return in.evalCall(ex)

	default:
		return nil, &InternalError{Message: fmt.Sprintf("unknown expression type %T", expr)}
	}
}

func (in *Interpreter) evalUnary(ex *ast.Unary) (any, error) {
	val, err := in.evaluate(ex.Right)
	if err != nil {
		return nil, err
	}

	switch ex.Op.Type {
	case token.TOKEN_BANG:
		return !variable.IsTruthy(val), nil
	case token.TOKEN_MINUS:
		v, err := variable.Negate(val)
		if err != nil {
			return nil, runtimeError(ex.Op, err)
		}
		return v, nil
	default:
		return nil, &InternalError{Message: fmt.Sprintf("unknown unary operator %s", ex.Op.Type)}
	}
}

// evalLogical short-circuits and yields the last operand evaluated, not a
// boolean.
func (in *Interpreter) evalLogical(ex *ast.Logical) (any, error) {
	left, err := in.evaluate(ex.Left)
	if err != nil {
		return nil, err
	}

	switch ex.Op.Type {
	case token.TOKEN_OR:
		if variable.IsTruthy(left) {
			return left, nil
		}
	case token.TOKEN_AND:
		if !variable.IsTruthy(left) {
			return left, nil
		}
	default:
		return nil, &InternalError{Message: fmt.Sprintf("unknown logical operator %s", ex.Op.Type)}
	}
	return in.evaluate(ex.Right)
}

func (in *Interpreter) evalBinary(ex *ast.Binary) (any, error) {
	left, err := in.evaluate(ex.Left)
	if err != nil {
		return nil, err
	}
	right, err := in.evaluate(ex.Right)
	if err != nil {
		return nil, err
	}

	var result any
	switch ex.Op.Type {
	case token.TOKEN_PLUS:
		result, err = variable.Add(left, right)
	case token.TOKEN_MINUS:
		result, err = variable.Subtract(left, right)
	case token.TOKEN_STAR:
		result, err = variable.Multiply(left, right)
	case token.TOKEN_SLASH:
		result, err = variable.Divide(left, right)
	case token.TOKEN_PERCENT:
		result, err = variable.Modulo(left, right)
	case token.TOKEN_EQUAL_EQUAL:
		return variable.Equal(left, right), nil
	case token.TOKEN_BANG_EQUAL:
		return !variable.Equal(left, right), nil
	case token.TOKEN_GREATER, token.TOKEN_GREATER_EQUAL, token.TOKEN_LESS, token.TOKEN_LESS_EQUAL:
		var cmp int
		cmp, err = variable.Compare(left, right)
		if err == nil {
			result = compareResult(ex.Op.Type, cmp)
		}
	default:
		return nil, &InternalError{Message: fmt.Sprintf("unknown binary operator %s", ex.Op.Type)}
	}
	if err != nil {
		return nil, runtimeError(ex.Op, err)
	}
	return result, nil
}

func compareResult(op token.TokenType, cmp int) bool {
	switch op {
	case token.TOKEN_GREATER:
		return cmp > 0
	case token.TOKEN_GREATER_EQUAL:
		return cmp >= 0
	case token.TOKEN_LESS:
		return cmp < 0
	default:
		return cmp <= 0
	}
}

func (in *Interpreter) evalCall(ex *ast.Call) (any, error) {
	callee, err := in.evaluate(ex.Callee)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(ex.Args))
	for _, argExpr := range ex.Args {
		v, err := in.evaluate(argExpr)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	fn, ok := callee.(variable.Callable)
	if !ok {
		return nil, runtimeError(ex.Paren, fmt.Errorf("%w: can only call functions, got %s",
			variable.ErrType, variable.TypeName(callee)))
	}
	if len(args) != fn.Arity() {
		return nil, runtimeError(ex.Paren, fmt.Errorf("%w: expected %d arguments but got %d",
			ErrArity, fn.Arity(), len(args)))
	}

	result, err := fn.Call(args)
	if err != nil {
		return nil, runtimeError(ex.Paren, err)
	}
	return result, nil
}
