// Package ast defines the abstract syntax tree node types for Lox programs.
// Trees are built once by the parser and never mutated afterwards.
package ast

import "github.com/holla2040/loxr/internal/script/token"

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Node is the common interface for every AST node.
type Node interface {
	Pos() token.Position
}

// Statement is a node that represents a statement.
type Statement interface {
	Node
	stmtNode()
}

// Expression is a node that represents an expression.
type Expression interface {
	Node
	exprNode()
}

// ---------------------------------------------------------------------------
// Program (root)
// ---------------------------------------------------------------------------

// Program is the top-level AST node representing a whole source text.
type Program struct {
	Statements []Statement
	Position   token.Position
}

func (p *Program) Pos() token.Position { return p.Position }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ExpressionStmt evaluates an expression for its side effects.
type ExpressionStmt struct {
	Expr     Expression
	Position token.Position
}

func (n *ExpressionStmt) Pos() token.Position { return n.Position }
func (n *ExpressionStmt) stmtNode()           {}

// PrintStmt represents: print <expr> ;
type PrintStmt struct {
	Expr     Expression
	Position token.Position
}

func (n *PrintStmt) Pos() token.Position { return n.Position }
func (n *PrintStmt) stmtNode()           {}

// VarStmt represents: var NAME (= <expr>)? ;
type VarStmt struct {
	Name        token.Token
	Initializer Expression // nil when omitted
	Position    token.Position
}

func (n *VarStmt) Pos() token.Position { return n.Position }
func (n *VarStmt) stmtNode()           {}

// BlockStmt represents: { declaration* }
type BlockStmt struct {
	Statements []Statement
	Position   token.Position
}

func (n *BlockStmt) Pos() token.Position { return n.Position }
func (n *BlockStmt) stmtNode()           {}

// IfStmt represents: if ( <cond> ) <then> (else <else>)?
type IfStmt struct {
	Condition Expression
	Then      Statement
	Else      Statement // nil when there is no else branch
	Position  token.Position
}

func (n *IfStmt) Pos() token.Position { return n.Position }
func (n *IfStmt) stmtNode()           {}

// WhileStmt represents: while ( <cond> ) <body>
type WhileStmt struct {
	Condition Expression
	Body      Statement
	Position  token.Position
}

func (n *WhileStmt) Pos() token.Position { return n.Position }
func (n *WhileStmt) stmtNode()           {}

// BreakStmt represents: break ;
type BreakStmt struct {
	Keyword  token.Token
	Position token.Position
}

func (n *BreakStmt) Pos() token.Position { return n.Position }
func (n *BreakStmt) stmtNode()           {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Literal is a constant: a float64, string, bool, or nil.
type Literal struct {
	Value    any
	Position token.Position
}

func (n *Literal) Pos() token.Position { return n.Position }
func (n *Literal) exprNode()           {}

// Variable is a reference to a named binding.
type Variable struct {
	Name     token.Token
	Position token.Position
}

func (n *Variable) Pos() token.Position { return n.Position }
func (n *Variable) exprNode()           {}

// Assign represents: NAME = <value>
type Assign struct {
	Name     token.Token
	Value    Expression
	Position token.Position
}

func (n *Assign) Pos() token.Position { return n.Position }
func (n *Assign) exprNode()           {}

// Unary represents a prefix operator: -x or !x.
type Unary struct {
	Op       token.Token
	Right    Expression
	Position token.Position
}

func (n *Unary) Pos() token.Position { return n.Position }
func (n *Unary) exprNode()           {}

// Binary represents an arithmetic, comparison, or equality operator.
type Binary struct {
	Left     Expression
	Op       token.Token
	Right    Expression
	Position token.Position
}

func (n *Binary) Pos() token.Position { return n.Position }
func (n *Binary) exprNode()           {}

// Logical represents the short-circuit operators and/or.
type Logical struct {
	Left     Expression
	Op       token.Token
	Right    Expression
	Position token.Position
}

func (n *Logical) Pos() token.Position { return n.Position }
func (n *Logical) exprNode()           {}

// Ternary represents: <cond> ? <then> : <else>
type Ternary struct {
	Condition Expression
	Then      Expression
	Else      Expression
	Position  token.Position
}

func (n *Ternary) Pos() token.Position { return n.Position }
func (n *Ternary) exprNode()           {}

// Comma is a sequence of expressions evaluated left to right; its value is
// that of the last one.
type Comma struct {
	Exprs    []Expression
	Position token.Position
}

func (n *Comma) Pos() token.Position { return n.Position }
func (n *Comma) exprNode()           {}

// Grouping is a parenthesized expression.
type Grouping struct {
	Inner    Expression
	Position token.Position
}

func (n *Grouping) Pos() token.Position { return n.Position }
func (n *Grouping) exprNode()           {}

// Call represents: <callee> ( args )
type Call struct {
	Callee   Expression
	Paren    token.Token // closing paren, for error positions
	Args     []Expression
	Position token.Position
}

func (n *Call) Pos() token.Position { return n.Position }
func (n *Call) exprNode()           {}
