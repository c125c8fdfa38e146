package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders a node in parenthesized prefix form, e.g. "(+ 1 (* 2 3))".
// The output is stable for a given tree, which makes it usable for
// comparing parses.
func Print(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

// PrintProgram renders every top-level statement on its own line.
func PrintProgram(p *Program) string {
	var b strings.Builder
	for _, s := range p.Statements {
		write(&b, s)
		b.WriteByte('\n')
	}
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Program:
		parens(b, "program", stmts(n.Statements)...)
	case *ExpressionStmt:
		parens(b, ";", n.Expr)
	case *PrintStmt:
		parens(b, "print", n.Expr)
	case *VarStmt:
		if n.Initializer == nil {
			fmt.Fprintf(b, "(var %s)", n.Name.Lexeme)
			return
		}
		fmt.Fprintf(b, "(var %s ", n.Name.Lexeme)
		write(b, n.Initializer)
		b.WriteByte(')')
	case *BlockStmt:
		parens(b, "block", stmts(n.Statements)...)
	case *IfStmt:
		if n.Else == nil {
			parens(b, "if", n.Condition, n.Then)
		} else {
			parens(b, "if", n.Condition, n.Then, n.Else)
		}
	case *WhileStmt:
		parens(b, "while", n.Condition, n.Body)
	case *BreakStmt:
		b.WriteString("(break)")

	case *Literal:
		b.WriteString(literal(n.Value))
	case *Variable:
		b.WriteString(n.Name.Lexeme)
	case *Assign:
		fmt.Fprintf(b, "(= %s ", n.Name.Lexeme)
		write(b, n.Value)
		b.WriteByte(')')
	case *Unary:
		parens(b, n.Op.Lexeme, n.Right)
	case *Binary:
		parens(b, n.Op.Lexeme, n.Left, n.Right)
	case *Logical:
		parens(b, n.Op.Lexeme, n.Left, n.Right)
	case *Ternary:
		parens(b, "?:", n.Condition, n.Then, n.Else)
	case *Comma:
		nodes := make([]Node, len(n.Exprs))
		for i, e := range n.Exprs {
			nodes[i] = e
		}
		parens(b, ",", nodes...)
	case *Grouping:
		parens(b, "group", n.Inner)
	case *Call:
		nodes := []Node{n.Callee}
		for _, a := range n.Args {
			nodes = append(nodes, a)
		}
		parens(b, "call", nodes...)
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}

func parens(b *strings.Builder, name string, nodes ...Node) {
	b.WriteByte('(')
	b.WriteString(name)
	for _, n := range nodes {
		b.WriteByte(' ')
		write(b, n)
	}
	b.WriteByte(')')
}

func stmts(list []Statement) []Node {
	nodes := make([]Node, len(list))
	for i, s := range list {
		nodes[i] = s
	}
	return nodes
}

func literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
