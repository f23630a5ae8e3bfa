package ir

import (
	"fmt"
	"slices"
)

// Pos is a source position. The zero Pos is unknown.
type Pos struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// IsValid reports whether the position carries a line number.
func (p Pos) IsValid() bool { return p.Line > 0 }

// String formats the position as "file:line:col".
func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Function is a compiled source function: a parameter list and a body of
// statements over Number and Boolean expressions.
type Function struct {
	Name   string
	Params []string
	Body   []*Stmt
	Pos    Pos
}

// StmtKind is the closed set of statement forms.
type StmtKind uint8

const (
	StmtAssert StmtKind = iota + 1
	StmtLet
	StmtWhile
	StmtIf
	StmtReturn
)

var stmtNames = map[StmtKind]string{
	StmtAssert: "assert",
	StmtLet:    "let",
	StmtWhile:  "while",
	StmtIf:     "if",
	StmtReturn: "return",
}

func (k StmtKind) String() string {
	if s, ok := stmtNames[k]; ok {
		return s
	}
	return fmt.Sprintf("StmtKind(%d)", k)
}

// Stmt is one statement. Which fields are set depends on Kind:
//
//	assert  Expr
//	let     Name, Expr
//	while   Expr (condition), Body
//	if      Expr (condition), Body (then), Else
//	return  Expr
type Stmt struct {
	Kind StmtKind
	Pos  Pos
	Name string
	Expr *Expr
	Text string // source text of Expr, for diagnostics
	Body []*Stmt
	Else []*Stmt
}

// ExprKind is the closed set of expression forms.
type ExprKind uint8

const (
	ExprLiteral ExprKind = iota + 1
	ExprIdent
	ExprOp
)

// Expr is an expression tree. Operators are expressed directly as node
// kinds so the interpreter and the graph builder share one operator set.
type Expr struct {
	Kind  ExprKind
	Pos   Pos
	Value Value   // ExprLiteral
	Name  string  // ExprIdent
	Op    Kind    // ExprOp
	Args  []*Expr // ExprOp operands
}

// Literal returns a literal expression.
func Literal(v Value) *Expr { return &Expr{Kind: ExprLiteral, Value: v} }

// Ident returns a variable reference.
func Ident(name string) *Expr { return &Expr{Kind: ExprIdent, Name: name} }

// Op returns an operator application.
func Op(kind Kind, args ...*Expr) *Expr { return &Expr{Kind: ExprOp, Op: kind, Args: args} }

// String renders the expression with full parenthesization.
func (e *Expr) String() string {
	switch e.Kind {
	case ExprLiteral:
		return e.Value.String()
	case ExprIdent:
		return e.Name
	case ExprOp:
		if len(e.Args) == 1 {
			return e.Op.Symbol() + e.Args[0].String()
		}
		if len(e.Args) == 2 {
			return fmt.Sprintf("(%s %s %s)", e.Args[0], e.Op.Symbol(), e.Args[1])
		}
	}
	return "<invalid>"
}

// Walk calls fn for every statement in body, depth first in program order.
func Walk(body []*Stmt, fn func(*Stmt)) {
	for _, s := range body {
		fn(s)
		Walk(s.Body, fn)
		Walk(s.Else, fn)
	}
}

// CanonicalForm returns the function as plain data for SourceHash.
// Positions are left out so moving a function within a file does not
// change its identity.
func (f *Function) CanonicalForm() map[string]any {
	return map[string]any{
		"name":   f.Name,
		"params": slices.Clone(f.Params),
		"body":   canonicalBody(f.Body),
	}
}

func canonicalBody(body []*Stmt) []any {
	out := make([]any, 0, len(body))
	for _, s := range body {
		m := map[string]any{"op": s.Kind.String()}
		if s.Name != "" {
			m["name"] = s.Name
		}
		if s.Expr != nil {
			m["expr"] = s.Expr.String()
		}
		if len(s.Body) > 0 {
			m["body"] = canonicalBody(s.Body)
		}
		if len(s.Else) > 0 {
			m["else"] = canonicalBody(s.Else)
		}
		out = append(out, m)
	}
	return out
}
