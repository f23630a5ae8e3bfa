package optimizer

import (
	"math"

	"github.com/roach88/tierfold/internal/ir"
)

var negZero = math.Copysign(0, -1)

func num(f float64) *ir.Expr  { return ir.Literal(ir.Number(f)) }
func boolean(b bool) *ir.Expr { return ir.Literal(ir.Boolean(b)) }
func ident(n string) *ir.Expr { return ir.Ident(n) }

func op(k ir.Kind, args ...*ir.Expr) *ir.Expr { return ir.Op(k, args...) }

func assertStmt(e *ir.Expr, text string, line int) *ir.Stmt {
	return &ir.Stmt{Kind: ir.StmtAssert, Expr: e, Text: text, Pos: ir.Pos{File: "test.cue", Line: line, Column: 3}}
}

func letStmt(name string, e *ir.Expr) *ir.Stmt {
	return &ir.Stmt{Kind: ir.StmtLet, Name: name, Expr: e, Text: e.String()}
}

func whileStmt(cond *ir.Expr, body ...*ir.Stmt) *ir.Stmt {
	return &ir.Stmt{Kind: ir.StmtWhile, Expr: cond, Text: cond.String(), Body: body}
}

func ifStmt(cond *ir.Expr, then, els []*ir.Stmt) *ir.Stmt {
	return &ir.Stmt{Kind: ir.StmtIf, Expr: cond, Text: cond.String(), Body: then, Else: els}
}

func returnStmt(e *ir.Expr) *ir.Stmt {
	return &ir.Stmt{Kind: ir.StmtReturn, Expr: e, Text: e.String()}
}

// fooFunction is the regression function:
//
//	function foo(x) { %StaticAssert(1 * x == x + 0); }
func fooFunction() *ir.Function {
	return &ir.Function{
		Name:   "foo",
		Params: []string{"x"},
		Body: []*ir.Stmt{
			assertStmt(
				op(ir.KindEqual,
					op(ir.KindMultiply, num(1), ident("x")),
					op(ir.KindAdd, ident("x"), num(0))),
				"1 * x == x + 0", 3),
		},
	}
}

// graphWithParam returns a graph holding parameter x of type t.
func graphWithParam(t ir.Type) (*ir.Graph, *Canonicalizer, ir.NodeID) {
	g := ir.NewGraph()
	x := g.Parameter(0, "x", t)
	return g, NewCanonicalizer(g), x
}
