package compiler

import (
	"fmt"
	"math"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tierfold/internal/ir"
)

// binaryOps maps CUE binary operators to node kinds. `&` and `|` are the
// JavaScript bitwise operators here, not unification and disjunction; CUE
// gives them the same precedence relative to comparisons that JavaScript
// does. CUE puts equality and relational operators on one level, so
// binary re-associates them with jsComparison.
var binaryOps = map[token.Token]ir.Kind{
	token.ADD: ir.KindAdd,
	token.SUB: ir.KindSubtract,
	token.MUL: ir.KindMultiply,
	token.QUO: ir.KindDivide,
	token.EQL: ir.KindEqual,
	token.NEQ: ir.KindNotEqual,
	token.LSS: ir.KindLessThan,
	token.LEQ: ir.KindLessThanOrEqual,
	token.AND: ir.KindBitwiseAnd,
	token.OR:  ir.KindBitwiseOr,
}

// swappedOps are the comparisons written with their operands reversed.
var swappedOps = map[token.Token]ir.Kind{
	token.GTR: ir.KindLessThan,
	token.GEQ: ir.KindLessThanOrEqual,
}

// callOps are the operators CUE has no infix spelling for.
var callOps = map[string]ir.Kind{
	"remainder": ir.KindModulus,
	"xor":       ir.KindBitwiseXor,
	"shl":       ir.KindShiftLeft,
	"sar":       ir.KindShiftRight,
	"shr":       ir.KindShiftRightLogical,
}

// namedConstants are identifiers that denote values, as in JavaScript.
var namedConstants = map[string]ir.Value{
	"NaN":      ir.Number(math.NaN()),
	"Infinity": ir.Number(math.Inf(1)),
	"true":     ir.Boolean(true),
	"false":    ir.Boolean(false),
}

// ParseExpr parses one expression string. at is the position of the
// string in its source file; expression positions are reported relative
// to it.
func ParseExpr(src string, at ir.Pos) (*ir.Expr, error) {
	node, err := parser.ParseExpr("expr", src)
	if err != nil {
		return nil, &ExprError{Source: src, Message: fmt.Sprintf("syntax error: %v", err), Pos: at}
	}
	p := exprParser{src: src, at: at}
	return p.expr(node)
}

// ExprError is a malformed or unsupported expression.
type ExprError struct {
	Source  string
	Message string
	Pos     ir.Pos
}

func (e *ExprError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s in %q", e.Pos, e.Message, e.Source)
	}
	return fmt.Sprintf("%s in %q", e.Message, e.Source)
}

type exprParser struct {
	src string
	at  ir.Pos
}

func (p *exprParser) errorf(n ast.Node, format string, args ...any) error {
	return &ExprError{Source: p.src, Message: fmt.Sprintf(format, args...), Pos: p.pos(n)}
}

// pos maps a position inside the expression string to the source file.
// Only single-line strings get a column offset.
func (p *exprParser) pos(n ast.Node) ir.Pos {
	if !p.at.IsValid() {
		return ir.Pos{}
	}
	at := p.at
	if tp := n.Pos(); tp.IsValid() && tp.Line() == 1 {
		// +1 skips the opening quote.
		at.Column += tp.Column()
	}
	return at
}

func (p *exprParser) expr(n ast.Expr) (*ir.Expr, error) {
	var (
		out *ir.Expr
		err error
	)
	switch n := n.(type) {
	case *ast.BasicLit:
		out, err = p.literal(n)
	case *ast.Ident:
		if v, ok := namedConstants[n.Name]; ok {
			out = ir.Literal(v)
		} else {
			out = ir.Ident(n.Name)
		}
	case *ast.ParenExpr:
		return p.expr(n.X)
	case *ast.UnaryExpr:
		out, err = p.unary(n)
	case *ast.BinaryExpr:
		out, err = p.binary(n)
	case *ast.CallExpr:
		out, err = p.call(n)
	default:
		return nil, p.errorf(n, "unsupported expression %T", n)
	}
	if err != nil {
		return nil, err
	}
	out.Pos = p.pos(n)
	return out, nil
}

func (p *exprParser) literal(n *ast.BasicLit) (*ir.Expr, error) {
	switch n.Kind {
	case token.INT, token.FLOAT:
		f, err := ir.ParseNumberLiteral(n.Value)
		if err != nil {
			return nil, p.errorf(n, "%v", err)
		}
		return ir.Literal(ir.Number(f)), nil
	case token.TRUE:
		return ir.Literal(ir.Boolean(true)), nil
	case token.FALSE:
		return ir.Literal(ir.Boolean(false)), nil
	}
	return nil, p.errorf(n, "unsupported literal %s", n.Value)
}

func (p *exprParser) unary(n *ast.UnaryExpr) (*ir.Expr, error) {
	var kind ir.Kind
	switch n.Op {
	case token.SUB:
		kind = ir.KindNegate
	case token.NOT:
		kind = ir.KindBooleanNot
	default:
		return nil, p.errorf(n, "unsupported unary operator %s", n.Op)
	}
	x, err := p.expr(n.X)
	if err != nil {
		return nil, err
	}
	return ir.Op(kind, x), nil
}

func isEquality(op token.Token) bool { return op == token.EQL || op == token.NEQ }

func isRelational(op token.Token) bool {
	switch op {
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		return true
	}
	return false
}

// jsComparison rewrites a left-associated chain of equality and relational
// operators so relational operators bind tighter: CUE parses a == b < c as
// (a == b) < c, JavaScript as a == (b < c). Parenthesized operands are
// ParenExpr nodes and are left alone.
func jsComparison(n *ast.BinaryExpr) *ast.BinaryExpr {
	if !isRelational(n.Op) {
		return n
	}
	x, ok := n.X.(*ast.BinaryExpr)
	if !ok {
		return n
	}
	x = jsComparison(x)
	if !isEquality(x.Op) {
		return &ast.BinaryExpr{X: x, OpPos: n.OpPos, Op: n.Op, Y: n.Y}
	}
	inner := jsComparison(&ast.BinaryExpr{X: x.Y, OpPos: n.OpPos, Op: n.Op, Y: n.Y})
	return &ast.BinaryExpr{X: x.X, OpPos: x.OpPos, Op: x.Op, Y: inner}
}

func (p *exprParser) binary(n *ast.BinaryExpr) (*ir.Expr, error) {
	n = jsComparison(n)
	kind, ok := binaryOps[n.Op]
	swapped := false
	if !ok {
		if kind, ok = swappedOps[n.Op]; !ok {
			return nil, p.errorf(n, "unsupported operator %s", n.Op)
		}
		swapped = true
	}
	x, err := p.expr(n.X)
	if err != nil {
		return nil, err
	}
	y, err := p.expr(n.Y)
	if err != nil {
		return nil, err
	}
	if swapped {
		x, y = y, x
	}
	return ir.Op(kind, x, y), nil
}

func (p *exprParser) call(n *ast.CallExpr) (*ir.Expr, error) {
	fun, ok := n.Fun.(*ast.Ident)
	if !ok {
		return nil, p.errorf(n, "unsupported call")
	}
	kind, ok := callOps[fun.Name]
	if !ok {
		return nil, p.errorf(n, "unknown function %s", fun.Name)
	}
	if len(n.Args) != 2 {
		return nil, p.errorf(n, "%s takes 2 arguments, got %d", fun.Name, len(n.Args))
	}
	x, err := p.expr(n.Args[0])
	if err != nil {
		return nil, err
	}
	y, err := p.expr(n.Args[1])
	if err != nil {
		return nil, err
	}
	return ir.Op(kind, x, y), nil
}
