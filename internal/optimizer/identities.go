package optimizer

import (
	"math"

	"github.com/roach88/tierfold/internal/ir"
)

// identityResult says what an identity rewrites to.
type identityResult uint8

const (
	keepOperand identityResult = iota + 1 // the non-constant operand
	foldZero                              // the constant +0
	foldTrue
	foldFalse
)

// identity is one algebraic identity together with the operand types it is
// valid for. Exactly one of constant, same or nested describes the pattern:
//
//	constant  x op c (and c op x when kind is commutative)
//	same      x op x
//	nested    op (op x)
type identity struct {
	name     string
	kind     ir.Kind
	constant uint64 // ir.NumberBits of c
	same     bool
	nested   bool
	guard    func(x ir.Type) bool
	result   identityResult
}

// identities is the complete set of rewrites the canonicalizer may apply.
// Anything not listed here is left alone, including identities that only
// fail on corner cases this lattice cannot exclude.
var identities = []identity{
	{name: "x * 1", kind: ir.KindMultiply, constant: bits(1), guard: isNumber, result: keepOperand},
	{name: "x + 0", kind: ir.KindAdd, constant: bits(0), guard: isNumberNotMinusZero, result: keepOperand},
	{name: "x + -0", kind: ir.KindAdd, constant: bits(math.Copysign(0, -1)), guard: isNumber, result: keepOperand},
	{name: "x - 0", kind: ir.KindSubtract, constant: bits(0), guard: isNumber, result: keepOperand},
	{name: "x / 1", kind: ir.KindDivide, constant: bits(1), guard: isNumber, result: keepOperand},
	{name: "x - x", kind: ir.KindSubtract, same: true, guard: isSigned32, result: foldZero},
	{name: "x | 0", kind: ir.KindBitwiseOr, constant: bits(0), guard: isSigned32, result: keepOperand},
	{name: "x & -1", kind: ir.KindBitwiseAnd, constant: bits(-1), guard: isSigned32, result: keepOperand},
	{name: "x ^ 0", kind: ir.KindBitwiseXor, constant: bits(0), guard: isSigned32, result: keepOperand},
	{name: "x << 0", kind: ir.KindShiftLeft, constant: bits(0), guard: isSigned32, result: keepOperand},
	{name: "x >> 0", kind: ir.KindShiftRight, constant: bits(0), guard: isSigned32, result: keepOperand},
	{name: "x == x", kind: ir.KindEqual, same: true, guard: notNaN, result: foldTrue},
	{name: "x <= x", kind: ir.KindLessThanOrEqual, same: true, guard: notNaN, result: foldTrue},
	{name: "x != x", kind: ir.KindNotEqual, same: true, guard: notNaN, result: foldFalse},
	{name: "x < x", kind: ir.KindLessThan, same: true, guard: notNaN, result: foldFalse},
	{name: "!!b", kind: ir.KindBooleanNot, nested: true, guard: isBoolean, result: keepOperand},
	{name: "-(-x)", kind: ir.KindNegate, nested: true, guard: isNumber, result: keepOperand},
}

func bits(f float64) uint64 { return ir.NumberBits(f) }

func isNumber(t ir.Type) bool { return t.IsNumeric() }

func isNumberNotMinusZero(t ir.Type) bool {
	return t.IsNumeric() && !t.Maybe(ir.TypeMinusZero)
}

func isSigned32(t ir.Type) bool { return t.IsNumeric() && t.Is(ir.TypeSigned32) }

func notNaN(t ir.Type) bool { return t != ir.TypeNone && !t.Maybe(ir.TypeNaN) }

func isBoolean(t ir.Type) bool { return t == ir.TypeBoolean }

// applyIdentity tries every identity for kind in table order and returns the
// rewritten node of the first match.
func (c *Canonicalizer) applyIdentity(kind ir.Kind, inputs []ir.NodeID) (ir.NodeID, string, bool) {
	for i := range identities {
		id := &identities[i]
		if id.kind != kind {
			continue
		}
		if x, ok := c.matchIdentity(id, inputs); ok {
			switch id.result {
			case keepOperand:
				return x, id.name, true
			case foldZero:
				return c.g.NumberConstant(0), id.name, true
			case foldTrue:
				return c.g.Constant(ir.Boolean(true)), id.name, true
			case foldFalse:
				return c.g.Constant(ir.Boolean(false)), id.name, true
			}
		}
	}
	return ir.NoNode, "", false
}

// matchIdentity returns the operand x the pattern binds when it matches.
func (c *Canonicalizer) matchIdentity(id *identity, inputs []ir.NodeID) (ir.NodeID, bool) {
	g := c.g
	switch {
	case id.nested:
		inner := g.Node(inputs[0])
		if inner.Kind != id.kind {
			return ir.NoNode, false
		}
		x := inner.Inputs[0]
		return x, id.guard(g.Node(x).Type)

	case id.same:
		if inputs[0] != inputs[1] {
			return ir.NoNode, false
		}
		return inputs[0], id.guard(g.Node(inputs[0]).Type)

	default:
		if x, ok := c.matchConstant(id, inputs[0], inputs[1]); ok {
			return x, true
		}
		if id.kind.IsCommutative() {
			return c.matchConstant(id, inputs[1], inputs[0])
		}
		return ir.NoNode, false
	}
}

func (c *Canonicalizer) matchConstant(id *identity, x, k ir.NodeID) (ir.NodeID, bool) {
	kn := c.g.Node(k)
	if !kn.IsConstant() || kn.Type == ir.TypeBoolean || kn.Aux != id.constant {
		return ir.NoNode, false
	}
	return x, id.guard(c.g.Node(x).Type)
}
