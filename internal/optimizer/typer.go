package optimizer

import "github.com/roach88/tierfold/internal/ir"

// resultType computes the lattice type of kind applied to operands of the
// given types. The result is an upper bound: every value the operation can
// produce at runtime is in it.
func resultType(kind ir.Kind, in ...ir.Type) ir.Type {
	switch kind {
	case ir.KindAdd:
		a, b := in[0].ToNumber(), in[1].ToNumber()
		t := ir.TypeSigned32 | ir.TypeOtherNumber
		if a.Maybe(ir.TypeNaN) || b.Maybe(ir.TypeNaN) || (a.Maybe(ir.TypeOtherNumber) && b.Maybe(ir.TypeOtherNumber)) {
			t |= ir.TypeNaN // Infinity + -Infinity
		}
		if a.Maybe(ir.TypeMinusZero) && b.Maybe(ir.TypeMinusZero) {
			t |= ir.TypeMinusZero
		}
		return t

	case ir.KindSubtract:
		a, b := in[0].ToNumber(), in[1].ToNumber()
		t := ir.TypeSigned32 | ir.TypeOtherNumber
		if a.Maybe(ir.TypeNaN) || b.Maybe(ir.TypeNaN) || (a.Maybe(ir.TypeOtherNumber) && b.Maybe(ir.TypeOtherNumber)) {
			t |= ir.TypeNaN
		}
		// -0 - +0 is the only way to get -0.
		if a.Maybe(ir.TypeMinusZero) && b.Maybe(ir.TypeSigned32) {
			t |= ir.TypeMinusZero
		}
		return t

	case ir.KindMultiply:
		a, b := in[0].ToNumber(), in[1].ToNumber()
		t := ir.TypeSigned32 | ir.TypeMinusZero | ir.TypeOtherNumber
		zero := ir.TypeSigned32 | ir.TypeMinusZero
		if a.Maybe(ir.TypeNaN) || b.Maybe(ir.TypeNaN) ||
			(a.Maybe(zero) && b.Maybe(ir.TypeOtherNumber)) ||
			(a.Maybe(ir.TypeOtherNumber) && b.Maybe(zero)) {
			t |= ir.TypeNaN // 0 * Infinity
		}
		return t

	case ir.KindDivide, ir.KindModulus:
		return ir.TypeNumber

	case ir.KindNegate:
		a := in[0].ToNumber()
		var t ir.Type
		if a.Maybe(ir.TypeSigned32) {
			// -0 from 0, 2^31 from -2^31
			t |= ir.TypeSigned32 | ir.TypeMinusZero | ir.TypeOtherNumber
		}
		if a.Maybe(ir.TypeMinusZero) {
			t |= ir.TypeSigned32
		}
		if a.Maybe(ir.TypeNaN) {
			t |= ir.TypeNaN
		}
		if a.Maybe(ir.TypeOtherNumber) {
			t |= ir.TypeOtherNumber | ir.TypeSigned32 // -(2^31)
		}
		return t

	case ir.KindBitwiseAnd, ir.KindBitwiseOr, ir.KindBitwiseXor,
		ir.KindShiftLeft, ir.KindShiftRight:
		return ir.TypeSigned32

	case ir.KindShiftRightLogical:
		return ir.TypeSigned32 | ir.TypeOtherNumber

	case ir.KindEqual, ir.KindNotEqual, ir.KindLessThan, ir.KindLessThanOrEqual, ir.KindBooleanNot:
		return ir.TypeBoolean

	case ir.KindPhi:
		var t ir.Type
		for _, it := range in {
			t = t.Union(it)
		}
		return t

	case ir.KindStaticAssert:
		return ir.TypeNone
	}
	panic("optimizer: no type rule for " + kind.String())
}
