package ir

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// JavaScript Number arithmetic.
//
// Every binary operation below rounds its result through an explicit float64
// conversion. The Go spec allows x*y+z to be fused once calls are inlined;
// the conversion forces each operation to round on its own, which is what
// the ECMAScript spec requires.

// canonicalNaN is the only NaN bit pattern stored in the graph.
const canonicalNaN uint64 = 0x7FF8000000000000

const two32 = 4294967296.0

// NumberBits returns the bits used to key a Number constant. All NaNs map
// to one pattern; -0 and +0 stay distinct.
func NumberBits(f float64) uint64 {
	if math.IsNaN(f) {
		return canonicalNaN
	}
	return math.Float64bits(f)
}

// NumberFromBits is the inverse of NumberBits.
func NumberFromBits(b uint64) float64 {
	return math.Float64frombits(b)
}

// ToInt32 applies the ECMAScript ToInt32 conversion (wraps modulo 2^32).
func ToInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), two32)
	if m < 0 {
		m += two32
	}
	return int32(uint32(m))
}

// ToUint32 applies the ECMAScript ToUint32 conversion.
func ToUint32(f float64) uint32 {
	return uint32(ToInt32(f))
}

func Add(a, b float64) float64      { return float64(a + b) }
func Subtract(a, b float64) float64 { return float64(a - b) }
func Multiply(a, b float64) float64 { return float64(a * b) }
func Divide(a, b float64) float64   { return float64(a / b) }

// Modulus is the JavaScript % operator: the result takes the sign of the
// dividend and x % 0 is NaN. math.Mod has exactly these semantics.
func Modulus(a, b float64) float64 { return math.Mod(a, b) }

func Negate(a float64) float64 { return -a }

func BitwiseAnd(a, b float64) float64 { return float64(ToInt32(a) & ToInt32(b)) }
func BitwiseOr(a, b float64) float64  { return float64(ToInt32(a) | ToInt32(b)) }
func BitwiseXor(a, b float64) float64 { return float64(ToInt32(a) ^ ToInt32(b)) }

func ShiftLeft(a, b float64) float64 {
	return float64(ToInt32(a) << (ToUint32(b) & 31))
}

func ShiftRight(a, b float64) float64 {
	return float64(ToInt32(a) >> (ToUint32(b) & 31))
}

func ShiftRightLogical(a, b float64) float64 {
	return float64(ToUint32(a) >> (ToUint32(b) & 31))
}

// LooseEqual is == restricted to Numbers and Booleans. -0 == +0 is true and
// NaN is unequal to everything, itself included.
func LooseEqual(a, b Value) bool {
	if a.IsBoolean() && b.IsBoolean() {
		return a.Bool() == b.Bool()
	}
	if a.IsUndefined() || b.IsUndefined() {
		return a.IsUndefined() && b.IsUndefined()
	}
	return a.ToNumber() == b.ToNumber()
}

// LessThan is the numeric < operator; any NaN operand yields false.
func LessThan(a, b Value) bool {
	return a.ToNumber() < b.ToNumber()
}

// LessThanOrEqual is the numeric <= operator; any NaN operand yields false.
func LessThanOrEqual(a, b Value) bool {
	return a.ToNumber() <= b.ToNumber()
}

// Evaluate applies a value-producing kind to constant operands.
// It returns false for kinds that are not pure operators (Constant,
// Parameter, Phi, StaticAssert) or when the operand count is wrong.
func Evaluate(kind Kind, operands ...Value) (Value, bool) {
	if kind.Arity() != len(operands) {
		return Value{}, false
	}
	if len(operands) == 1 {
		a := operands[0]
		switch kind {
		case KindNegate:
			return Number(Negate(a.ToNumber())), true
		case KindBooleanNot:
			return Boolean(!a.ToBoolean()), true
		}
		return Value{}, false
	}

	a, b := operands[0], operands[1]
	x, y := a.ToNumber(), b.ToNumber()
	switch kind {
	case KindAdd:
		return Number(Add(x, y)), true
	case KindSubtract:
		return Number(Subtract(x, y)), true
	case KindMultiply:
		return Number(Multiply(x, y)), true
	case KindDivide:
		return Number(Divide(x, y)), true
	case KindModulus:
		return Number(Modulus(x, y)), true
	case KindBitwiseAnd:
		return Number(BitwiseAnd(x, y)), true
	case KindBitwiseOr:
		return Number(BitwiseOr(x, y)), true
	case KindBitwiseXor:
		return Number(BitwiseXor(x, y)), true
	case KindShiftLeft:
		return Number(ShiftLeft(x, y)), true
	case KindShiftRight:
		return Number(ShiftRight(x, y)), true
	case KindShiftRightLogical:
		return Number(ShiftRightLogical(x, y)), true
	case KindEqual:
		return Boolean(LooseEqual(a, b)), true
	case KindNotEqual:
		return Boolean(!LooseEqual(a, b)), true
	case KindLessThan:
		return Boolean(LessThan(a, b)), true
	case KindLessThanOrEqual:
		return Boolean(LessThanOrEqual(a, b)), true
	}
	return Value{}, false
}

// ParseNumberLiteral parses decimal, exponent, hexadecimal ("0x"), octal
// ("0o") and binary ("0b") literals with optional "_" separators.
// Integers beyond 2^53 round to the nearest float64 like JavaScript does.
func ParseNumberLiteral(s string) (float64, error) {
	lit := strings.ReplaceAll(s, "_", "")
	neg := false
	if strings.HasPrefix(lit, "-") {
		neg = true
		lit = lit[1:]
	}
	var f float64
	if len(lit) > 2 && lit[0] == '0' && strings.ContainsRune("xXoObB", rune(lit[1])) {
		u, err := strconv.ParseUint(lit, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number literal %q: %w", s, err)
		}
		f = float64(u)
	} else {
		v, err := strconv.ParseFloat(lit, 64)
		// Out-of-range literals round to Infinity, as in JavaScript.
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("invalid number literal %q: %w", s, err)
		}
		f = v
	}
	if neg {
		f = -f
	}
	return f, nil
}
