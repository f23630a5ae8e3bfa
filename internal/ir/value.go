package ir

import (
	"math"
	"strconv"
)

type valueKind uint8

const (
	valueUndefined valueKind = iota
	valueNumber
	valueBoolean
)

// Value is a JavaScript primitive restricted to what function bodies can
// produce: Numbers, Booleans, and undefined as the result of a function
// without a return statement.
type Value struct {
	kind valueKind
	num  float64
	b    bool
}

// Number returns a Number value.
func Number(f float64) Value {
	return Value{kind: valueNumber, num: f}
}

// Boolean returns a Boolean value.
func Boolean(b bool) Value {
	return Value{kind: valueBoolean, b: b}
}

// Undefined returns the undefined value.
func Undefined() Value {
	return Value{}
}

// IsNumber reports whether v is a Number.
func (v Value) IsNumber() bool { return v.kind == valueNumber }

// IsBoolean reports whether v is a Boolean.
func (v Value) IsBoolean() bool { return v.kind == valueBoolean }

// IsUndefined reports whether v is undefined.
func (v Value) IsUndefined() bool { return v.kind == valueUndefined }

// Float returns the Number payload. It is only meaningful for Numbers;
// use ToNumber for coercion.
func (v Value) Float() float64 { return v.num }

// Bool returns the Boolean payload. Use ToBoolean for coercion.
func (v Value) Bool() bool { return v.b }

// ToNumber applies the JavaScript ToNumber conversion.
func (v Value) ToNumber() float64 {
	switch v.kind {
	case valueNumber:
		return v.num
	case valueBoolean:
		if v.b {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

// ToBoolean applies the JavaScript ToBoolean conversion.
func (v Value) ToBoolean() bool {
	switch v.kind {
	case valueBoolean:
		return v.b
	case valueNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	default:
		return false
	}
}

// Type returns the singleton lattice type containing v.
// undefined has no lattice type and returns TypeNone.
func (v Value) Type() Type {
	switch v.kind {
	case valueNumber:
		return TypeOfNumber(v.num)
	case valueBoolean:
		return TypeBoolean
	default:
		return TypeNone
	}
}

// SameValue is the JavaScript SameValue relation: NaN equals NaN and +0
// differs from -0. Used by tests and the harness, not by the optimizer.
func (v Value) SameValue(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case valueNumber:
		if math.IsNaN(v.num) && math.IsNaN(other.num) {
			return true
		}
		return math.Float64bits(v.num) == math.Float64bits(other.num)
	case valueBoolean:
		return v.b == other.b
	default:
		return true
	}
}

// String formats v the way diagnostics show it. Unlike JavaScript's
// Number.prototype.toString, -0 is rendered as "-0".
func (v Value) String() string {
	switch v.kind {
	case valueNumber:
		return FormatNumber(v.num)
	case valueBoolean:
		return strconv.FormatBool(v.b)
	default:
		return "undefined"
	}
}

// TypeOfNumber classifies f into exactly one number bit of the lattice.
func TypeOfNumber(f float64) Type {
	switch {
	case math.IsNaN(f):
		return TypeNaN
	case f == 0 && math.Signbit(f):
		return TypeMinusZero
	case f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32:
		return TypeSigned32
	default:
		return TypeOtherNumber
	}
}

// FormatNumber formats f without exponent notation for integral values
// below 1e21, matching JavaScript for everything except -0.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// ParseValue parses "true", "false", "undefined", "NaN", "Infinity",
// "-Infinity", "-0" and decimal or hexadecimal number literals.
func ParseValue(s string) (Value, error) {
	switch s {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	case "undefined":
		return Undefined(), nil
	case "NaN":
		return Number(math.NaN()), nil
	case "Infinity":
		return Number(math.Inf(1)), nil
	case "-Infinity":
		return Number(math.Inf(-1)), nil
	}
	f, err := ParseNumberLiteral(s)
	if err != nil {
		return Value{}, err
	}
	return Number(f), nil
}
