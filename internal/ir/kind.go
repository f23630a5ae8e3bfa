package ir

// Kind is the closed set of node operations.
//
// Adding a kind means adding it here, to kindInfo, and to the exhaustive
// switches in the optimizer (typer, folder, identity table). Nothing else
// dispatches on node kinds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindConstant
	KindParameter
	KindAdd
	KindSubtract
	KindMultiply
	KindDivide
	KindModulus
	KindNegate
	KindBitwiseAnd
	KindBitwiseOr
	KindBitwiseXor
	KindShiftLeft
	KindShiftRight
	KindShiftRightLogical
	KindEqual
	KindNotEqual
	KindLessThan
	KindLessThanOrEqual
	KindBooleanNot
	KindPhi
	KindStaticAssert

	kindCount
)

type kindInfo struct {
	name        string
	symbol      string // infix/prefix operator used by Format, "" for none
	arity       int    // -1 for variadic (Phi)
	commutative bool   // order independent for numeric operands
}

var kinds = [kindCount]kindInfo{
	KindInvalid:           {name: "Invalid"},
	KindConstant:          {name: "Constant"},
	KindParameter:         {name: "Parameter"},
	KindAdd:               {name: "Add", symbol: "+", arity: 2, commutative: true},
	KindSubtract:          {name: "Subtract", symbol: "-", arity: 2},
	KindMultiply:          {name: "Multiply", symbol: "*", arity: 2, commutative: true},
	KindDivide:            {name: "Divide", symbol: "/", arity: 2},
	KindModulus:           {name: "Modulus", symbol: "%", arity: 2},
	KindNegate:            {name: "Negate", symbol: "-", arity: 1},
	KindBitwiseAnd:        {name: "BitwiseAnd", symbol: "&", arity: 2, commutative: true},
	KindBitwiseOr:         {name: "BitwiseOr", symbol: "|", arity: 2, commutative: true},
	KindBitwiseXor:        {name: "BitwiseXor", symbol: "^", arity: 2, commutative: true},
	KindShiftLeft:         {name: "ShiftLeft", symbol: "<<", arity: 2},
	KindShiftRight:        {name: "ShiftRight", symbol: ">>", arity: 2},
	KindShiftRightLogical: {name: "ShiftRightLogical", symbol: ">>>", arity: 2},
	KindEqual:             {name: "Equal", symbol: "==", arity: 2, commutative: true},
	KindNotEqual:          {name: "NotEqual", symbol: "!=", arity: 2, commutative: true},
	KindLessThan:          {name: "LessThan", symbol: "<", arity: 2},
	KindLessThanOrEqual:   {name: "LessThanOrEqual", symbol: "<=", arity: 2},
	KindBooleanNot:        {name: "BooleanNot", symbol: "!", arity: 1},
	KindPhi:               {name: "Phi", arity: -1},
	KindStaticAssert:      {name: "StaticAssert", arity: 1},
}

// String returns the kind name, e.g. "Add".
func (k Kind) String() string {
	if k >= kindCount {
		return "Kind(?)"
	}
	return kinds[k].name
}

// Symbol returns the JavaScript operator for the kind, or "".
func (k Kind) Symbol() string {
	if k >= kindCount {
		return ""
	}
	return kinds[k].symbol
}

// Arity returns the number of inputs, or -1 for variadic kinds.
func (k Kind) Arity() int {
	if k >= kindCount {
		return 0
	}
	return kinds[k].arity
}

// IsCommutative reports whether the operation is order independent when
// both operands are numbers. Callers must still check operand types.
func (k Kind) IsCommutative() bool {
	return k < kindCount && kinds[k].commutative
}

// IsBinary reports whether the kind is a two-input operator.
func (k Kind) IsBinary() bool {
	return k.Arity() == 2
}

// IsComparison reports whether the kind produces a Boolean from two operands.
func (k Kind) IsComparison() bool {
	switch k {
	case KindEqual, KindNotEqual, KindLessThan, KindLessThanOrEqual:
		return true
	}
	return false
}

// IsBitwise reports whether the kind applies ToInt32/ToUint32 to its operands.
func (k Kind) IsBitwise() bool {
	switch k {
	case KindBitwiseAnd, KindBitwiseOr, KindBitwiseXor,
		KindShiftLeft, KindShiftRight, KindShiftRightLogical:
		return true
	}
	return false
}
