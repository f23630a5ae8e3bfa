package ir

import (
	"fmt"
	"strings"
)

// Type is a bitset lattice over the values a node may produce.
//
// The number bits partition float64: Signed32 holds the integers in
// [-2^31, 2^31) excluding -0, MinusZero holds -0, NaN holds every NaN and
// OtherNumber holds everything else (fractions, large integers, infinities).
type Type uint8

const (
	TypeSigned32 Type = 1 << iota
	TypeMinusZero
	TypeNaN
	TypeOtherNumber
	TypeBoolean
)

const (
	TypeNone   Type = 0
	TypeNumber      = TypeSigned32 | TypeMinusZero | TypeNaN | TypeOtherNumber
	TypeAny         = TypeNumber | TypeBoolean
)

var typeNames = []struct {
	bit  Type
	name string
}{
	{TypeSigned32, "Signed32"},
	{TypeMinusZero, "MinusZero"},
	{TypeNaN, "NaN"},
	{TypeOtherNumber, "OtherNumber"},
	{TypeBoolean, "Boolean"},
}

// Is reports whether t is a subtype of other. TypeNone is a subtype of
// everything.
func (t Type) Is(other Type) bool {
	return t&^other == 0
}

// Maybe reports whether t and other share at least one value.
func (t Type) Maybe(other Type) bool {
	return t&other != 0
}

// Union returns the least upper bound of t and other.
func (t Type) Union(other Type) Type {
	return t | other
}

// IsNumeric reports whether every value of t is a Number.
func (t Type) IsNumeric() bool {
	return t != TypeNone && t.Is(TypeNumber)
}

// ToNumber returns the type of ToNumber(v) for v in t.
// Booleans become 0 or 1, both Signed32.
func (t Type) ToNumber() Type {
	if t.Maybe(TypeBoolean) {
		return (t &^ TypeBoolean) | TypeSigned32
	}
	return t
}

// String renders the type as "Signed32|MinusZero", with the aliases
// "Number", "Any" and "None" for the common sets.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeNumber:
		return "Number"
	case TypeAny:
		return "Any"
	}
	var parts []string
	for _, tn := range typeNames {
		if t&tn.bit != 0 {
			parts = append(parts, tn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseType parses the output of Type.String as well as lower-case bit
// names ("signed32|minuszero"). Used for feedback flags and scenario files.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "none":
		return TypeNone, nil
	case "number":
		return TypeNumber, nil
	case "any":
		return TypeAny, nil
	}
	var t Type
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for _, tn := range typeNames {
			if strings.EqualFold(part, tn.name) {
				t |= tn.bit
				found = true
				break
			}
		}
		if !found {
			return TypeNone, fmt.Errorf("unknown type %q", part)
		}
	}
	return t, nil
}
