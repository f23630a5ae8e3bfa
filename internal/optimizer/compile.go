package optimizer

import (
	"errors"

	"github.com/roach88/tierfold/internal/ir"
)

// Code is the output of an optimizing compilation: a verified graph whose
// static assertions are all proven, specialized to the parameter types it
// was built for.
type Code struct {
	Function   *ir.Function
	Params     []ir.Type // speculated parameter types; calls outside them bail out
	Graph      *ir.Graph
	Return     ir.NodeID // NoNode when the function has no return statement
	Assertions []*Assertion
	Rewrites   []Rewrite
	Rounds     int // graph builds needed for loop phi types to settle
}

// Guard checks the speculation the code was compiled under. It returns the
// index of the first argument outside its parameter type.
func (c *Code) Guard(args []ir.Value) (int, bool) {
	for i, p := range c.Params {
		if i >= len(args) {
			return i, false
		}
		if args[i].IsUndefined() || !args[i].Type().Is(p) {
			return i, false
		}
	}
	return -1, true
}

// Compile builds, canonicalizes and verifies fn for the given parameter
// types. Missing or None parameter types compile as Any.
//
// A graph that breaks value numbering panics with *ir.InvariantViolation.
// Unprovable static assertions return *UnprovableAssertionError.
func Compile(fn *ir.Function, params []ir.Type) (*Code, error) {
	code, err := Analyze(fn, params)
	if err != nil {
		return nil, err
	}
	return code, nil
}

// Analyze is Compile for diagnostics: when assertions fail it still returns
// the code so the graph can be inspected, alongside the error.
func Analyze(fn *ir.Function, params []ir.Type) (*Code, error) {
	b, err := buildGraph(fn, params)
	if err != nil {
		return nil, err
	}
	b.graph.MustVerify()

	code := &Code{
		Function:   fn,
		Params:     normalizeParams(fn, params),
		Graph:      b.graph,
		Return:     b.ret,
		Assertions: b.assertions.Records(),
		Rounds:     b.rounds,
	}
	if code.Return != ir.NoNode {
		code.Return = b.canon.Canonicalize(code.Return)
	}

	err = b.assertions.Finalize()
	if err == nil {
		err = b.assertions.CheckLowering()
	}
	code.Rewrites = b.canon.Rewrites()
	// Finalize may canonicalize and intern; the table must still hold.
	b.graph.MustVerify()

	var ue *UnprovableAssertionError
	if errors.As(err, &ue) {
		ue.Function = fn.Name
	}
	return code, err
}

func normalizeParams(fn *ir.Function, params []ir.Type) []ir.Type {
	out := make([]ir.Type, len(fn.Params))
	for i := range out {
		out[i] = ir.TypeAny
		if i < len(params) && params[i] != ir.TypeNone {
			out[i] = params[i]
		}
	}
	return out
}
