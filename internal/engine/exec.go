package engine

import (
	"fmt"

	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
)

// straightLine reports whether code can be run by evaluating its graph:
// the graph has no Phis and the source has no loops. Otherwise the
// optimized tier runs the source through the interpreter under the
// code's guards.
func straightLine(code *optimizer.Code) bool {
	if code.Graph.HasPhis() {
		return false
	}
	loops := false
	ir.Walk(code.Function.Body, func(s *ir.Stmt) {
		if s.Kind == ir.StmtWhile {
			loops = true
		}
	})
	return !loops
}

// evalGraph computes the return node of a straight-line graph on args
// that passed the code's guards.
func evalGraph(code *optimizer.Code, args []ir.Value) (ir.Value, error) {
	if code.Return == ir.NoNode {
		return ir.Undefined(), nil
	}
	g := code.Graph
	memo := make(map[ir.NodeID]ir.Value)

	var eval func(id ir.NodeID) (ir.Value, error)
	eval = func(id ir.NodeID) (ir.Value, error) {
		if v, ok := memo[id]; ok {
			return v, nil
		}
		n := g.Node(id)
		var v ir.Value
		switch n.Kind {
		case ir.KindConstant:
			v = n.Value()
		case ir.KindParameter:
			v = args[n.Aux]
		case ir.KindPhi, ir.KindStaticAssert:
			return ir.Undefined(), fmt.Errorf("node #%d: %s has no straight-line value", id, n.Kind)
		default:
			operands := make([]ir.Value, len(n.Inputs))
			for i, in := range n.Inputs {
				ov, err := eval(in)
				if err != nil {
					return ir.Undefined(), err
				}
				operands[i] = ov
			}
			var ok bool
			if v, ok = ir.Evaluate(n.Kind, operands...); !ok {
				return ir.Undefined(), fmt.Errorf("node #%d: cannot evaluate %s", id, n.Kind)
			}
		}
		memo[id] = v
		return v, nil
	}
	return eval(code.Return)
}
