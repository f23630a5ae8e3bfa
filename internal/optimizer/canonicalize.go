package optimizer

import (
	"fmt"

	"github.com/roach88/tierfold/internal/ir"
)

// Rewrite names the rule that produced a node, for the graph trace.
type Rewrite struct {
	Kind   ir.Kind
	Inputs []ir.NodeID
	Result ir.NodeID
	Rule   string // "fold", "reorder" or an identity name
}

// Canonicalizer rewrites operator nodes into canonical form while they are
// interned. It owns no state besides the graph it writes to.
type Canonicalizer struct {
	g     *ir.Graph
	trace []Rewrite
}

// NewCanonicalizer returns a canonicalizer over g.
func NewCanonicalizer(g *ir.Graph) *Canonicalizer {
	return &Canonicalizer{g: g}
}

// Graph returns the graph the canonicalizer interns into.
func (c *Canonicalizer) Graph() *ir.Graph { return c.g }

// Rewrites returns every rewrite applied so far, in order.
func (c *Canonicalizer) Rewrites() []Rewrite { return c.trace }

// Build interns kind applied to inputs after canonicalizing it. The inputs
// must already be canonical. Rules are tried in fixed order and the first
// match wins:
//
//  1. constant folding, when every input is a constant
//  2. the identity table
//  3. commutative reordering: constants right, otherwise lower NodeID first
func (c *Canonicalizer) Build(kind ir.Kind, inputs ...ir.NodeID) ir.NodeID {
	switch kind {
	case ir.KindConstant, ir.KindParameter, ir.KindPhi, ir.KindStaticAssert, ir.KindInvalid:
		panic(fmt.Sprintf("optimizer: Build called with non-operator kind %s", kind))
	}

	if id, ok := c.fold(kind, inputs); ok {
		c.record(kind, inputs, id, "fold")
		return id
	}
	if id, rule, ok := c.applyIdentity(kind, inputs); ok {
		c.record(kind, inputs, id, rule)
		return id
	}
	if ordered, ok := c.reorder(kind, inputs); ok {
		id := c.intern(kind, ordered)
		c.record(kind, inputs, id, "reorder")
		return id
	}
	return c.intern(kind, inputs)
}

// Canonicalize returns the canonical form of id and caches it in
// Node.Canon. Canonicalize(Canonicalize(n)) == Canonicalize(n).
func (c *Canonicalizer) Canonicalize(id ir.NodeID) ir.NodeID {
	n := c.g.Node(id)
	if n.Canon != ir.NoNode {
		return n.Canon
	}

	var out ir.NodeID
	switch n.Kind {
	case ir.KindConstant, ir.KindParameter, ir.KindStaticAssert:
		out = id
	case ir.KindPhi:
		// Provisional, so a cycle through the back edge sees the phi itself.
		n.Canon = id
		out = c.canonicalPhi(n)
	default:
		inputs := make([]ir.NodeID, len(n.Inputs))
		for i, in := range n.Inputs {
			inputs[i] = c.Canonicalize(in)
		}
		out = c.Build(n.Kind, inputs...)
	}

	n.Canon = out
	if out != id {
		c.g.Node(out).Canon = c.Canonicalize(out)
		n.Canon = c.g.Node(out).Canon
	}
	return n.Canon
}

// canonicalPhi forwards a phi whose inputs, ignoring the phi itself, are all
// one value.
func (c *Canonicalizer) canonicalPhi(n *ir.Node) ir.NodeID {
	single := ir.NoNode
	for _, in := range n.Inputs {
		in = c.Canonicalize(in)
		if in == n.ID || in == single {
			continue
		}
		if single != ir.NoNode {
			return n.ID
		}
		single = in
	}
	if single == ir.NoNode {
		return n.ID
	}
	return single
}

func (c *Canonicalizer) fold(kind ir.Kind, inputs []ir.NodeID) (ir.NodeID, bool) {
	vals := make([]ir.Value, len(inputs))
	for i, in := range inputs {
		n := c.g.Node(in)
		if !n.IsConstant() {
			return ir.NoNode, false
		}
		vals[i] = n.Value()
	}
	v, ok := ir.Evaluate(kind, vals...)
	if !ok {
		return ir.NoNode, false
	}
	return c.g.Constant(v), true
}

// reorder sorts the operands of a commutative operation. Only numeric
// operands are reordered: every commutative kind is order independent on
// Numbers, including NaN and signed zeros.
func (c *Canonicalizer) reorder(kind ir.Kind, inputs []ir.NodeID) ([]ir.NodeID, bool) {
	if !kind.IsCommutative() || len(inputs) != 2 {
		return nil, false
	}
	a, b := c.g.Node(inputs[0]), c.g.Node(inputs[1])
	if !a.Type.IsNumeric() || !b.Type.IsNumeric() {
		return nil, false
	}
	if operandLess(b, a) {
		return []ir.NodeID{inputs[1], inputs[0]}, true
	}
	return nil, false
}

// operandLess orders non-constants before constants and otherwise by
// insertion order.
func operandLess(x, y *ir.Node) bool {
	if x.IsConstant() != y.IsConstant() {
		return !x.IsConstant()
	}
	return x.ID < y.ID
}

func (c *Canonicalizer) intern(kind ir.Kind, inputs []ir.NodeID) ir.NodeID {
	types := make([]ir.Type, len(inputs))
	for i, in := range inputs {
		types[i] = c.g.Node(in).Type
	}
	return c.g.Intern(kind, 0, resultType(kind, types...), inputs...)
}

func (c *Canonicalizer) record(kind ir.Kind, inputs []ir.NodeID, result ir.NodeID, rule string) {
	c.trace = append(c.trace, Rewrite{
		Kind:   kind,
		Inputs: append([]ir.NodeID(nil), inputs...),
		Result: result,
		Rule:   rule,
	})
}
