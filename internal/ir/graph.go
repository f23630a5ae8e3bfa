package ir

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// NodeID indexes a node in its Graph's arena. IDs follow insertion order,
// which the optimizer uses as its stable tie-break.
type NodeID int32

// NoNode is the zero reference: no operand, no cached canonical form.
const NoNode NodeID = -1

// Node is a value producer in the graph.
type Node struct {
	ID     NodeID
	Kind   Kind
	Aux    uint64   // constant bits, parameter index, phi merge/slot, assertion index
	Type   Type     // lattice type of the produced value
	Inputs []NodeID // operands; for Phi, one per predecessor

	// Canon caches the canonical form computed by the optimizer. NoNode
	// until the node has been canonicalized.
	Canon NodeID

	// Hash is the structural hash the value-numbering table is keyed by.
	Hash uint64

	// Erased marks a StaticAssert that has been proven; lowering skips it.
	Erased bool
}

// IsConstant reports whether n is a Constant node.
func (n *Node) IsConstant() bool { return n.Kind == KindConstant }

// Value returns the constant payload of a Constant node.
func (n *Node) Value() Value {
	if n.Type == TypeBoolean {
		return Boolean(n.Aux != 0)
	}
	return Number(NumberFromBits(n.Aux))
}

// Graph is the node arena of one compilation, with a value-numbering table
// keyed by structural hash.
//
// INVARIANTS:
//   - nodes[i].ID == i
//   - every non-Phi input refers to an earlier node
//   - no two nodes share (Kind, Aux, Type, Inputs); Phis are keyed by Aux only
type Graph struct {
	nodes  []*Node
	table  map[uint64][]NodeID
	params []string
	phis   int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make([]*Node, 0, 64),
		table: make(map[uint64][]NodeID),
	}
}

// Len returns the number of nodes ever interned.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for id. Panics on an out-of-range id, which is
// always a caller bug.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// Nodes returns the arena in insertion order. The slice must not be mutated.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// HasPhis reports whether the graph contains loop or merge Phis, in which
// case reference equality is not enough to compare values.
func (g *Graph) HasPhis() bool {
	return g.phis > 0
}

// Intern returns the unique node for (kind, aux, typ, inputs), creating and
// registering it if needed. Inputs are copied.
func (g *Graph) Intern(kind Kind, aux uint64, typ Type, inputs ...NodeID) NodeID {
	if arity := kind.Arity(); arity >= 0 && arity != len(inputs) {
		panic(fmt.Sprintf("ir: %s takes %d inputs, got %d", kind, arity, len(inputs)))
	}
	h := structuralHash(kind, aux, typ, inputs)
	for _, id := range g.table[h] {
		if sameShape(g.nodes[id], kind, aux, typ, inputs) {
			return id
		}
	}

	id := NodeID(len(g.nodes))
	n := &Node{
		ID:     id,
		Kind:   kind,
		Aux:    aux,
		Type:   typ,
		Inputs: append([]NodeID(nil), inputs...),
		Canon:  NoNode,
		Hash:   h,
	}
	g.nodes = append(g.nodes, n)
	g.table[h] = append(g.table[h], id)
	if kind == KindPhi {
		g.phis++
	}
	return id
}

// Constant interns a constant node for v. undefined has no constant form
// and panics.
func (g *Graph) Constant(v Value) NodeID {
	switch {
	case v.IsBoolean():
		var aux uint64
		if v.Bool() {
			aux = 1
		}
		return g.Intern(KindConstant, aux, TypeBoolean)
	case v.IsNumber():
		return g.Intern(KindConstant, NumberBits(v.Float()), TypeOfNumber(v.Float()))
	default:
		panic("ir: undefined has no constant node")
	}
}

// NumberConstant is shorthand for Constant(Number(f)).
func (g *Graph) NumberConstant(f float64) NodeID {
	return g.Constant(Number(f))
}

// Parameter interns the parameter at index with the speculated type and
// records its source name for Format.
func (g *Graph) Parameter(index int, name string, typ Type) NodeID {
	for len(g.params) <= index {
		g.params = append(g.params, "")
	}
	g.params[index] = name
	return g.Intern(KindParameter, uint64(index), typ)
}

// PhiAux packs a merge point and a variable slot into a Phi aux value.
func PhiAux(merge, slot uint32) uint64 {
	return uint64(merge)<<32 | uint64(slot)
}

// PhiMerge returns the merge point a Phi belongs to.
func PhiMerge(aux uint64) uint32 {
	return uint32(aux >> 32)
}

// NewPhi creates the Phi for (merge, slot). Loop Phis are created with the
// entry value in both inputs and closed with SetPhiInput once the back edge
// is known.
func (g *Graph) NewPhi(merge, slot uint32, typ Type, inputs ...NodeID) NodeID {
	return g.Intern(KindPhi, PhiAux(merge, slot), typ, inputs...)
}

// SetPhiInput replaces input i of a Phi. This is the only mutation allowed
// on an interned node; it does not re-key the table because Phis are keyed
// by Aux alone.
func (g *Graph) SetPhiInput(phi NodeID, i int, v NodeID) {
	n := g.nodes[phi]
	if n.Kind != KindPhi {
		panic(fmt.Sprintf("ir: SetPhiInput on %s node %d", n.Kind, phi))
	}
	n.Inputs[i] = v
}

// ParamName returns the source name recorded for a parameter index.
func (g *Graph) ParamName(index int) string {
	if index < len(g.params) && g.params[index] != "" {
		return g.params[index]
	}
	return fmt.Sprintf("p%d", index)
}

// Verify re-derives the value-numbering key of every node and returns an
// *InvariantViolation when two nodes are structurally identical or an input
// reference is out of range.
func (g *Graph) Verify() error {
	seen := make(map[uint64][]NodeID, len(g.nodes))
	for i, n := range g.nodes {
		if n.ID != NodeID(i) {
			return &InvariantViolation{First: NodeID(i), Second: n.ID, Reason: "node id does not match arena index"}
		}
		for _, in := range n.Inputs {
			if in < 0 || int(in) >= len(g.nodes) {
				return &InvariantViolation{First: n.ID, Second: in, Reason: "input out of range"}
			}
			if n.Kind != KindPhi && in >= n.ID {
				return &InvariantViolation{First: n.ID, Second: in, Reason: "non-phi input does not precede its user"}
			}
		}
		h := structuralHash(n.Kind, n.Aux, n.Type, n.Inputs)
		for _, other := range seen[h] {
			if sameShape(g.nodes[other], n.Kind, n.Aux, n.Type, n.Inputs) {
				return &InvariantViolation{
					First:  other,
					Second: n.ID,
					Reason: fmt.Sprintf("structurally equal %s nodes were not interned to one instance", n.Kind),
				}
			}
		}
		seen[h] = append(seen[h], n.ID)
	}
	return nil
}

// MustVerify panics with the *InvariantViolation returned by Verify.
// A broken value-numbering table invalidates every identity the optimizer
// proves, so there is nothing to recover.
func (g *Graph) MustVerify() {
	if err := g.Verify(); err != nil {
		panic(err)
	}
}

// InvariantViolation reports a defect in the graph itself.
type InvariantViolation struct {
	First  NodeID
	Second NodeID
	Reason string
}

// Error implements the error interface.
func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("ir invariant violation: %s (nodes %d and %d)", e.Reason, e.First, e.Second)
}

// structuralHash hashes the value-numbering key with FNV-1a. Phi inputs are
// excluded because back edges are patched after interning.
func structuralHash(kind Kind, aux uint64, typ Type, inputs []NodeID) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	h.Write([]byte{byte(kind), byte(typ)})
	binary.LittleEndian.PutUint64(buf[:], aux)
	h.Write(buf[:])
	if kind != KindPhi {
		for _, in := range inputs {
			binary.LittleEndian.PutUint32(buf[:4], uint32(in))
			h.Write(buf[:4])
		}
	}
	return h.Sum64()
}

func sameShape(n *Node, kind Kind, aux uint64, typ Type, inputs []NodeID) bool {
	if n.Kind != kind || n.Aux != aux || n.Type != typ {
		return false
	}
	if kind == KindPhi {
		return true
	}
	if len(n.Inputs) != len(inputs) {
		return false
	}
	for i := range inputs {
		if n.Inputs[i] != inputs[i] {
			return false
		}
	}
	return true
}
