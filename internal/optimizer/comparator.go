package optimizer

import (
	"fmt"
	"strings"

	"github.com/roach88/tierfold/internal/ir"
)

// Comparator decides whether two nodes denote the same value.
//
// Without Phis, interning makes structurally equal canonical nodes one
// node, so reference equality of canonical forms is exact. Across loop back
// edges that is no longer true: two loop counters with the same start and
// step are equal but are distinct nodes, because each Phi's back edge refers
// to itself. For graphs with Phis the comparator computes the coarsest
// congruence by optimistic partition refinement:
//
//  1. forward trivial Phis (every input other than the Phi is one value)
//  2. start with one class per label: kind, aux, type and arity; all Phis
//     of one merge share a label
//  3. split classes whose members disagree on the class of any operand,
//     until nothing splits
//
// Phi operands are compared positionally since Phis of one merge list their
// inputs in the same predecessor order.
type Comparator struct {
	c *Canonicalizer

	// partition cache, valid while the graph has cachedLen nodes
	cachedLen int
	forward   []ir.NodeID
	class     []int
}

// NewComparator returns a comparator over the canonicalizer's graph.
func NewComparator(c *Canonicalizer) *Comparator {
	return &Comparator{c: c, cachedLen: -1}
}

// SameValue reports whether a and b are the same value after
// canonicalization.
func (cmp *Comparator) SameValue(a, b ir.NodeID) bool {
	a, b = cmp.c.Canonicalize(a), cmp.c.Canonicalize(b)
	if a == b {
		return true
	}
	if !cmp.c.g.HasPhis() {
		return false
	}
	cmp.refresh()
	return cmp.class[cmp.resolve(a)] == cmp.class[cmp.resolve(b)]
}

// Invalidate drops the cached partition. Needed only after SetPhiInput,
// which changes the graph without growing it.
func (cmp *Comparator) Invalidate() { cmp.cachedLen = -1 }

// Classes returns the number of congruence classes, for tests and traces.
func (cmp *Comparator) Classes() int {
	cmp.refresh()
	seen := make(map[int]bool)
	for i, f := range cmp.forward {
		if f == ir.NodeID(i) {
			seen[cmp.class[i]] = true
		}
	}
	return len(seen)
}

func (cmp *Comparator) refresh() {
	g := cmp.c.g
	if cmp.cachedLen == g.Len() {
		return
	}
	// Canonicalize every node first; it may intern new ones.
	for i := 0; i < g.Len(); i++ {
		cmp.c.Canonicalize(ir.NodeID(i))
	}
	n := g.Len()

	cmp.forward = cmp.forwardTrivialPhis(n)
	cmp.class = cmp.refine(n)
	cmp.cachedLen = g.Len()
}

// operands returns the resolved inputs of node id.
func (cmp *Comparator) operands(id ir.NodeID) []ir.NodeID {
	node := cmp.c.g.Node(id)
	out := make([]ir.NodeID, len(node.Inputs))
	for i, in := range node.Inputs {
		out[i] = cmp.resolve(in)
	}
	return out
}

func (cmp *Comparator) resolve(id ir.NodeID) ir.NodeID {
	id = cmp.c.g.Node(id).Canon
	for cmp.forward[id] != id {
		id = cmp.forward[id]
	}
	return id
}

func (cmp *Comparator) forwardTrivialPhis(n int) []ir.NodeID {
	g := cmp.c.g
	cmp.forward = make([]ir.NodeID, n)
	for i := range cmp.forward {
		cmp.forward[i] = ir.NodeID(i)
	}
	for changed := true; changed; {
		changed = false
		for i := 0; i < n; i++ {
			node := g.Node(ir.NodeID(i))
			if node.Kind != ir.KindPhi || cmp.forward[i] != ir.NodeID(i) {
				continue
			}
			single := ir.NoNode
			trivial := true
			for _, in := range node.Inputs {
				in = cmp.resolve(in)
				if in == node.ID || in == single {
					continue
				}
				if single != ir.NoNode {
					trivial = false
					break
				}
				single = in
			}
			if trivial && single != ir.NoNode {
				cmp.forward[i] = single
				changed = true
			}
		}
	}
	return cmp.forward
}

func (cmp *Comparator) refine(n int) []int {
	g := cmp.c.g
	class := make([]int, n)

	labels := make(map[string]int)
	for i := 0; i < n; i++ {
		node := g.Node(ir.NodeID(i))
		var label string
		if node.Kind == ir.KindPhi {
			label = fmt.Sprintf("phi/%d/%d", ir.PhiMerge(node.Aux), len(node.Inputs))
		} else {
			label = fmt.Sprintf("%d/%d/%d/%d", node.Kind, node.Aux, node.Type, len(node.Inputs))
		}
		c, ok := labels[label]
		if !ok {
			c = len(labels)
			labels[label] = c
		}
		class[i] = c
	}
	count := len(labels)

	var key strings.Builder
	for {
		next := make([]int, n)
		sigs := make(map[string]int, count)
		for i := 0; i < n; i++ {
			key.Reset()
			fmt.Fprintf(&key, "%d", class[i])
			for _, in := range cmp.operands(ir.NodeID(i)) {
				fmt.Fprintf(&key, ",%d", class[in])
			}
			c, ok := sigs[key.String()]
			if !ok {
				c = len(sigs)
				sigs[key.String()] = c
			}
			next[i] = c
		}
		class = next
		// Splitting only ever refines, so an unchanged count is a fixed point.
		if len(sigs) == count {
			return class
		}
		count = len(sigs)
	}
}
