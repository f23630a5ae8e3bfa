package optimizer

import (
	"fmt"
	"slices"

	"github.com/roach88/tierfold/internal/ir"
)

// maxRebuilds bounds the phi-typing fixed point. Every unstable round
// widens a phi type or settles a trivial phi, so the bound is only hit by a
// bug in the builder.
const maxRebuilds = 64

// phiState records what earlier rounds learned about one loop variable.
type phiState uint8

const (
	phiUnknown phiState = iota
	phiTrivial          // the loop leaves the variable unchanged; no phi needed
	phiNeeded           // a trivial guess turned out wrong; always build a phi
)

type phiHint struct {
	typ   ir.Type
	state phiState
}

// build is the result of lowering one function body to a graph.
type build struct {
	graph      *ir.Graph
	canon      *Canonicalizer
	cmp        *Comparator
	assertions *AssertionEvaluator
	ret        ir.NodeID
	rounds     int
}

// buildGraph lowers fn to a graph specialized to the parameter types.
//
// Loop phis need a type before their back edge exists. The builder guesses
// the entry type, builds the body, and starts over with the widened type
// whenever the back edge falls outside the guess. Identity guards are
// monotone in the operand type, so only the final, stable round decides
// which rewrites happened.
func buildGraph(fn *ir.Function, params []ir.Type) (*build, error) {
	// Merges are numbered in program order so hints carry over between
	// rounds even when a round prunes a branch.
	merges := make(map[*ir.Stmt]uint32)
	ir.Walk(fn.Body, func(s *ir.Stmt) {
		if s.Kind == ir.StmtIf || s.Kind == ir.StmtWhile {
			merges[s] = uint32(len(merges) + 1)
		}
	})

	hints := make(map[uint64]*phiHint)
	for round := 1; round <= maxRebuilds; round++ {
		b := newBuilder(fn, params, merges, hints)
		b.body(fn.Body)
		if !b.unstable {
			return &build{
				graph:      b.g,
				canon:      b.c,
				cmp:        b.eval.cmp,
				assertions: b.eval,
				ret:        b.ret,
				rounds:     round,
			}, nil
		}
	}
	return nil, fmt.Errorf("%s: loop phi types did not converge after %d rounds", fn.Name, maxRebuilds)
}

type scope struct {
	names  map[string]int
	parent *scope
}

func (s *scope) lookup(name string) (int, bool) {
	for ; s != nil; s = s.parent {
		if slot, ok := s.names[name]; ok {
			return slot, true
		}
	}
	return 0, false
}

type builder struct {
	g      *ir.Graph
	c      *Canonicalizer
	eval   *AssertionEvaluator
	merges map[*ir.Stmt]uint32
	hints  map[uint64]*phiHint

	scope    *scope
	values   []ir.NodeID // current value per variable slot
	ret      ir.NodeID
	unstable bool
}

func newBuilder(fn *ir.Function, params []ir.Type, merges map[*ir.Stmt]uint32, hints map[uint64]*phiHint) *builder {
	g := ir.NewGraph()
	c := NewCanonicalizer(g)
	b := &builder{
		g:      g,
		c:      c,
		eval:   NewAssertionEvaluator(c, NewComparator(c)),
		merges: merges,
		hints:  hints,
		scope:  &scope{names: make(map[string]int)},
		ret:    ir.NoNode,
	}
	for i, name := range fn.Params {
		typ := ir.TypeAny
		if i < len(params) && params[i] != ir.TypeNone {
			typ = params[i]
		}
		b.declare(name, g.Parameter(i, name, typ))
	}
	return b
}

func (b *builder) declare(name string, v ir.NodeID) {
	b.scope.names[name] = len(b.values)
	b.values = append(b.values, v)
}

func (b *builder) push() { b.scope = &scope{names: make(map[string]int), parent: b.scope} }

// pop leaves a block; variables declared in it go out of scope.
func (b *builder) pop(outer int) {
	b.scope = b.scope.parent
	b.values = b.values[:outer]
}

func (b *builder) body(stmts []*ir.Stmt) {
	for _, s := range stmts {
		b.stmt(s)
	}
}

func (b *builder) stmt(s *ir.Stmt) {
	switch s.Kind {
	case ir.StmtAssert:
		b.eval.Assert(b.expr(s.Expr), s.Pos, s.Text)

	case ir.StmtLet:
		v := b.expr(s.Expr)
		if slot, ok := b.scope.lookup(s.Name); ok {
			b.values[slot] = v
		} else {
			b.declare(s.Name, v)
		}

	case ir.StmtReturn:
		b.ret = b.expr(s.Expr)

	case ir.StmtIf:
		b.ifStmt(s)

	case ir.StmtWhile:
		b.whileStmt(s)

	default:
		panic(fmt.Sprintf("optimizer: unknown statement kind %s", s.Kind))
	}
}

func (b *builder) block(stmts []*ir.Stmt) {
	outer := len(b.values)
	b.push()
	b.body(stmts)
	b.pop(outer)
}

func (b *builder) ifStmt(s *ir.Stmt) {
	cond := b.g.Node(b.expr(s.Expr))
	if cond.IsConstant() {
		if cond.Value().ToBoolean() {
			b.block(s.Body)
		} else {
			b.block(s.Else)
		}
		return
	}

	before := slices.Clone(b.values)
	b.block(s.Body)
	thenVals := slices.Clone(b.values)
	copy(b.values, before)
	b.block(s.Else)

	for slot, elseVal := range b.values {
		thenVal := thenVals[slot]
		if thenVal == elseVal {
			continue
		}
		typ := b.g.Node(thenVal).Type.Union(b.g.Node(elseVal).Type)
		b.values[slot] = b.g.NewPhi(b.merges[s], uint32(slot), typ, thenVal, elseVal)
	}
}

func (b *builder) whileStmt(s *ir.Stmt) {
	entry := slices.Clone(b.values)
	if cond := b.g.Node(b.expr(s.Expr)); cond.IsConstant() && !cond.Value().ToBoolean() {
		return
	}

	merge := b.merges[s]
	slots := b.assignedSlots(s.Body)
	phis := make(map[int]ir.NodeID, len(slots))
	for _, slot := range slots {
		h := b.hint(merge, slot)
		if h.state == phiTrivial {
			continue
		}
		h.typ = h.typ.Union(b.g.Node(entry[slot]).Type)
		phi := b.g.NewPhi(merge, uint32(slot), h.typ, entry[slot], entry[slot])
		phis[slot] = phi
		b.values[slot] = phi
	}

	// The header condition is built with the phis in place; the graph has
	// no control edges, so its value only matters to assertions.
	b.expr(s.Expr)
	b.block(s.Body)

	for _, slot := range slots {
		h := b.hint(merge, slot)
		back := b.values[slot]
		phi, ok := phis[slot]
		if !ok {
			if back != entry[slot] {
				h.state = phiNeeded
				b.unstable = true
			}
			b.values[slot] = entry[slot]
			continue
		}
		b.g.SetPhiInput(phi, 1, back)
		b.values[slot] = phi
		if h.state == phiUnknown && (back == phi || back == entry[slot]) {
			h.state = phiTrivial
			b.unstable = true
			continue
		}
		if bt := b.g.Node(back).Type; !bt.Is(h.typ) {
			h.typ = h.typ.Union(bt)
			b.unstable = true
		}
	}
}

func (b *builder) hint(merge uint32, slot int) *phiHint {
	key := ir.PhiAux(merge, uint32(slot))
	h, ok := b.hints[key]
	if !ok {
		h = &phiHint{}
		b.hints[key] = h
	}
	return h
}

// assignedSlots returns the sorted slots of visible variables that body
// may assign.
func (b *builder) assignedSlots(body []*ir.Stmt) []int {
	seen := make(map[int]bool)
	var walk func([]*ir.Stmt, map[string]bool)
	walk = func(stmts []*ir.Stmt, declared map[string]bool) {
		local := make(map[string]bool, len(declared))
		for k := range declared {
			local[k] = true
		}
		for _, s := range stmts {
			if s.Kind == ir.StmtLet && !local[s.Name] {
				if slot, ok := b.scope.lookup(s.Name); ok {
					seen[slot] = true
				} else {
					local[s.Name] = true
				}
			}
			walk(s.Body, local)
			walk(s.Else, local)
		}
	}
	walk(body, nil)

	slots := make([]int, 0, len(seen))
	for slot := range seen {
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	return slots
}

func (b *builder) expr(e *ir.Expr) ir.NodeID {
	switch e.Kind {
	case ir.ExprLiteral:
		return b.g.Constant(e.Value)
	case ir.ExprIdent:
		slot, ok := b.scope.lookup(e.Name)
		if !ok {
			panic(fmt.Sprintf("optimizer: unbound variable %q survived validation", e.Name))
		}
		return b.values[slot]
	case ir.ExprOp:
		inputs := make([]ir.NodeID, len(e.Args))
		for i, a := range e.Args {
			inputs[i] = b.expr(a)
		}
		return b.c.Build(e.Op, inputs...)
	}
	panic(fmt.Sprintf("optimizer: unknown expression kind %d", e.Kind))
}
