package optimizer

import (
	"fmt"
	"strings"

	"github.com/roach88/tierfold/internal/ir"
)

// AssertionState is the lifecycle of a static assertion:
// Pending -> Proven, or Pending -> Failed when compilation finalizes.
type AssertionState uint8

const (
	AssertionPending AssertionState = iota
	AssertionProven
	AssertionFailed
)

func (s AssertionState) String() string {
	switch s {
	case AssertionPending:
		return "pending"
	case AssertionProven:
		return "proven"
	case AssertionFailed:
		return "failed"
	}
	return fmt.Sprintf("AssertionState(%d)", s)
}

// Assertion is a compile-time obligation: Expr must canonicalize to true.
type Assertion struct {
	Expr  ir.NodeID // the boolean expression
	Node  ir.NodeID // the StaticAssert node guarding it
	Pos   ir.Pos
	Text  string
	State AssertionState
}

// AssertionEvaluator tracks the static assertions of one compilation.
// It never executes code: an assertion holds only if the optimizer's own
// rewriting turns it into the constant true or proves its operands are one
// congruence class.
type AssertionEvaluator struct {
	c       *Canonicalizer
	cmp     *Comparator
	records []*Assertion
}

// NewAssertionEvaluator returns an evaluator over the canonicalizer's graph.
func NewAssertionEvaluator(c *Canonicalizer, cmp *Comparator) *AssertionEvaluator {
	return &AssertionEvaluator{c: c, cmp: cmp}
}

// Assert records an assertion on expr, which must be a node returned by
// Canonicalizer.Build. An expression that already folded to true is proven
// at once and its StaticAssert node erased.
//
// Assert does not canonicalize: loop Phis may still be open while the body
// is being built.
func (e *AssertionEvaluator) Assert(expr ir.NodeID, pos ir.Pos, text string) *Assertion {
	g := e.c.g
	a := &Assertion{
		Expr: expr,
		Node: g.Intern(ir.KindStaticAssert, uint64(len(e.records)), ir.TypeNone, expr),
		Pos:  pos,
		Text: text,
	}
	if isTrue(g.Node(expr)) {
		e.prove(a)
	}
	e.records = append(e.records, a)
	return a
}

// Records returns every assertion in the order it was made.
func (e *AssertionEvaluator) Records() []*Assertion { return e.records }

// Finalize resolves every pending assertion. Assertions that cannot be
// proven are marked Failed and reported together in an
// *UnprovableAssertionError.
func (e *AssertionEvaluator) Finalize() error {
	var failed []*Assertion
	for _, a := range e.records {
		if a.State != AssertionPending {
			continue
		}
		if e.provable(a.Expr) {
			e.prove(a)
			continue
		}
		a.State = AssertionFailed
		failed = append(failed, a)
	}
	if len(failed) == 0 {
		return nil
	}
	return e.unprovable(failed)
}

// CheckLowering rejects graphs that still contain a live StaticAssert.
// Lowering has no code to emit for one, so a pending assertion at this
// point is itself unprovable.
func (e *AssertionEvaluator) CheckLowering() error {
	var live []*Assertion
	for _, a := range e.records {
		if !e.c.g.Node(a.Node).Erased {
			live = append(live, a)
		}
	}
	for _, n := range e.c.g.Nodes() {
		if n.Kind == ir.KindStaticAssert && !n.Erased && int(n.Aux) >= len(e.records) {
			live = append(live, &Assertion{Expr: n.Inputs[0], Node: n.ID, Text: e.c.g.Format(n.Inputs[0])})
		}
	}
	if len(live) == 0 {
		return nil
	}
	return e.unprovable(live)
}

func (e *AssertionEvaluator) prove(a *Assertion) {
	a.State = AssertionProven
	e.c.g.Node(a.Node).Erased = true
}

// provable decides an assertion from canonical forms only.
func (e *AssertionEvaluator) provable(expr ir.NodeID) bool {
	g := e.c.g
	n := g.Node(e.c.Canonicalize(expr))
	if isTrue(n) {
		return true
	}
	switch n.Kind {
	case ir.KindEqual, ir.KindLessThanOrEqual:
		// x == y and x <= y hold when x and y are one non-NaN value.
		return e.sameNonNaN(n.Inputs[0], n.Inputs[1])
	case ir.KindBooleanNot:
		inner := g.Node(n.Inputs[0])
		switch inner.Kind {
		case ir.KindNotEqual, ir.KindLessThan:
			return e.sameNonNaN(inner.Inputs[0], inner.Inputs[1])
		}
	}
	return false
}

func (e *AssertionEvaluator) sameNonNaN(a, b ir.NodeID) bool {
	t := e.c.g.Node(a).Type
	return notNaN(t) && e.cmp.SameValue(a, b)
}

func (e *AssertionEvaluator) unprovable(records []*Assertion) *UnprovableAssertionError {
	err := &UnprovableAssertionError{}
	for _, a := range records {
		err.Failures = append(err.Failures, AssertionFailure{
			Pos:       a.Pos,
			Text:      a.Text,
			Canonical: e.c.g.Format(e.c.Canonicalize(a.Expr)),
		})
	}
	return err
}

func isTrue(n *ir.Node) bool {
	return n.IsConstant() && n.Type == ir.TypeBoolean && n.Aux == 1
}

// AssertionFailure describes one assertion the optimizer could not prove.
type AssertionFailure struct {
	Pos       ir.Pos `json:"pos"`
	Text      string `json:"text"`
	Canonical string `json:"canonical"`
}

func (f AssertionFailure) String() string {
	return fmt.Sprintf("%s: %s (canonical: %s)", f.Pos, f.Text, f.Canonical)
}

// UnprovableAssertionError aborts a compilation whose static assertions
// did not canonicalize to true. It is deterministic for a given function
// and feedback, so retrying is pointless.
type UnprovableAssertionError struct {
	Function string
	Failures []AssertionFailure
}

func (e *UnprovableAssertionError) Error() string {
	var b strings.Builder
	if e.Function != "" {
		fmt.Fprintf(&b, "%s: ", e.Function)
	}
	fmt.Fprintf(&b, "unprovable static assertion")
	if len(e.Failures) > 1 {
		fmt.Fprintf(&b, "s (%d)", len(e.Failures))
	}
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.String())
	}
	return b.String()
}
