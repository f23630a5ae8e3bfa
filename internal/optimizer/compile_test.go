package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tierfold/internal/ir"
)

func TestCompileRegressionFunction(t *testing.T) {
	code, err := Compile(fooFunction(), []ir.Type{ir.TypeSigned32})
	require.NoError(t, err)

	require.Len(t, code.Assertions, 1)
	a := code.Assertions[0]
	assert.Equal(t, AssertionProven, a.State)
	assert.True(t, code.Graph.Node(a.Node).Erased)
	assert.Equal(t, []ir.Type{ir.TypeSigned32}, code.Params)
	assert.Equal(t, ir.NoNode, code.Return)
	assert.Equal(t, 1, code.Rounds)

	var rules []string
	for _, r := range code.Rewrites {
		rules = append(rules, r.Rule)
	}
	assert.Equal(t, []string{"x * 1", "x + 0", "x == x"}, rules)
}

func TestCompileRegressionFunctionFailsWhenMinusZeroSeen(t *testing.T) {
	code, err := Compile(fooFunction(), []ir.Type{ir.TypeSigned32 | ir.TypeMinusZero})
	require.Error(t, err)
	assert.Nil(t, code)

	var ue *UnprovableAssertionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "foo", ue.Function)
	assert.Equal(t, "1 * x == x + 0", ue.Failures[0].Text)
	assert.Equal(t, 3, ue.Failures[0].Pos.Line)
}

func TestCompileWithoutFeedbackIsConservative(t *testing.T) {
	for _, params := range [][]ir.Type{nil, {ir.TypeNone}, {ir.TypeAny}, {ir.TypeNumber}} {
		_, err := Compile(fooFunction(), params)
		assert.Error(t, err, "params %v", params)
	}
}

func TestAnalyzeReturnsCodeOnFailure(t *testing.T) {
	code, err := Analyze(fooFunction(), []ir.Type{ir.TypeNumber})
	require.Error(t, err)
	require.NotNil(t, code)
	assert.Equal(t, AssertionFailed, code.Assertions[0].State)
	assert.Contains(t, code.Graph.Dump(), "StaticAssert")
}

func TestCompileLoopCountersWithPhiTyping(t *testing.T) {
	// let i = 0; let j = 0
	// while (i < n) { i = i + 1; j = j + 1; assert i == j }
	// assert i == j
	// return i
	fn := &ir.Function{
		Name:   "count",
		Params: []string{"n"},
		Body: []*ir.Stmt{
			letStmt("i", num(0)),
			letStmt("j", num(0)),
			whileStmt(op(ir.KindLessThan, ident("i"), ident("n")),
				letStmt("i", op(ir.KindAdd, ident("i"), num(1))),
				letStmt("j", op(ir.KindAdd, ident("j"), num(1))),
				assertStmt(op(ir.KindEqual, ident("i"), ident("j")), "i == j", 4),
			),
			assertStmt(op(ir.KindEqual, ident("i"), ident("j")), "i == j", 6),
			returnStmt(ident("i")),
		},
	}

	code, err := Compile(fn, []ir.Type{ir.TypeSigned32})
	require.NoError(t, err)
	assert.True(t, code.Graph.HasPhis())
	assert.Equal(t, 2, code.Rounds, "the phi type widens once to cover overflow")

	ret := code.Graph.Node(code.Return)
	assert.Equal(t, ir.KindPhi, ret.Kind)
	assert.Equal(t, ir.TypeSigned32|ir.TypeOtherNumber, ret.Type)
	for _, a := range code.Assertions {
		assert.Equal(t, AssertionProven, a.State)
	}
	assertIdempotent(t, code)
}

func TestCompileLoopCountersWithDifferentStepsFails(t *testing.T) {
	fn := &ir.Function{
		Name:   "count",
		Params: []string{"n"},
		Body: []*ir.Stmt{
			letStmt("i", num(0)),
			letStmt("j", num(0)),
			whileStmt(op(ir.KindLessThan, ident("i"), ident("n")),
				letStmt("i", op(ir.KindAdd, ident("i"), num(1))),
				letStmt("j", op(ir.KindAdd, ident("j"), num(2))),
			),
			assertStmt(op(ir.KindEqual, ident("i"), ident("j")), "i == j", 6),
		},
	}
	_, err := Compile(fn, []ir.Type{ir.TypeSigned32})
	require.Error(t, err)
}

func TestCompileDropsTrivialLoopPhis(t *testing.T) {
	// while (k < n) { x = x * 1 } never changes x or k.
	fn := &ir.Function{
		Name:   "spin",
		Params: []string{"x", "n"},
		Body: []*ir.Stmt{
			letStmt("k", num(0)),
			whileStmt(op(ir.KindLessThan, ident("k"), ident("n")),
				letStmt("x", op(ir.KindMultiply, ident("x"), num(1))),
			),
			assertStmt(op(ir.KindEqual, ident("x"), op(ir.KindAdd, ident("x"), num(0))), "x == x + 0", 5),
			returnStmt(ident("x")),
		},
	}

	code, err := Compile(fn, []ir.Type{ir.TypeSigned32, ir.TypeSigned32})
	require.NoError(t, err)
	assert.False(t, code.Graph.HasPhis())
	assert.Equal(t, ir.KindParameter, code.Graph.Node(code.Return).Kind)
	assert.Equal(t, 2, code.Rounds)
}

func TestCompileIfMergeBuildsPhi(t *testing.T) {
	// let y = x; if (x < 0) { y = 0 - x }; return y
	fn := &ir.Function{
		Name:   "abs",
		Params: []string{"x"},
		Body: []*ir.Stmt{
			letStmt("y", ident("x")),
			ifStmt(op(ir.KindLessThan, ident("x"), num(0)),
				[]*ir.Stmt{letStmt("y", op(ir.KindSubtract, num(0), ident("x")))},
				nil),
			returnStmt(ident("y")),
		},
	}

	code, err := Compile(fn, []ir.Type{ir.TypeSigned32})
	require.NoError(t, err)
	ret := code.Graph.Node(code.Return)
	require.Equal(t, ir.KindPhi, ret.Kind)
	require.Len(t, ret.Inputs, 2)
	assert.Equal(t, ir.KindSubtract, code.Graph.Node(ret.Inputs[0]).Kind)
	assert.Equal(t, ir.KindParameter, code.Graph.Node(ret.Inputs[1]).Kind)
	assertIdempotent(t, code)
}

func TestCompilePrunesConstantBranchesAndLoops(t *testing.T) {
	fn := &ir.Function{
		Name: "pruned",
		Body: []*ir.Stmt{
			letStmt("y", num(1)),
			ifStmt(op(ir.KindLessThan, num(1), num(2)),
				[]*ir.Stmt{letStmt("y", num(5))},
				[]*ir.Stmt{letStmt("y", num(6))}),
			letStmt("i", num(5)),
			whileStmt(op(ir.KindLessThan, ident("i"), num(0)),
				letStmt("i", op(ir.KindAdd, ident("i"), num(1))),
			),
			assertStmt(op(ir.KindEqual, ident("y"), num(5)), "y == 5", 7),
			assertStmt(op(ir.KindEqual, ident("i"), num(5)), "i == 5", 8),
		},
	}

	code, err := Compile(fn, nil)
	require.NoError(t, err)
	assert.False(t, code.Graph.HasPhis())
	for _, a := range code.Assertions {
		assert.Equal(t, AssertionProven, a.State, a.Text)
	}
}

func TestCompileBlockScopedDeclarations(t *testing.T) {
	// A let of a new name inside a branch does not escape it.
	fn := &ir.Function{
		Name:   "scoped",
		Params: []string{"x"},
		Body: []*ir.Stmt{
			ifStmt(op(ir.KindLessThan, ident("x"), num(0)),
				[]*ir.Stmt{letStmt("t", num(1)), letStmt("x", ident("t"))},
				nil),
			returnStmt(ident("x")),
		},
	}
	code, err := Compile(fn, []ir.Type{ir.TypeSigned32})
	require.NoError(t, err)
	ret := code.Graph.Node(code.Return)
	require.Equal(t, ir.KindPhi, ret.Kind)
	assert.Equal(t, ir.TypeSigned32, ret.Type)
}

func TestCodeGuard(t *testing.T) {
	code, err := Compile(fooFunction(), []ir.Type{ir.TypeSigned32})
	require.NoError(t, err)

	_, ok := code.Guard([]ir.Value{ir.Number(123)})
	assert.True(t, ok)

	for _, v := range []ir.Value{ir.Number(negZero), ir.Number(0.5), ir.Number(1e10), ir.Boolean(true), ir.Undefined()} {
		idx, ok := code.Guard([]ir.Value{v})
		assert.False(t, ok, v.String())
		assert.Equal(t, 0, idx)
	}
	_, ok = code.Guard(nil)
	assert.False(t, ok, "missing argument")
}

func TestCompiledGraphsAreIndependent(t *testing.T) {
	a, err := Compile(fooFunction(), []ir.Type{ir.TypeSigned32})
	require.NoError(t, err)
	b, err := Compile(fooFunction(), []ir.Type{ir.TypeSigned32})
	require.NoError(t, err)
	assert.NotSame(t, a.Graph, b.Graph)
	assert.Equal(t, a.Graph.Dump(), b.Graph.Dump(), "compilation is deterministic")
}

func assertIdempotent(t *testing.T, code *Code) {
	t.Helper()
	c := NewCanonicalizer(code.Graph)
	for i := 0; i < code.Graph.Len(); i++ {
		once := c.Canonicalize(ir.NodeID(i))
		assert.Equal(t, once, c.Canonicalize(once))
	}
	require.NoError(t, code.Graph.Verify())
}
