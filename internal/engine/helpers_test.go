package engine

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tierfold/internal/compiler"
	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
)

const testProgram = `
function: foo: {
	params: ["x"]
	body: [{assert: "1 * x == x + 0"}]
}

function: bad: {
	params: ["x"]
	body: [
		{assert: "x + 1 == x"},
		{return: "x"},
	]
}

function: inc: {
	params: ["x"]
	body: [{return: "x + 1"}]
}

function: ident: {
	params: ["x"]
	body: [
		{assert: "x + 0 == x"},
		{return: "x + 0"},
	]
}

function: abs: {
	params: ["x"]
	body: [
		{"let": "y", value: "x"},
		{"if": "x < 0", then: [{"let": "y", value: "-x"}]},
		{return: "y"},
	]
}

function: sum: {
	params: ["n"]
	body: [
		{"let": "i", value: "0"},
		{"let": "s", value: "0"},
		{while: "i < n", do: [
			{"let": "s", value: "s + i"},
			{"let": "i", value: "i + 1"},
		]},
		{return: "s"},
	]
}

function: shadow: {
	params: ["x"]
	body: [
		{"if": "x > 0", then: [{"let": "t", value: "1"}]},
		{"let": "t", value: "2"},
		{return: "t"},
	]
}

function: spin: {
	body: [{while: "true"}]
}
`

func loadFunctions(t *testing.T) []*ir.Function {
	t.Helper()
	prog, errs := compiler.CompileSource("engine_test.cue", testProgram)
	require.Empty(t, errs)
	return prog.Functions
}

func loadFunction(t *testing.T, name string) *ir.Function {
	t.Helper()
	for _, fn := range loadFunctions(t) {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %s not in test program", name)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingCompiler wraps optimizer.Analyze and counts graph builds.
type countingCompiler struct {
	n atomic.Int64
}

func (c *countingCompiler) Compile(fn *ir.Function, params []ir.Type) (*optimizer.Code, error) {
	c.n.Add(1)
	return optimizer.Analyze(fn, params)
}

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	base := []Option{
		WithLogger(quietLogger()),
		WithRunIDGenerator(NewFixedGenerator("run-1")),
		WithTierUpThreshold(0),
	}
	s, err := New(loadFunctions(t), append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func num(f float64) ir.Value { return ir.Number(f) }
