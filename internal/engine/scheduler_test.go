package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
)

func TestScheduler_RegressionLifecycle(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	for _, x := range []float64{121, 122} {
		v, err := s.Call(ctx, "foo", num(x))
		require.NoError(t, err)
		assert.True(t, v.IsUndefined())
	}
	tier, err := s.Tier("foo")
	require.NoError(t, err)
	assert.Equal(t, TierUnoptimized, tier)
	assert.Empty(t, s.Reports(), "baseline calls never compile")

	require.NoError(t, s.OptimizeOnNextCall("foo"))
	v, err := s.Call(ctx, "foo", num(123))
	require.NoError(t, err)
	assert.True(t, v.IsUndefined())

	rec, err := s.Record("foo")
	require.NoError(t, err)
	assert.Equal(t, TierOptimized, rec.Tier)
	assert.Equal(t, int64(3), rec.Calls)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, []ir.Type{ir.TypeSigned32}, rec.Feedback)
	assert.False(t, rec.Pending)
	require.NotNil(t, rec.Code)

	reports := s.Reports()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Equal(t, TriggerExplicit, r.Trigger)
	assert.Equal(t, TierOptimized, r.Tier)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, []string{"Signed32"}, r.Feedback)
	assert.Empty(t, r.Diagnostics)
	require.Len(t, r.Assertions, 1)
	assert.Equal(t, "proven", r.Assertions[0].State)
	assert.Equal(t, "1 * x == x + 0", r.Assertions[0].Text)
	assert.Equal(t, ir.MustCompileReportID("foo", rec.SourceHash, r.Feedback, 1, 1), r.ID)
	assert.Equal(t, rec.History, reports)
}

func TestScheduler_ExplicitTierUpStates(t *testing.T) {
	tests := []struct {
		name  string
		fn    string
		final Tier
	}{
		{"provable", "foo", TierOptimized},
		{"unprovable", "bad", TierUnoptimized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(t)
			ctx := context.Background()

			_, err := s.Call(ctx, tt.fn, num(121))
			require.NoError(t, err)
			require.NoError(t, s.OptimizeOnNextCall(tt.fn))

			tier, err := s.Tier(tt.fn)
			require.NoError(t, err)
			assert.Equal(t, TierOptimizing, tier)
			assert.Empty(t, s.Reports(), "the directive alone does not compile")

			_, err = s.Call(ctx, tt.fn, num(123))
			require.NoError(t, err)
			tier, _ = s.Tier(tt.fn)
			assert.Equal(t, tt.final, tier)

			rec, _ := s.Record(tt.fn)
			assert.False(t, rec.Pending)
			require.Len(t, s.Reports(), 1)
			assert.Equal(t, tt.final, s.Reports()[0].Tier)
		})
	}
}

func TestScheduler_CompileAllFailureKeepsPendingRequest(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.Call(ctx, "bad", num(1))
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOnNextCall("bad"))

	_, err = s.CompileAll(ctx)
	require.NoError(t, err)

	rec, _ := s.Record("bad")
	assert.True(t, rec.Pending)
	assert.Equal(t, TierOptimizing, rec.Tier, "the explicit request is still outstanding")

	_, err = s.Call(ctx, "bad", num(2))
	require.NoError(t, err)
	tier, _ := s.Tier("bad")
	assert.Equal(t, TierUnoptimized, tier)
}

func TestScheduler_SingleCompilePerRequest(t *testing.T) {
	cc := &countingCompiler{}
	s := newTestScheduler(t, WithCompiler(cc.Compile))
	ctx := context.Background()

	_, err := s.Call(ctx, "foo", num(1))
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOnNextCall("foo"))
	require.NoError(t, s.OptimizeOnNextCall("foo"), "a pending request absorbs repeats")

	for i := 0; i < 5; i++ {
		_, err := s.Call(ctx, "foo", num(float64(i)))
		require.NoError(t, err)
	}
	require.NoError(t, s.OptimizeOnNextCall("foo"), "no-op while optimized")
	_, err = s.Call(ctx, "foo", num(9))
	require.NoError(t, err)

	assert.Equal(t, int64(1), cc.n.Load())
	assert.Len(t, s.Reports(), 1)
}

func TestScheduler_FailedCompileServesBaseline(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.Call(ctx, "bad", num(1))
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOnNextCall("bad"))

	v, err := s.Call(ctx, "bad", num(4))
	require.NoError(t, err, "an unprovable assertion is not a runtime failure")
	assert.Equal(t, 4.0, v.Float())

	tier, _ := s.Tier("bad")
	assert.Equal(t, TierUnoptimized, tier)

	reports := s.Reports()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, StatusFailed, r.Status)
	assert.True(t, r.Failed())
	assert.Equal(t, TierUnoptimized, r.Tier)
	assert.Contains(t, r.Error, "unprovable static assertion")
	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, "x + 1 == x", r.Diagnostics[0].Text)
	assert.Equal(t, 10, r.Diagnostics[0].Pos.Line)
	require.Len(t, r.Assertions, 1)
	assert.Equal(t, "failed", r.Assertions[0].State)
}

func TestScheduler_MinusZeroFeedbackBlocksIdentity(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.Call(ctx, "foo", num(math.Copysign(0, -1)))
	require.NoError(t, err)
	_, err = s.Call(ctx, "foo", num(5))
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOnNextCall("foo"))
	_, err = s.Call(ctx, "foo", num(6))
	require.NoError(t, err)

	reports := s.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, StatusFailed, reports[0].Status)
	assert.Equal(t, []string{"Signed32|MinusZero"}, reports[0].Feedback)
}

func TestScheduler_BailoutWidensFeedback(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.Call(ctx, "inc", num(1))
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOnNextCall("inc"))

	v, err := s.Call(ctx, "inc", num(2))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Float())

	v, err = s.Call(ctx, "inc", num(0.5))
	require.NoError(t, err)
	assert.Equal(t, 1.5, v.Float())

	rec, err := s.Record("inc")
	require.NoError(t, err)
	assert.Equal(t, TierUnoptimized, rec.Tier)
	assert.Nil(t, rec.Code)
	assert.Equal(t, 1, rec.Bailouts)
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, []ir.Type{ir.TypeSigned32 | ir.TypeOtherNumber}, rec.Feedback)

	require.NoError(t, s.OptimizeOnNextCall("inc"))
	v, err = s.Call(ctx, "inc", num(0.25))
	require.NoError(t, err)
	assert.Equal(t, 1.25, v.Float())

	rec, _ = s.Record("inc")
	assert.Equal(t, TierOptimized, rec.Tier)
	require.Len(t, rec.History, 2)
	assert.Equal(t, []string{"Signed32|OtherNumber"}, rec.History[1].Feedback)
	assert.Equal(t, int64(3), rec.History[1].Version)
}

func TestScheduler_OptimizedMatchesBaseline(t *testing.T) {
	baseline := newTestScheduler(t)
	optimized := newTestScheduler(t)
	ctx := context.Background()

	cases := map[string][]float64{
		"inc":   {1, -7, 2147483647},
		"ident": {3, -3, 0},
		"abs":   {-4, 4, 0},
		"sum":   {4, 10, 0},
	}
	for name, inputs := range cases {
		_, err := optimized.Call(ctx, name, num(1))
		require.NoError(t, err)
		require.NoError(t, optimized.OptimizeOnNextCall(name))

		for _, x := range inputs {
			want, err := baseline.Call(ctx, name, num(x))
			require.NoError(t, err)
			got, err := optimized.Call(ctx, name, num(x))
			require.NoError(t, err)
			assert.True(t, want.SameValue(got), "%s(%v): want %s, got %s", name, x, want, got)
		}
		tier, _ := optimized.Tier(name)
		assert.Equal(t, TierOptimized, tier, name)
	}
}

func TestScheduler_ThresholdTierUp(t *testing.T) {
	s := newTestScheduler(t, WithTierUpThreshold(3))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		tier, _ := s.Tier("inc")
		assert.Equal(t, TierUnoptimized, tier, "call %d", i)
		_, err := s.Call(ctx, "inc", num(float64(i)))
		require.NoError(t, err)
	}

	tier, _ := s.Tier("inc")
	assert.Equal(t, TierOptimized, tier)
	reports := s.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, TriggerThreshold, reports[0].Trigger)
}

func TestScheduler_ThresholdDoesNotRetryUnchangedFeedback(t *testing.T) {
	s := newTestScheduler(t, WithTierUpThreshold(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Call(ctx, "bad", num(float64(i)))
		require.NoError(t, err)
	}
	require.Len(t, s.Reports(), 1)

	_, err := s.Call(ctx, "bad", num(0.5))
	require.NoError(t, err)
	reports := s.Reports()
	require.Len(t, reports, 2, "new feedback earns another attempt")
	assert.Equal(t, []string{"Signed32|OtherNumber"}, reports[1].Feedback)
}

func TestScheduler_BackgroundCompile(t *testing.T) {
	s := newTestScheduler(t, WithTierUpThreshold(1), WithBackgroundCompilation(true))
	ctx := context.Background()

	v, err := s.Call(ctx, "inc", num(1))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Float())

	tier, _ := s.Tier("inc")
	assert.Equal(t, TierOptimizing, tier)

	v, err = s.Call(ctx, "inc", num(2))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Float(), "optimizing functions are served by the baseline")
	assert.Empty(t, s.Reports())

	s.Stop()
	require.NoError(t, s.Run(ctx))

	tier, _ = s.Tier("inc")
	assert.Equal(t, TierOptimized, tier)
	reports := s.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, StatusSuccess, reports[0].Status)
	assert.Equal(t, TriggerThreshold, reports[0].Trigger)
}

func TestScheduler_BackgroundCompileSuperseded(t *testing.T) {
	s := newTestScheduler(t, WithTierUpThreshold(1), WithBackgroundCompilation(true))
	ctx := context.Background()

	_, err := s.Call(ctx, "inc", num(1))
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOnNextCall("inc"))
	_, err = s.Call(ctx, "inc", num(2))
	require.NoError(t, err)

	tier, _ := s.Tier("inc")
	require.Equal(t, TierOptimized, tier)

	s.Stop()
	require.NoError(t, s.Run(ctx))

	reports := s.Reports()
	require.Len(t, reports, 2)
	assert.Equal(t, StatusSuccess, reports[0].Status)
	assert.Equal(t, int64(2), reports[0].Version)

	assert.Equal(t, StatusSuperseded, reports[1].Status)
	assert.Equal(t, int64(1), reports[1].Version)
	assert.Equal(t, TierOptimized, reports[1].Tier)
	assert.Contains(t, reports[1].Error, "superseded by version 2")

	rec, _ := s.Record("inc")
	assert.Equal(t, TierOptimized, rec.Tier, "a superseded job leaves the serving tier alone")
	assert.NotNil(t, rec.Code)
}

func TestScheduler_BackgroundCompileAbandonedOnCancel(t *testing.T) {
	s := newTestScheduler(t, WithTierUpThreshold(1), WithBackgroundCompilation(true))

	_, err := s.Call(context.Background(), "inc", num(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	reports := s.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, StatusSuperseded, reports[0].Status)
	assert.Contains(t, reports[0].Error, "compile abandoned")

	tier, _ := s.Tier("inc")
	assert.Equal(t, TierUnoptimized, tier)
}

func TestScheduler_ClosedQueueCompilesOnCaller(t *testing.T) {
	s := newTestScheduler(t, WithTierUpThreshold(1), WithBackgroundCompilation(true))
	s.Stop()

	_, err := s.Call(context.Background(), "inc", num(1))
	require.NoError(t, err)

	tier, _ := s.Tier("inc")
	assert.Equal(t, TierOptimized, tier)
}

func TestScheduler_Errors(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	t.Run("unknown function", func(t *testing.T) {
		_, err := s.Call(ctx, "nope", num(1))
		assert.True(t, IsUnknownFunction(err))
		assert.True(t, IsUnknownFunction(s.OptimizeOnNextCall("nope")))
		_, err = s.Record("nope")
		assert.True(t, IsUnknownFunction(err))
	})

	t.Run("arity mismatch", func(t *testing.T) {
		_, err := s.Call(ctx, "inc", num(1), num(2))
		var re *RuntimeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, ErrCodeArityMismatch, re.Code)
		assert.Equal(t, "inc", re.Function)
	})

	t.Run("undefined argument", func(t *testing.T) {
		_, err := s.Call(ctx, "inc", ir.Undefined())
		var re *RuntimeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, ErrCodeInvalidArgument, re.Code)
	})

	t.Run("rejected calls do not count", func(t *testing.T) {
		rec, err := s.Record("inc")
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.Calls)
	})
}

func TestScheduler_LoopLimit(t *testing.T) {
	s := newTestScheduler(t, WithMaxLoopIterations(10))

	_, err := s.Call(context.Background(), "spin")
	require.Error(t, err)
	assert.True(t, IsLoopLimit(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeLoopLimit, re.Code)
	assert.Equal(t, "10", re.Details["limit"])
}

func TestScheduler_StrictDirectives(t *testing.T) {
	s := newTestScheduler(t, WithStrictDirectives(true))

	err := s.OptimizeOnNextCall("foo")
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeNotPrepared, re.Code)

	require.NoError(t, s.PrepareForOptimization("foo"))
	require.NoError(t, s.OptimizeOnNextCall("foo"))

	rec, _ := s.Record("foo")
	assert.True(t, rec.Prepared)
	assert.True(t, rec.Pending)
}

func TestScheduler_CompileAll(t *testing.T) {
	s := newTestScheduler(t, WithCompileConcurrency(2))
	ctx := context.Background()

	for _, name := range []string{"foo", "inc", "bad", "abs", "ident", "shadow"} {
		_, err := s.Call(ctx, name, num(1))
		require.NoError(t, err)
	}
	_, err := s.Call(ctx, "sum", num(3))
	require.NoError(t, err)

	reports, err := s.CompileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 8)

	var names []string
	for i, r := range reports {
		names = append(names, r.Function)
		assert.Equal(t, int64(i+1), r.Seq, "reports are stamped in name order")
		assert.Equal(t, TriggerCompileAll, r.Trigger)
	}
	assert.Equal(t, []string{"abs", "bad", "foo", "ident", "inc", "shadow", "spin", "sum"}, names)
	assert.Equal(t, StatusFailed, reports[1].Status)
	assert.Equal(t, StatusSuccess, reports[2].Status)

	again, err := s.CompileAll(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1, "only the failed function is retried")
	assert.Equal(t, "bad", again[0].Function)
}

func TestScheduler_CompileAllCancelled(t *testing.T) {
	s := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CompileAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type memorySink struct {
	mu      sync.Mutex
	reports []CompileReport
	err     error
}

func (m *memorySink) WriteReport(_ context.Context, r CompileReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return m.err
}

func TestScheduler_ReportSink(t *testing.T) {
	sink := &memorySink{}
	s := newTestScheduler(t, WithReportSink(sink), WithClock(NewClockAt(40)))
	ctx := context.Background()

	_, err := s.Call(ctx, "foo", num(1))
	require.NoError(t, err)
	require.NoError(t, s.OptimizeOnNextCall("foo"))
	_, err = s.Call(ctx, "foo", num(2))
	require.NoError(t, err)

	require.Len(t, sink.reports, 1)
	assert.Equal(t, int64(41), sink.reports[0].Seq)
	assert.Equal(t, s.Reports(), sink.reports)
}

func TestScheduler_ReportSinkFailureDoesNotFailCalls(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	s := newTestScheduler(t, WithReportSink(sink))

	require.NoError(t, s.OptimizeOnNextCall("inc"))
	v, err := s.Call(context.Background(), "inc", num(1))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Float())
	assert.Len(t, s.Reports(), 1)
}

func TestScheduler_InvariantViolationPanics(t *testing.T) {
	broken := func(*ir.Function, []ir.Type) (*optimizer.Code, error) {
		panic(&ir.InvariantViolation{First: 0, Second: 1, Reason: "duplicate node"})
	}
	s := newTestScheduler(t, WithCompiler(broken))
	require.NoError(t, s.OptimizeOnNextCall("foo"))

	assert.Panics(t, func() {
		_, _ = s.Call(context.Background(), "foo", num(1))
	})
}

func TestNew_DuplicateFunction(t *testing.T) {
	fn := loadFunction(t, "foo")
	_, err := New([]*ir.Function{fn, fn}, WithLogger(quietLogger()), WithRunIDGenerator(NewFixedGenerator("r")))
	assert.ErrorContains(t, err, `duplicate function "foo"`)
}
