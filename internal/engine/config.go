package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
)

// DefaultTierUpThreshold is the call count at which a function is compiled
// without an explicit request.
const DefaultTierUpThreshold = 100

// DefaultCompileConcurrency bounds the goroutines CompileAll runs at once.
const DefaultCompileConcurrency = 4

// Config holds the tunables of a Scheduler.
type Config struct {
	// TierUpThreshold is the call count that triggers an implicit tier-up.
	// Zero disables implicit tier-up; only OptimizeOnNextCall compiles.
	TierUpThreshold int

	// MaxLoopIterations bounds the loop iterations of one call.
	MaxLoopIterations int

	// Background queues threshold-triggered compiles for Run instead of
	// compiling on the calling goroutine.
	Background bool

	// CompileConcurrency bounds CompileAll.
	CompileConcurrency int

	// StrictDirectives rejects OptimizeOnNextCall for functions that were
	// not passed to PrepareForOptimization first.
	StrictDirectives bool
}

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return Config{
		TierUpThreshold:    DefaultTierUpThreshold,
		MaxLoopIterations:  DefaultMaxLoopIterations,
		CompileConcurrency: DefaultCompileConcurrency,
	}
}

// SeqSource stamps compile reports with increasing sequence numbers.
// Implemented by Clock.
type SeqSource interface {
	Next() int64
}

// ReportSink receives every compile report as it is recorded.
// Implemented by store.Store.
type ReportSink interface {
	WriteReport(ctx context.Context, r CompileReport) error
}

// CompileFunc builds optimized code for a function under the given
// parameter feedback. On failure it may return code for diagnostics.
type CompileFunc func(fn *ir.Function, params []ir.Type) (*optimizer.Code, error)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(s *Scheduler) {
		s.config = c
	}
}

// WithTierUpThreshold sets the implicit tier-up call count.
//
// Default: 100 calls (DefaultTierUpThreshold). Zero disables.
func WithTierUpThreshold(calls int) Option {
	return func(s *Scheduler) {
		s.config.TierUpThreshold = calls
	}
}

// WithMaxLoopIterations sets the per-call loop iteration budget.
//
// Default: 1,000,000 (DefaultMaxLoopIterations).
// Use WithMaxLoopIterations(10) for testing the limit.
func WithMaxLoopIterations(n int) Option {
	return func(s *Scheduler) {
		s.config.MaxLoopIterations = n
	}
}

// WithBackgroundCompilation queues threshold-triggered compiles for Run.
func WithBackgroundCompilation(enabled bool) Option {
	return func(s *Scheduler) {
		s.config.Background = enabled
	}
}

// WithCompileConcurrency bounds the goroutines used by CompileAll.
func WithCompileConcurrency(n int) Option {
	return func(s *Scheduler) {
		s.config.CompileConcurrency = n
	}
}

// WithStrictDirectives requires PrepareForOptimization before
// OptimizeOnNextCall.
func WithStrictDirectives(strict bool) Option {
	return func(s *Scheduler) {
		s.config.StrictDirectives = strict
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithClock sets the sequence source for compile reports.
// Used to continue numbering after reports already in a store.
func WithClock(c SeqSource) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithRunIDGenerator sets the generator for the scheduler's run ID.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *Scheduler) {
		s.runIDs = g
	}
}

// WithReportSink forwards every compile report to sink. Sink failures are
// logged; they never fail a call.
func WithReportSink(sink ReportSink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// WithCompiler replaces the optimizing compiler. Default: optimizer.Analyze.
func WithCompiler(compile CompileFunc) Option {
	return func(s *Scheduler) {
		s.compile = compile
	}
}
