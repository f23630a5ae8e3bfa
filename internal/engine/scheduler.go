package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
)

// Scheduler serves calls to a fixed set of functions and moves each one
// between the baseline and optimized tiers.
//
// Every call starts in the baseline interpreter, which widens per-parameter
// type feedback. A tier-up request (OptimizeOnNextCall, or the call counter
// reaching TierUpThreshold) builds and canonicalizes the function once
// under that feedback. Successful code is installed and later calls run it
// behind speculation guards; a guard failure bails out to the baseline.
//
// Thread-safety model:
//   - Call, OptimizeOnNextCall, PrepareForOptimization and the accessors
//     are safe from any goroutine; records are guarded by one mutex and a
//     call holds it for its whole duration
//   - Run must be called from exactly one goroutine
//   - compilation in Run and CompileAll happens outside the mutex; code is
//     installed under it only if the request version is still current
type Scheduler struct {
	mu      sync.Mutex
	records map[string]*record
	names   []string // sorted
	reports []CompileReport

	config  Config
	interp  *Interpreter
	compile CompileFunc
	clock   SeqSource
	runIDs  RunIDGenerator
	runID   string
	logger  *slog.Logger
	sink    ReportSink
	queue   *jobQueue
}

// record is the mutable compilation record of one function.
type record struct {
	Record
	fn   *ir.Function
	code *optimizer.Code

	// failed is the feedback of the last failed compile. An implicit
	// tier-up under identical feedback would fail the same way.
	failed []ir.Type
}

// New creates a Scheduler for functions. Function names must be unique.
func New(functions []*ir.Function, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		records: make(map[string]*record, len(functions)),
		config:  DefaultConfig(),
		compile: optimizer.Analyze,
		clock:   NewClock(),
		runIDs:  UUIDv7Generator{},
		logger:  slog.Default(),
		queue:   newJobQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.interp = NewInterpreter(s.config.MaxLoopIterations)
	s.runID = s.runIDs.Generate()

	for _, fn := range functions {
		if _, dup := s.records[fn.Name]; dup {
			return nil, fmt.Errorf("duplicate function %q", fn.Name)
		}
		hash, err := ir.SourceHash(fn.CanonicalForm())
		if err != nil {
			return nil, fmt.Errorf("hash function %s: %w", fn.Name, err)
		}
		s.records[fn.Name] = &record{
			Record: Record{
				Function:   fn.Name,
				SourceHash: hash,
				Feedback:   make([]ir.Type, len(fn.Params)),
			},
			fn: fn,
		}
		s.names = append(s.names, fn.Name)
	}
	sort.Strings(s.names)
	return s, nil
}

// RunID returns the ID stamped on this scheduler's compile reports.
func (s *Scheduler) RunID() string { return s.runID }

// Functions returns the loaded function names in sorted order.
func (s *Scheduler) Functions() []string { return slices.Clone(s.names) }

func (s *Scheduler) lookup(name string) (*record, error) {
	r, ok := s.records[name]
	if !ok {
		return nil, NewUnknownFunctionError(name)
	}
	return r, nil
}

// Call runs the named function on args in its current tier.
//
// A tier-up triggered by this call compiles before (explicit request) or
// after (threshold) the call executes. A failed compile is recorded in the
// history and never fails the call.
func (s *Scheduler) Call(ctx context.Context, name string, args ...ir.Value) (ir.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(name)
	if err != nil {
		return ir.Undefined(), err
	}
	if len(args) != len(r.fn.Params) {
		return ir.Undefined(), NewArityError(name, len(args), len(r.fn.Params))
	}
	for i, a := range args {
		if a.IsUndefined() {
			return ir.Undefined(), &RuntimeError{
				Code:     ErrCodeInvalidArgument,
				Message:  fmt.Sprintf("argument %d (%s) is undefined", i, r.fn.Params[i]),
				Function: name,
			}
		}
	}
	r.Calls++

	if r.Pending {
		r.Pending = false
		s.compileNow(ctx, r, TriggerExplicit)
	}

	if r.Tier == TierOptimized {
		idx, ok := r.code.Guard(args)
		if ok {
			return s.runOptimized(ctx, r, args)
		}
		s.bailout(r, idx, args[idx])
	}

	for i, a := range args {
		r.Feedback[i] = r.Feedback[i].Union(a.Type())
	}
	v, err := s.interp.Call(ctx, r.fn, args)
	if err != nil {
		return ir.Undefined(), runtimeError(err)
	}

	if s.hot(r) {
		r.Version++
		if s.config.Background && s.enqueue(r) {
			r.Tier = TierOptimizing
		} else {
			s.compileNow(ctx, r, TriggerThreshold)
		}
	}
	return v, nil
}

// hot reports whether r should tier up implicitly.
func (s *Scheduler) hot(r *record) bool {
	if s.config.TierUpThreshold <= 0 || r.Tier != TierUnoptimized {
		return false
	}
	if r.Calls < int64(s.config.TierUpThreshold) {
		return false
	}
	return r.failed == nil || !slices.Equal(r.failed, r.Feedback)
}

func (s *Scheduler) enqueue(r *record) bool {
	ok := s.queue.Enqueue(compileJob{
		Function: r.Function,
		Version:  r.Version,
		Feedback: slices.Clone(r.Feedback),
		Trigger:  TriggerThreshold,
	})
	if !ok {
		s.logger.Warn("compile queue closed; compiling on caller",
			"function", r.Function,
			"version", r.Version,
		)
	}
	return ok
}

func (s *Scheduler) runOptimized(ctx context.Context, r *record, args []ir.Value) (ir.Value, error) {
	if straightLine(r.code) {
		return evalGraph(r.code, args)
	}
	v, err := s.interp.Call(ctx, r.fn, args)
	if err != nil {
		return ir.Undefined(), runtimeError(err)
	}
	return v, nil
}

// bailout drops the optimized code after a guard failure. The call that
// failed the guard widens the feedback on its way through the baseline.
func (s *Scheduler) bailout(r *record, idx int, arg ir.Value) {
	s.logger.Info("speculation guard failed",
		"function", r.Function,
		"version", r.Version,
		"param", r.fn.Params[idx],
		"speculated", r.code.Params[idx].String(),
		"got", arg.Type().String(),
		"event", "bailout",
	)
	r.Tier = TierUnoptimized
	r.code = nil
	r.Version++
	r.Bailouts++
	r.Calls = 0
}

// compileNow compiles r on the calling goroutine at its current version.
// Caller holds s.mu.
func (s *Scheduler) compileNow(ctx context.Context, r *record, trigger Trigger) {
	feedback := slices.Clone(r.Feedback)
	code, err := s.compile(r.fn, feedback)
	s.finish(ctx, r, r.Version, trigger, feedback, code, err)
}

// finish installs or rejects the result of a compile and records its
// report. Caller holds s.mu.
func (s *Scheduler) finish(ctx context.Context, r *record, version int64, trigger Trigger, feedback []ir.Type, code *optimizer.Code, err error) CompileReport {
	report := newReport(r.Function, version, trigger, feedback, code, err)
	if err == nil {
		r.Tier = TierOptimized
		r.code = code
		r.Pending = false
		r.failed = nil
	} else {
		// A pending explicit request still owns the Optimizing state.
		if r.Tier == TierOptimizing && !r.Pending {
			r.Tier = TierUnoptimized
		}
		r.failed = feedback
		s.logger.Warn("compile failed",
			"function", r.Function,
			"version", version,
			"trigger", string(trigger),
			"error", err,
		)
	}
	report.Tier = r.Tier
	return s.appendReport(ctx, r, report)
}

// appendReport stamps report and appends it to the history. Caller holds
// s.mu.
func (s *Scheduler) appendReport(ctx context.Context, r *record, report CompileReport) CompileReport {
	report.RunID = s.runID
	report.SourceHash = r.SourceHash
	report.Seq = s.clock.Next()
	id, err := ir.CompileReportID(report.Function, report.SourceHash, report.Feedback, report.Version, report.Seq)
	if err != nil {
		// Inputs are strings and integers; marshaling cannot fail.
		panic(err)
	}
	report.ID = id

	r.History = append(r.History, report)
	s.reports = append(s.reports, report)

	s.logger.Debug("compile report recorded",
		"id", report.ID,
		"function", report.Function,
		"version", report.Version,
		"status", string(report.Status),
		"seq", report.Seq,
	)

	if s.sink != nil {
		if err := s.sink.WriteReport(ctx, report); err != nil {
			// Log and continue: the in-memory history stays authoritative.
			s.logger.Error("write compile report",
				"id", report.ID,
				"function", report.Function,
				"error", err,
			)
		}
	}
	return report
}

// OptimizeOnNextCall requests a tier-up on the next call of name and moves
// the function to TierOptimizing; the baseline serves calls until the
// compile finishes. It is a no-op while the function is optimized or a
// request is already pending.
func (s *Scheduler) OptimizeOnNextCall(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(name)
	if err != nil {
		return err
	}
	if s.config.StrictDirectives && !r.Prepared {
		return &RuntimeError{
			Code:     ErrCodeNotPrepared,
			Message:  "OptimizeOnNextCall without PrepareForOptimization",
			Function: name,
		}
	}
	if r.Tier == TierOptimized || r.Pending {
		return nil
	}
	r.Pending = true
	r.Tier = TierOptimizing
	// A queued background compile for the old version is now superseded.
	r.Version++
	s.logger.Debug("tier-up requested",
		"function", name,
		"version", r.Version,
	)
	return nil
}

// PrepareForOptimization marks name as eligible for OptimizeOnNextCall.
func (s *Scheduler) PrepareForOptimization(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(name)
	if err != nil {
		return err
	}
	r.Prepared = true
	return nil
}

// Tier returns the current tier of name.
func (s *Scheduler) Tier(name string) (Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	return r.Tier, nil
}

// Record returns a snapshot of the compilation record of name.
func (s *Scheduler) Record(name string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(name)
	if err != nil {
		return Record{}, err
	}
	snap := cloneRecord(r.Record)
	snap.Code = r.code
	return snap, nil
}

// Reports returns every compile report in seq order.
func (s *Scheduler) Reports() []CompileReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reports)
}

// Run processes queued background compiles until ctx is cancelled or Stop
// is called. Must be called from exactly one goroutine.
//
// A job whose request version is no longer current when it starts or
// finishes is recorded as superseded and its code discarded.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("compile loop starting", "run_id", s.runID)

	for {
		if job, ok := s.queue.TryDequeue(); ok {
			s.process(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("compile loop stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()

		case _, open := <-s.queue.Wait():
			if !open && s.queue.Len() == 0 {
				s.logger.Info("compile loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the compile queue. Run returns once queued jobs drain.
func (s *Scheduler) Stop() {
	s.queue.Close()
}

func (s *Scheduler) process(ctx context.Context, job compileJob) {
	s.mu.Lock()
	r := s.records[job.Function]
	if r.Version != job.Version {
		s.supersede(ctx, r, job, NewSupersededError(job.Function, job.Version, r.Version))
		s.mu.Unlock()
		return
	}
	fn := r.fn
	s.mu.Unlock()

	code, err := s.compile(fn, job.Feedback)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case ctx.Err() != nil:
		s.supersede(ctx, r, job, fmt.Errorf("compile abandoned: %w", ctx.Err()))
	case r.Version != job.Version:
		s.supersede(ctx, r, job, NewSupersededError(job.Function, job.Version, r.Version))
	default:
		s.finish(ctx, r, job.Version, job.Trigger, job.Feedback, code, err)
	}
}

// supersede records an abandoned background compile. The serving tier is
// left alone; an Optimizing marker with no compile behind it is cleared so
// the function can tier up again. Caller holds s.mu.
func (s *Scheduler) supersede(ctx context.Context, r *record, job compileJob, cause error) {
	if r.Tier == TierOptimizing && !r.Pending && r.Version == job.Version {
		r.Tier = TierUnoptimized
	}
	s.logger.Info("compile superseded",
		"function", job.Function,
		"version", job.Version,
		"current", r.Version,
	)
	report := newReport(job.Function, job.Version, job.Trigger, job.Feedback, nil, nil)
	report.Status = StatusSuperseded
	report.Error = cause.Error()
	report.Tier = r.Tier
	s.appendReport(context.WithoutCancel(ctx), r, report)
}

// CompileAll compiles every function that is not already optimized, in
// parallel, each in its own graph. Results are installed in name order.
// It returns the reports of this pass; compile failures are reports, not
// errors.
func (s *Scheduler) CompileAll(ctx context.Context) ([]CompileReport, error) {
	type result struct {
		r        *record
		version  int64
		feedback []ir.Type
		code     *optimizer.Code
		err      error
	}

	s.mu.Lock()
	var results []*result
	for _, name := range s.names {
		r := s.records[name]
		if r.Tier == TierOptimized {
			continue
		}
		r.Version++
		results = append(results, &result{r: r, version: r.Version, feedback: slices.Clone(r.Feedback)})
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if s.config.CompileConcurrency > 0 {
		g.SetLimit(s.config.CompileConcurrency)
	}
	for _, res := range results {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res.code, res.err = s.compile(res.r.fn, res.feedback)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compile all: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	reports := make([]CompileReport, 0, len(results))
	for _, res := range results {
		if res.r.Version != res.version {
			job := compileJob{Function: res.r.Function, Version: res.version, Feedback: res.feedback, Trigger: TriggerCompileAll}
			s.supersede(ctx, res.r, job, NewSupersededError(res.r.Function, res.version, res.r.Version))
			reports = append(reports, res.r.History[len(res.r.History)-1])
			continue
		}
		reports = append(reports, s.finish(ctx, res.r, res.version, TriggerCompileAll, res.feedback, res.code, res.err))
	}
	return reports, nil
}

// runtimeError converts interpreter failures to their RuntimeError form.
func runtimeError(err error) error {
	var le *LoopLimitError
	if errors.As(err, &le) {
		return le.RuntimeError()
	}
	return err
}
