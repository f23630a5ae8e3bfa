package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/tierfold/internal/compiler"
	"github.com/roach88/tierfold/internal/engine"
	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/store"
	"github.com/roach88/tierfold/internal/testutil"
)

// Options adjusts how a scenario runs. The zero value runs it in isolation.
type Options struct {
	// Functions replaces the scenario's sources when non-nil.
	Functions []*ir.Function

	// Store receives every compile report. Nil uses a fresh in-memory
	// store that is closed when the run ends.
	Store *store.Store

	// Clock numbers the reports. Nil uses a fresh DeterministicClock, so
	// the first report of every run has seq 1.
	Clock engine.SeqSource

	// Logger receives scheduler logs. Nil discards them.
	Logger *slog.Logger

	// RunIDs names the run. Nil uses the scenario's run_id.
	RunIDs engine.RunIDGenerator
}

// Harness executes one scenario against a real scheduler.
type Harness struct {
	sched  *engine.Scheduler
	store  *store.Store
	logger *slog.Logger
	seen   int // reports already copied to the trace
}

// Run executes a scenario in isolation and returns the result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock and a fixed run ID, so two runs produce identical traces.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(context.Background(), scenario, Options{})
}

// RunWithOptions executes a scenario and returns the result.
//
// Execution flow:
// 1. Load the functions (Options.Functions or the scenario sources)
// 2. Build a scheduler that writes its reports to the store
// 3. Execute the flow steps with expect validation
// 4. Read the reports back from the store and evaluate assertions
//
// An error is returned only when the scenario cannot run at all; expect
// and assertion mismatches are recorded in Result.Errors.
func RunWithOptions(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	functions := opts.Functions
	if functions == nil {
		if len(scenario.Sources) == 0 {
			return nil, fmt.Errorf("scenario %s: no sources and no functions supplied", scenario.Name)
		}
		var err error
		functions, err = LoadSources(scenario.Sources)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}

	st := opts.Store
	if st == nil {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	clock := opts.Clock
	if clock == nil {
		clock = testutil.NewDeterministicClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var runIDs engine.RunIDGenerator = testutil.NewFixedRunIDGenerator(scenario.RunID)
	if opts.RunIDs != nil {
		runIDs = opts.RunIDs
	}

	engineOpts := []engine.Option{
		engine.WithTierUpThreshold(0),
		engine.WithStrictDirectives(scenario.Config.StrictDirectives),
		engine.WithLogger(logger),
		engine.WithClock(clock),
		engine.WithRunIDGenerator(runIDs),
		engine.WithReportSink(st),
	}
	if t := scenario.Config.TierUpThreshold; t != nil {
		engineOpts = append(engineOpts, engine.WithTierUpThreshold(*t))
	}
	if n := scenario.Config.MaxLoopIterations; n != nil {
		engineOpts = append(engineOpts, engine.WithMaxLoopIterations(*n))
	}
	sched, err := engine.New(functions, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	h := &Harness{sched: sched, store: st, logger: logger}
	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeFlow runs the flow steps in order. Every compile report a step
// produces is traced right after the step.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		ev := TraceEvent{Type: step.Kind(), Step: i, Function: step.Function()}

		var (
			value ir.Value
			err   error
		)
		switch ev.Type {
		case StepCall:
			args, perr := parseArgs(step.Args)
			if perr != nil {
				return fmt.Errorf("flow step %d: %w", i, perr)
			}
			ev.Args = step.Args
			value, err = h.sched.Call(ctx, step.Call, args...)
			if err == nil {
				ev.Result = value.String()
			}
		case StepOptimize:
			err = h.sched.OptimizeOnNextCall(step.Optimize)
		case StepPrepare:
			err = h.sched.PrepareForOptimization(step.Prepare)
		case StepCompileAll:
			_, err = h.sched.CompileAll(ctx)
		}
		if err != nil {
			ev.Error = errorCode(err)
		}
		if ev.Function != "" {
			if tier, terr := h.sched.Tier(ev.Function); terr == nil {
				ev.Tier = tier.String()
			}
		}
		result.AddStepTrace(ev)
		h.traceReports(i, result)

		for _, msg := range checkExpect(i, step, ev, value, err) {
			result.AddError(msg)
		}

		h.logger.Info("flow step completed",
			"step", i,
			"type", ev.Type,
			"function", ev.Function,
			"result", ev.Result,
			"error", ev.Error,
		)
	}
	return nil
}

func (h *Harness) traceReports(step int, result *Result) {
	reports := h.sched.Reports()
	for _, r := range reports[h.seen:] {
		result.AddReportTrace(step, r)
	}
	h.seen = len(reports)
}

// collect reads the run's reports back from the store and snapshots the
// final tiers.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	for _, r := range h.sched.Reports() {
		stored, err := h.store.ReadReport(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("read back report: %w", err)
		}
		result.Reports = append(result.Reports, stored)
	}
	for _, name := range h.sched.Functions() {
		tier, err := h.sched.Tier(name)
		if err != nil {
			return err
		}
		result.Tiers[name] = tier.String()
	}
	return nil
}

// checkExpect compares a step's outcome with its expect clause. A step
// without one must not fail.
func checkExpect(i int, step FlowStep, ev TraceEvent, value ir.Value, err error) []string {
	var errs []string
	e := step.Expect
	if e == nil || e.Error == "" {
		if err != nil {
			errs = append(errs, fmt.Sprintf("flow[%d] %s %s: unexpected error: %v", i, ev.Type, ev.Function, err))
		}
	} else if ev.Error != e.Error {
		got := ev.Error
		if got == "" {
			got = "no error"
		}
		errs = append(errs, fmt.Sprintf("flow[%d] %s %s: expected error %s, got %s", i, ev.Type, ev.Function, e.Error, got))
	}
	if e == nil {
		return errs
	}

	if e.Result != "" && err == nil {
		want, perr := ir.ParseValue(e.Result)
		switch {
		case perr != nil:
			errs = append(errs, fmt.Sprintf("flow[%d].expect.result: %v", i, perr))
		case !value.SameValue(want):
			errs = append(errs, fmt.Sprintf("flow[%d] call %s: expected result %s, got %s", i, ev.Function, want, value))
		}
	}
	if e.Tier != "" && ev.Tier != e.Tier {
		errs = append(errs, fmt.Sprintf("flow[%d] %s %s: expected tier %s, got %s", i, ev.Type, ev.Function, e.Tier, ev.Tier))
	}
	return errs
}

func parseArgs(literals []string) ([]ir.Value, error) {
	args := make([]ir.Value, len(literals))
	for i, lit := range literals {
		v, err := ir.ParseValue(lit)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

// errorCode reduces a step error to its RuntimeError code.
func errorCode(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return err.Error()
}

// LoadSources compiles the functions of every CUE file or directory in
// paths.
func LoadSources(paths []string) ([]*ir.Function, error) {
	var (
		functions []*ir.Function
		errs      []error
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", path, err)
		}

		var (
			prog     *compiler.Program
			loadErrs []error
		)
		if info.IsDir() {
			prog, loadErrs = compiler.LoadDir(path)
		} else {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", path, err)
			}
			prog, loadErrs = compiler.CompileSource(path, string(data))
		}
		errs = append(errs, loadErrs...)
		if prog != nil {
			functions = append(functions, prog.Functions...)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile sources: %w", errors.Join(errs...))
	}
	return functions, nil
}
