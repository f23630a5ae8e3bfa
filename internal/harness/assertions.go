package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/tierfold/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
		}
	}
	return buf.String()
}

func formatEvent(ev TraceEvent) string {
	switch ev.Type {
	case EventReport:
		return fmt.Sprintf("[%d]   report #%d %s v%d %s (%s) -> %s", ev.Step, ev.Seq, ev.Function, ev.Version, ev.Status, ev.Trigger, ev.Tier)
	case StepCall:
		out := ev.Result
		if ev.Error != "" {
			out = ev.Error
		}
		return fmt.Sprintf("[%d] call %s(%s) = %s [%s]", ev.Step, ev.Function, strings.Join(ev.Args, ", "), out, ev.Tier)
	case StepCompileAll:
		return fmt.Sprintf("[%d] compile_all", ev.Step)
	}
	if ev.Error != "" {
		return fmt.Sprintf("[%d] %s %s: %s", ev.Step, ev.Type, ev.Function, ev.Error)
	}
	return fmt.Sprintf("[%d] %s %s", ev.Step, ev.Type, ev.Function)
}

func (a Assertion) count() int {
	if a.Count == nil {
		return 0
	}
	return *a.Count
}

// assertReportCount checks the number of reports matching the optional
// function and status filters.
func assertReportCount(result *Result, a Assertion) error {
	count := 0
	for _, r := range result.Reports {
		if a.Function != "" && r.Function != a.Function {
			continue
		}
		if a.Status != "" && string(r.Status) != a.Status {
			continue
		}
		count++
	}
	if count != a.count() {
		return &AssertionError{
			Type:     AssertReportCount,
			Expected: fmt.Sprintf("%d reports%s", a.count(), describeFilter(a)),
			Actual:   fmt.Sprintf("%d reports", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Function != "" {
		parts = append(parts, "function="+a.Function)
	}
	if a.Status != "" {
		parts = append(parts, "status="+a.Status)
	}
	if len(parts) == 0 {
		return ""
	}
	return " where " + strings.Join(parts, " AND ")
}

// latestReport returns the last report of fn.
func latestReport(result *Result, fn string) (engine.CompileReport, bool) {
	for i := len(result.Reports) - 1; i >= 0; i-- {
		if result.Reports[i].Function == fn {
			return result.Reports[i], true
		}
	}
	return engine.CompileReport{}, false
}

// assertReportStatus checks the status of the function's latest report.
func assertReportStatus(result *Result, a Assertion) error {
	r, ok := latestReport(result, a.Function)
	if !ok {
		return &AssertionError{
			Type:     AssertReportStatus,
			Expected: fmt.Sprintf("a %s report for %s", a.Status, a.Function),
			Actual:   "no reports",
			Trace:    result.Trace,
		}
	}
	if string(r.Status) != a.Status {
		actual := string(r.Status)
		if r.Error != "" {
			actual += ": " + r.Error
		}
		return &AssertionError{
			Type:     AssertReportStatus,
			Expected: fmt.Sprintf("latest report of %s is %s", a.Function, a.Status),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertAssertionState checks the static assertions of the function's
// latest report. With Text set only the matching assertion is checked.
func assertAssertionState(result *Result, a Assertion) error {
	r, ok := latestReport(result, a.Function)
	if !ok {
		return &AssertionError{
			Type:     AssertAssertionState,
			Expected: fmt.Sprintf("static assertions of %s %s", a.Function, a.State),
			Actual:   "no reports",
			Trace:    result.Trace,
		}
	}

	matched := 0
	for _, outcome := range r.Assertions {
		if a.Text != "" && outcome.Text != a.Text {
			continue
		}
		matched++
		if outcome.State != a.State {
			return &AssertionError{
				Type:     AssertAssertionState,
				Expected: fmt.Sprintf("%q in %s is %s", outcome.Text, a.Function, a.State),
				Actual:   outcome.State,
				Trace:    result.Trace,
			}
		}
	}
	if matched == 0 {
		want := "any static assertion"
		if a.Text != "" {
			want = fmt.Sprintf("static assertion %q", a.Text)
		}
		return &AssertionError{
			Type:     AssertAssertionState,
			Expected: fmt.Sprintf("%s in the latest report of %s", want, a.Function),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalTier checks the tier a function ended in.
func assertFinalTier(result *Result, a Assertion) error {
	tier, ok := result.Tiers[a.Function]
	if !ok {
		return fmt.Errorf("final_tier: unknown function %q", a.Function)
	}
	if tier != a.Tier {
		return &AssertionError{
			Type:     AssertFinalTier,
			Expected: fmt.Sprintf("%s ends %s", a.Function, a.Tier),
			Actual:   tier,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCallCount checks how many call steps targeted the function.
func assertCallCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		if ev.Type == StepCall && ev.Function == a.Function {
			count++
		}
	}
	if count != a.count() {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d calls of %s", a.count(), a.Function),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertReportCount:
			err = assertReportCount(result, assertion)
		case AssertReportStatus:
			err = assertReportStatus(result, assertion)
		case AssertAssertionState:
			err = assertAssertionState(result, assertion)
		case AssertFinalTier:
			err = assertFinalTier(result, assertion)
		case AssertCallCount:
			err = assertCallCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
