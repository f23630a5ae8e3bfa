package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tierfold/internal/ir"
)

// TraceSnapshot captures the trace of one scenario execution.
// Serialized as canonical JSON so equal traces are byte-identical.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	RunID        string       `json:"run_id,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to the map form ir.MarshalCanonical
// accepts. Empty fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"type": ev.Type,
			"step": ev.Step,
		}
		if ev.Function != "" {
			m["function"] = ev.Function
		}
		if len(ev.Args) > 0 {
			m["args"] = ev.Args
		}
		if ev.Result != "" {
			m["result"] = ev.Result
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if ev.Tier != "" {
			m["tier"] = ev.Tier
		}
		if ev.Seq != 0 {
			m["seq"] = ev.Seq
		}
		if ev.Version != 0 {
			m["version"] = ev.Version
		}
		if ev.Status != "" {
			m["status"] = ev.Status
		}
		if ev.Trigger != "" {
			m["trigger"] = ev.Trigger
		}
		if len(ev.Feedback) > 0 {
			m["feedback"] = ev.Feedback
		}
		if len(ev.Assertions) > 0 {
			m["assertions"] = ev.Assertions
		}
		traceList[i] = m
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.RunID != "" {
		result["run_id"] = s.RunID
	}
	return result
}

// MarshalTrace returns the canonical JSON of a scenario trace.
func MarshalTrace(scenarioName, runID string, trace []TraceEvent) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		RunID:        runID,
		Trace:        trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario cannot run. A trace mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	traceJSON, err := MarshalTrace(scenario.Name, scenario.RunID, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, "", result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
