package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tierfold/internal/engine"
)

// Scenario drives a scheduler through a sequence of calls and directives
// and asserts on the compile reports it produces.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sources lists CUE files or directories holding the functions.
	// Relative paths resolve against the scenario file. May be empty when
	// the caller supplies functions (see Options.Functions).
	Sources []string `yaml:"sources,omitempty"`

	// Config overrides scheduler settings.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Flow is the ordered list of calls and directives.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the compile reports and final tiers.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is stamped on every report. Defaults to testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`
}

// ScenarioConfig holds the scheduler settings a scenario may change.
// Unset fields keep the harness defaults.
type ScenarioConfig struct {
	// TierUpThreshold is the call count that triggers an implicit tier-up.
	// Harness default is 0 (only explicit directives compile).
	TierUpThreshold *int `yaml:"tier_up_threshold,omitempty"`

	MaxLoopIterations *int `yaml:"max_loop_iterations,omitempty"`

	// StrictDirectives requires prepare before optimize.
	StrictDirectives bool `yaml:"strict_directives,omitempty"`
}

// FlowStep is one call or directive. Exactly one of Call, Optimize,
// Prepare or CompileAll is set.
type FlowStep struct {
	// Call invokes a function with Args.
	Call string `yaml:"call,omitempty"`

	// Args are value literals: numbers, true, false, undefined, NaN,
	// Infinity, -Infinity, -0.
	Args []string `yaml:"args,omitempty"`

	// Optimize issues OptimizeOnNextCall for the named function.
	Optimize string `yaml:"optimize,omitempty"`

	// Prepare issues PrepareForOptimization for the named function.
	Prepare string `yaml:"prepare,omitempty"`

	// CompileAll compiles every loaded function.
	CompileAll bool `yaml:"compile_all,omitempty"`

	// Expect validates the outcome of the step. Nil means no validation
	// beyond the step not failing unexpectedly.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Kind returns the step type as it appears in traces.
func (s FlowStep) Kind() string {
	switch {
	case s.Call != "":
		return StepCall
	case s.Optimize != "":
		return StepOptimize
	case s.Prepare != "":
		return StepPrepare
	case s.CompileAll:
		return StepCompileAll
	}
	return ""
}

// Function returns the function the step targets, or "" for compile_all.
func (s FlowStep) Function() string {
	switch {
	case s.Call != "":
		return s.Call
	case s.Optimize != "":
		return s.Optimize
	}
	return s.Prepare
}

// Step type constants.
const (
	StepCall       = "call"
	StepOptimize   = "optimize"
	StepPrepare    = "prepare"
	StepCompileAll = "compile_all"
)

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Result is the expected return value literal, compared with
	// SameValue (so "NaN" matches NaN and "-0" does not match "0").
	Result string `yaml:"result,omitempty"`

	// Error is the expected RuntimeError code, e.g. LOOP_LIMIT.
	Error string `yaml:"error,omitempty"`

	// Tier is the expected tier of the function after the step.
	Tier string `yaml:"tier,omitempty"`
}

// Assertion validates the final state of a scenario run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "report_count": number of reports, optionally filtered by function/status
	// - "report_status": status of the function's latest report
	// - "assertion_state": state of static assertions in the function's latest report
	// - "final_tier": tier of the function after the flow
	// - "call_count": number of call steps for the function
	Type string `yaml:"type"`

	Function string `yaml:"function,omitempty"`

	// Status is a compile status: success, failed, superseded.
	Status string `yaml:"status,omitempty"`

	// State is an assertion state: pending, proven, failed.
	State string `yaml:"state,omitempty"`

	// Text selects one static assertion by source text. Empty selects all.
	Text string `yaml:"text,omitempty"`

	Tier string `yaml:"tier,omitempty"`

	// Count is the expected number of occurrences.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertReportCount    = "report_count"
	AssertReportStatus   = "report_status"
	AssertAssertionState = "assertion_state"
	AssertFinalTier      = "final_tier"
	AssertCallCount      = "call_count"
)

// LoadScenario reads and parses a scenario YAML file. Source paths resolve
// against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving source paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, src := range scenario.Sources {
		if !filepath.IsAbs(src) && basePath != "" {
			scenario.Sources[i] = filepath.Join(basePath, src)
		}
	}
	for _, src := range scenario.Sources {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: source not found: %s", src)
		}
	}

	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. Source paths are left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if t := s.Config.TierUpThreshold; t != nil && *t < 0 {
		return fmt.Errorf("config.tier_up_threshold must be non-negative")
	}
	if n := s.Config.MaxLoopIterations; n != nil && *n <= 0 {
		return fmt.Errorf("config.max_loop_iterations must be positive")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step FlowStep) error {
	set := 0
	for _, on := range []bool{step.Call != "", step.Optimize != "", step.Prepare != "", step.CompileAll} {
		if on {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("flow[%d]: exactly one of call, optimize, prepare, compile_all is required", i)
	}
	if step.Call == "" && len(step.Args) > 0 {
		return fmt.Errorf("flow[%d]: args are only valid on call steps", i)
	}
	if e := step.Expect; e != nil {
		if e.Result != "" && step.Call == "" {
			return fmt.Errorf("flow[%d].expect: result is only valid on call steps", i)
		}
		if e.Result != "" && e.Error != "" {
			return fmt.Errorf("flow[%d].expect: result and error are mutually exclusive", i)
		}
		if e.Tier != "" {
			if _, err := engine.ParseTier(e.Tier); err != nil {
				return fmt.Errorf("flow[%d].expect: %w", i, err)
			}
			if step.CompileAll {
				return fmt.Errorf("flow[%d].expect: tier is not valid on compile_all", i)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertReportCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for report_count", index)
		}
		if a.Status != "" && !validStatus(a.Status) {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertReportStatus:
		if a.Function == "" {
			return fmt.Errorf("assertions[%d]: function is required for report_status", index)
		}
		if !validStatus(a.Status) {
			return fmt.Errorf("assertions[%d]: status must be success, failed or superseded", index)
		}
	case AssertAssertionState:
		if a.Function == "" {
			return fmt.Errorf("assertions[%d]: function is required for assertion_state", index)
		}
		switch a.State {
		case "pending", "proven", "failed":
		default:
			return fmt.Errorf("assertions[%d]: state must be pending, proven or failed", index)
		}
	case AssertFinalTier:
		if a.Function == "" {
			return fmt.Errorf("assertions[%d]: function is required for final_tier", index)
		}
		if _, err := engine.ParseTier(a.Tier); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertCallCount:
		if a.Function == "" {
			return fmt.Errorf("assertions[%d]: function is required for call_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for call_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validStatus(s string) bool {
	switch engine.CompileStatus(s) {
	case engine.StatusSuccess, engine.StatusFailed, engine.StatusSuperseded:
		return true
	}
	return false
}
