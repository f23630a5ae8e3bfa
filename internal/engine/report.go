package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/tierfold/internal/ir"
	"github.com/roach88/tierfold/internal/optimizer"
)

// Tier is the execution tier a function is served from.
type Tier uint8

const (
	TierUnoptimized Tier = iota
	TierOptimizing       // tier-up requested; compile pending, queued or running
	TierOptimized
)

var tierNames = [...]string{"unoptimized", "optimizing", "optimized"}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("Tier(%d)", t)
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	tier, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// ParseTier returns the tier with the given name.
func ParseTier(s string) (Tier, error) {
	for i, n := range tierNames {
		if n == s {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Trigger records why a compilation was requested.
type Trigger string

const (
	TriggerExplicit   Trigger = "explicit"  // OptimizeOnNextCall
	TriggerThreshold  Trigger = "threshold" // call counter reached TierUpThreshold
	TriggerCompileAll Trigger = "compile-all"
)

// CompileStatus is the outcome of one compilation attempt.
type CompileStatus string

const (
	StatusSuccess    CompileStatus = "success"
	StatusFailed     CompileStatus = "failed"
	StatusSuperseded CompileStatus = "superseded"
)

// Diagnostic describes one static assertion that could not be proven.
type Diagnostic struct {
	Pos       ir.Pos `json:"pos"`
	Text      string `json:"text"`
	Canonical string `json:"canonical,omitempty"`
	Message   string `json:"message"`
}

// AssertionOutcome is the final state of one static assertion.
type AssertionOutcome struct {
	Pos   ir.Pos `json:"pos"`
	Text  string `json:"text"`
	State string `json:"state"`
}

// CompileReport is the record of one compilation attempt. It is the only
// output of the optimizing tier visible outside the scheduler.
type CompileReport struct {
	ID          string             `json:"id"`
	RunID       string             `json:"run_id"`
	Function    string             `json:"function"`
	Version     int64              `json:"version"`
	Seq         int64              `json:"seq"`
	Tier        Tier               `json:"tier"` // tier after the attempt
	Status      CompileStatus      `json:"status"`
	Trigger     Trigger            `json:"trigger"`
	Feedback    []string           `json:"feedback"`
	SourceHash  string             `json:"source_hash"`
	Nodes       int                `json:"nodes"`
	Rewrites    int                `json:"rewrites"`
	Rounds      int                `json:"rounds"`
	Assertions  []AssertionOutcome `json:"assertions,omitempty"`
	Diagnostics []Diagnostic       `json:"diagnostics,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Failed reports whether the attempt ended without installable code.
func (r CompileReport) Failed() bool { return r.Status != StatusSuccess }

// Record is a snapshot of a function's compilation record.
type Record struct {
	Function   string
	SourceHash string
	Tier       Tier
	Calls      int64
	Feedback   []ir.Type // per parameter; TypeNone until the first call
	Pending    bool      // explicit tier-up requested for the next call
	Prepared   bool
	Version    int64
	Bailouts   int
	Code       *optimizer.Code // nil unless Optimized
	History    []CompileReport
}

func typeNames(types []ir.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

// newReport assembles the report for one compile attempt. code may be nil
// when the attempt failed before a graph was built.
func newReport(fn string, version int64, trigger Trigger, feedback []ir.Type, code *optimizer.Code, err error) CompileReport {
	r := CompileReport{
		Function: fn,
		Version:  version,
		Trigger:  trigger,
		Feedback: typeNames(feedback),
		Status:   StatusSuccess,
	}
	if code != nil {
		r.Nodes = code.Graph.Len()
		r.Rewrites = len(code.Rewrites)
		r.Rounds = code.Rounds
		for _, a := range code.Assertions {
			r.Assertions = append(r.Assertions, AssertionOutcome{
				Pos:   a.Pos,
				Text:  a.Text,
				State: a.State.String(),
			})
		}
	}
	if err == nil {
		return r
	}

	r.Status = StatusFailed
	r.Error = err.Error()
	var ue *optimizer.UnprovableAssertionError
	if errors.As(err, &ue) {
		for _, f := range ue.Failures {
			r.Diagnostics = append(r.Diagnostics, Diagnostic{
				Pos:       f.Pos,
				Text:      f.Text,
				Canonical: f.Canonical,
				Message:   "static assertion not proven",
			})
		}
	}
	return r
}

func cloneRecord(r Record) Record {
	r.Feedback = slices.Clone(r.Feedback)
	r.History = slices.Clone(r.History)
	return r
}
