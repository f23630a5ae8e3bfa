package harness

import "github.com/roach88/tierfold/internal/engine"

// TraceEvent is one entry of a scenario trace: either a flow step or a
// compile report the step produced.
type TraceEvent struct {
	Type     string   `json:"type"` // a Step* constant or "report"
	Step     int      `json:"step"` // index of the flow step
	Function string   `json:"function,omitempty"`
	Args     []string `json:"args,omitempty"`
	Result   string   `json:"result,omitempty"`
	Error    string   `json:"error,omitempty"` // RuntimeError code
	Tier     string   `json:"tier,omitempty"`

	// Report fields.
	Seq        int64    `json:"seq,omitempty"`
	Version    int64    `json:"version,omitempty"`
	Status     string   `json:"status,omitempty"`
	Trigger    string   `json:"trigger,omitempty"`
	Feedback   []string `json:"feedback,omitempty"`
	Assertions []string `json:"assertions,omitempty"` // states in source order
}

// EventReport is the trace type of a compile report.
const EventReport = "report"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace holds the steps and compile reports in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Reports are the compile reports as read back from the store.
	Reports []engine.CompileReport `json:"reports"`

	// Tiers maps every loaded function to its final tier.
	Tiers map[string]string `json:"tiers"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Reports: []engine.CompileReport{},
		Tiers:   make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace adds a flow step to the trace.
func (r *Result) AddStepTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// AddReportTrace adds a compile report produced by step to the trace.
func (r *Result) AddReportTrace(step int, rep engine.CompileReport) {
	states := make([]string, len(rep.Assertions))
	for i, a := range rep.Assertions {
		states[i] = a.State
	}
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventReport,
		Step:       step,
		Function:   rep.Function,
		Tier:       rep.Tier.String(),
		Seq:        rep.Seq,
		Version:    rep.Version,
		Status:     string(rep.Status),
		Trigger:    string(rep.Trigger),
		Feedback:   rep.Feedback,
		Assertions: states,
	})
}

// String formats the event the way assertion failures print traces.
func (ev TraceEvent) String() string {
	return formatEvent(ev)
}
