// Package harness runs YAML scenarios against a real tiering scheduler and
// checks the compile reports it produces.
//
// # Scenario Format
//
//	name: regression-foo
//	description: "1*x == x+0 is proven when foo is optimized"
//	sources:
//	  - ../functions
//	run_id: regression
//	config:
//	  tier_up_threshold: 0
//	  max_loop_iterations: 10000
//	  strict_directives: false
//	flow:
//	  - call: foo
//	    args: ["121"]
//	    expect:
//	      result: undefined
//	      tier: unoptimized
//	  - optimize: foo
//	  - call: foo
//	    args: ["123"]
//	    expect: { tier: optimized }
//	assertions:
//	  - type: report_status
//	    function: foo
//	    status: success
//	  - type: assertion_state
//	    function: foo
//	    state: proven
//
// Argument and result literals are the forms ir.ParseValue accepts, so
// "-0" and "NaN" survive YAML decoding.
//
// # Assertion Types
//
//   - report_count: number of reports, optionally filtered by function and status
//   - report_status: status of a function's latest report
//   - assertion_state: state of the static assertions in a function's latest report
//   - final_tier: tier a function ends in
//   - call_count: number of call steps for a function
//
// # Deterministic Testing
//
// Every run uses a deterministic logical clock (testutil.DeterministicClock),
// a fixed run ID (testutil.FixedRunIDGenerator) and an isolated in-memory
// SQLite store. Report seqs and IDs are therefore identical across runs and
// traces can be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/regression.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
