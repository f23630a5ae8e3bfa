package testutil

// DefaultRunID is used when a scenario does not name its run.
const DefaultRunID = "test-run-default"

// FixedRunIDGenerator returns the same run ID every time, so the compile
// reports of a scenario carry byte-identical IDs across runs and golden
// traces stay stable.
//
// Unlike engine.FixedGenerator, which hands out a list of IDs once each,
// this generator never runs out; a harness can build any number of
// schedulers from it.
//
// Thread-safety: FixedRunIDGenerator is immutable and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator returns a generator for id. The id usually comes
// from the scenario YAML:
//
//	run_id: "regression-foo"
//
// An empty id falls back to DefaultRunID.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run ID. Implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
