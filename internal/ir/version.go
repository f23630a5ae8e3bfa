package ir

// Version constants recorded on every compile report.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// EngineVersion is the tierfold engine version.
	EngineVersion = "0.1.0"
)
