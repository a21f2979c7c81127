package ir

// Version constants recorded with every traced run.
const (
	// IRVersion is the compiled patch schema version.
	IRVersion = "1"

	// EngineVersion is the patchwire engine version.
	EngineVersion = "0.1.0"
)
