package ir

// Direction marks whether a traced event entered or left the setup.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Run identifies one engine session recorded in the trace store.
type Run struct {
	ID            string `json:"id"`
	SetupHash     string `json:"setup_hash"`
	Backend       string `json:"backend"`
	ClientName    string `json:"client_name"`
	EngineVersion string `json:"engine_version"`
}

// TraceEvent is one recorded event.
//
// Seq is the logical clock value. CauseSeq is the seq of the input event
// that produced an output; for inputs it equals Seq. Patch is the patch
// that was active when the event was processed.
type TraceEvent struct {
	RunID     string    `json:"run_id"`
	Seq       int64     `json:"seq"`
	CauseSeq  int64     `json:"cause_seq"`
	Direction Direction `json:"direction"`
	Patch     int       `json:"patch"`
	Event     Event     `json:"event"`
}

// PatchSwitch records a change of the active patch.
type PatchSwitch struct {
	RunID string `json:"run_id"`
	Seq   int64  `json:"seq"`
	From  int    `json:"from"`
	To    int    `json:"to"`
}
