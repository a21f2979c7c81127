package testutil

// DefaultRunID is used by scenarios that do not name their run.
const DefaultRunID = "test-run-default"

// FixedRunIDGenerator returns the same run ID every time, so golden traces
// do not depend on when a scenario ran.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id, or DefaultRunID when
// id is empty.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run ID.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
