// Package store provides SQLite-backed storage for patchwire traces.
//
// A trace is append-only:
//   - runs: one row per engine session, with the setup hash it ran against
//   - events: every input and output event, stamped with the logical clock
//   - patch_switches: every change of the active patch
//
// Outputs point back at the input that produced them through cause_seq, so
// a run can be replayed input by input and compared output by output.
//
// # Ordering
//
// Every read orders by seq ASC. Seq comes from the engine's logical clock,
// never from wall time, so two replays of the same inputs read back
// identically.
//
// # Connection settings
//
// Open passes its SQLite settings in the DSN so every pooled connection
// gets them: WAL journaling lets trace and replay read a database that a
// run is still writing, busy_timeout waits up to 5s for the write lock,
// and foreign keys tie every event to its run.
package store
