// Package harness runs YAML scenarios against compiled patches.
//
// A scenario names a directory of CUE patches, a list of steps and a list
// of assertions:
//
//	name: keyboard_split
//	description: "Low notes go to channel 1, high notes an octave up"
//	patches: ../patches/split
//	run_id: split-1
//	steps:
//	  - send: {type: note_on, note: 48, velocity: 100}
//	    expect:
//	      - {type: note_on, channel: 1, note: 48, velocity: 100}
//	  - send: {raw: "C0 02"}
//	  - switch: 1
//	assertions:
//	  - type: output_contains
//	    event: {type: note_on, channel: 1, note: 48, velocity: 100}
//	  - type: output_count
//	    count: 3
//	  - type: no_output
//	    step: 2
//	  - type: active_patch
//	    patch: 1
//
// # Assertion Types
//
//   - output_contains: some output equals event
//   - output_count: exactly count outputs, or count outputs equal to event
//   - output_order: events appear among the outputs in this order
//   - no_output: the given step, or the whole run, produced nothing
//   - active_patch: the patch active after the last step
//
// # Determinism
//
// Every scenario runs the real engine on a fresh in-memory trace store
// with a fixed run ID and a deterministic clock, so the same scenario
// always produces the same trace. RunWithGolden compares that trace with
// testdata/golden/<name>.golden.
package harness
