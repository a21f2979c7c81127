// Package engine runs MIDI events through compiled patches.
//
// A Setup holds the compiled patches of a setup and evaluates one event at
// a time: control patch first, then preprocess, the active patch and
// postprocess. Scene switches take effect once the event is done, and the
// init patch of the new patch runs immediately.
//
// Engine wraps a Setup in a single-writer loop:
//
//  1. Sources call Enqueue or RequestSwitch from any goroutine.
//  2. Run dequeues one request at a time.
//  3. Every input and output is stamped with the next value of a logical
//     clock and written to the trace store in one transaction.
//  4. Outputs are handed to the configured Sink in seq order.
//
// Seq values come from Clock.Next, never from wall-clock time, so a trace
// read back in seq order is the order events were produced in. Replay
// feeds a recorded trace through a fresh Setup and reports the steps whose
// outputs differ.
//
// Call and system units are the only concurrent parts. They receive a
// copy of the event on their own goroutine, and Setup.Wait collects their
// errors.
package engine
