package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/store"
)

// RunIDGenerator generates run IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// Sequencer hands out trace seqs. Clock is the production implementation.
type Sequencer interface {
	Next() int64
}

// Sink receives every output event, stamped, in trace order.
type Sink interface {
	Emit(ctx context.Context, ev ir.TraceEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev ir.TraceEvent) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev ir.TraceEvent) error { return f(ctx, ev) }

// Collector is a Sink that keeps everything it receives.
type Collector struct {
	mu     sync.Mutex
	events []ir.TraceEvent
}

// Emit records ev.
func (c *Collector) Emit(_ context.Context, ev ir.TraceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of what was received so far.
func (c *Collector) Events() []ir.TraceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ir.TraceEvent{}, c.events...)
}

// Engine is the single-writer event loop around a Setup.
//
// CRITICAL: All processing happens in the Run loop goroutine. External
// callers use Enqueue and RequestSwitch to submit work.
//
// Thread-safety model:
//   - Enqueue(), RequestSwitch(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store *store.Store // nil: nothing is traced
	setup *Setup
	clock Sequencer
	queue *eventQueue
	runID string
	sink  Sink

	resumed bool // the run exists; begin writes nothing
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithSink sends outputs to sink.
func WithSink(sink Sink) EngineOption {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithClock replaces the engine clock, e.g. to continue an existing run.
func WithClock(c Sequencer) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// Resumed continues a run that is already recorded. The run row and the
// startup init outputs are not written again; pair it with WithClock so
// new seqs follow the recorded ones.
func Resumed() EngineOption {
	return func(e *Engine) {
		e.resumed = true
	}
}

// New creates an Engine for setup. The store may be nil.
func New(s *store.Store, setup *Setup, runIDs RunIDGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		store: s,
		setup: setup,
		clock: NewClock(),
		queue: newEventQueue(),
		runID: runIDs.Generate(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RunID returns the ID this engine records its trace under.
func (e *Engine) RunID() string {
	return e.runID
}

// Enqueue submits an event for processing by the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev ir.Event) bool {
	return e.queue.Enqueue(Request{Kind: RequestEvent, Event: ev})
}

// RequestSwitch asks the Run loop to make patch n active.
// Returns false if the engine has been stopped.
func (e *Engine) RequestSwitch(n int) bool {
	return e.queue.Enqueue(Request{Kind: RequestSwitch, Patch: n})
}

// Run records the run, emits the init outputs of the active patch, then
// processes requests until the context is cancelled or Stop is called.
//
// On a processing failure the error is logged with the request and the
// loop continues; a failed input is still recorded so replay sees it.
//
// When the queue is drained after Stop, Run waits for outstanding call
// and system units and returns their errors.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "run_id", e.runID, "patch", e.setup.Active())

	if err := e.begin(ctx); err != nil {
		e.queue.Close()
		return err
	}

	for {
		req, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processRequest(ctx, req); err != nil {
				logRequestError(e.runID, req, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "run_id", e.runID)
			e.queue.Close()
			if err := e.setup.Wait(); err != nil {
				slog.Warn("observers failed", "run_id", e.runID, "error", err)
			}
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue, so this fires
			// immediately once Stop was called.
			if e.queue.Len() == 0 && e.stopped() {
				slog.Info("engine stopping: queue closed", "run_id", e.runID)
				return e.setup.Wait()
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue has drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

func (e *Engine) begin(ctx context.Context) error {
	if e.resumed {
		slog.Info("resuming run", "run_id", e.runID, "patch", e.setup.Active())
		return nil
	}

	cfg := e.setup.Config()
	if e.store != nil {
		err := e.store.WriteRun(ctx, ir.Run{
			ID:            e.runID,
			SetupHash:     e.setup.Hash(),
			Backend:       string(cfg.Backend),
			ClientName:    cfg.ClientName,
			EngineVersion: ir.EngineVersion,
		})
		if err != nil {
			return fmt.Errorf("begin run %s: %w", e.runID, err)
		}
	}

	init, err := e.setup.Start(ctx)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", e.runID, err)
	}
	return e.commit(ctx, store.Step{Outputs: e.stampOutputs(init, 0, e.setup.Active())})
}

// processRequest handles one request.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processRequest(ctx context.Context, req Request) error {
	switch req.Kind {
	case RequestEvent:
		return e.processEvent(ctx, req.Event)
	case RequestSwitch:
		return e.processSwitch(ctx, req.Patch)
	default:
		return fmt.Errorf("unknown request kind: %d", req.Kind)
	}
}

func (e *Engine) processEvent(ctx context.Context, ev ir.Event) error {
	seq := e.clock.Next()
	in := ir.TraceEvent{
		RunID:     e.runID,
		Seq:       seq,
		CauseSeq:  seq,
		Direction: ir.DirectionIn,
		Patch:     e.setup.Active(),
		Event:     ev,
	}

	slog.Debug("processing event", "run_id", e.runID, "seq", seq, "event", ev.String())

	res, err := e.setup.Process(ctx, ev)
	if err != nil {
		if werr := e.commit(ctx, store.Step{Input: &in}); werr != nil {
			slog.Error("recording failed input", "run_id", e.runID, "seq", seq, "error", werr)
		}
		return fmt.Errorf("process event %d: %w", seq, err)
	}

	step := store.Step{
		Input:   &in,
		Outputs: e.stampOutputs(res.Outputs, seq, res.Patch),
	}
	if res.Switch != nil {
		step.Switch = &ir.PatchSwitch{RunID: e.runID, Seq: seq, From: res.Switch.From, To: res.Switch.To}
	}
	return e.commit(ctx, step)
}

func (e *Engine) processSwitch(ctx context.Context, n int) error {
	from := e.setup.Active()
	init, err := e.setup.SwitchPatch(ctx, n)
	if err != nil {
		return fmt.Errorf("switch to patch %d: %w", n, err)
	}
	if n == from {
		return nil
	}

	seq := e.clock.Next()
	return e.commit(ctx, store.Step{
		Outputs: e.stampOutputs(init, seq, n),
		Switch:  &ir.PatchSwitch{RunID: e.runID, Seq: seq, From: from, To: n},
	})
}

func (e *Engine) stampOutputs(events []ir.Event, cause int64, patch int) []ir.TraceEvent {
	out := make([]ir.TraceEvent, len(events))
	for i, ev := range events {
		out[i] = ir.TraceEvent{
			RunID:     e.runID,
			Seq:       e.clock.Next(),
			CauseSeq:  cause,
			Direction: ir.DirectionOut,
			Patch:     patch,
			Event:     ev,
		}
	}
	return out
}

// commit writes a step to the store, then hands its outputs to the sink.
func (e *Engine) commit(ctx context.Context, step store.Step) error {
	if e.store != nil && (step.Input != nil || len(step.Outputs) > 0 || step.Switch != nil) {
		if err := e.store.WriteStep(ctx, step); err != nil {
			return err
		}
	}
	if e.sink == nil {
		return nil
	}
	for _, out := range step.Outputs {
		if err := e.sink.Emit(ctx, out); err != nil {
			return fmt.Errorf("emit %d: %w", out.Seq, err)
		}
	}
	return nil
}

// logRequestError logs a failed request with enough context to find it in
// the trace.
func logRequestError(runID string, req Request, err error) {
	switch req.Kind {
	case RequestEvent:
		slog.Error("event processing failed",
			"error", err,
			"run_id", runID,
			"event", req.Event.String(),
		)
	case RequestSwitch:
		slog.Error("patch switch failed",
			"error", err,
			"run_id", runID,
			"patch", req.Patch,
		)
	default:
		slog.Error("request processing failed",
			"error", err,
			"run_id", runID,
			"kind", req.Kind,
		)
	}
}
