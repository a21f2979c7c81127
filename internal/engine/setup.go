package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/patchwire/internal/compiler"
	"github.com/roach88/patchwire/internal/ir"
)

// Option configures a Setup.
type Option func(*Setup)

// WithRegistry supplies the handlers behind process and call units.
func WithRegistry(r *Registry) Option {
	return func(s *Setup) {
		s.registry = r
	}
}

// Switch describes a change of the active patch.
type Switch struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Result is what processing one event produced.
type Result struct {
	// Patch is the patch that was active when the event arrived.
	Patch int
	// Outputs are the events to send, in evaluation order. After a
	// switch they end with the new patch's init outputs.
	Outputs []ir.Event
	// Switch is set when the event changed the active patch.
	Switch *Switch
}

// Setup runs events through a compiled setup.
//
// Every event first goes through the control patch, whose outputs are
// discarded, then through preprocess, the active patch and postprocess.
// Scene switches requested anywhere along the way take effect once the
// event is done.
//
// Process, SwitchPatch and Start serialize on an internal lock. Call and
// system units run on their own goroutines; Wait collects their errors.
type Setup struct {
	config   ir.Config
	hash     string
	patches  map[int]ir.PatchEntry
	numbers  []int
	control  *ir.Patch
	pre      *ir.Patch
	post     *ir.Patch
	registry *Registry

	mu     sync.Mutex
	active int

	wg    sync.WaitGroup
	errMu sync.Mutex
	errs  *multierror.Error
}

// NewSetup validates src and prepares it for processing. The active patch
// is the default patch, or the lowest-numbered one.
func NewSetup(src *ir.Setup, opts ...Option) (*Setup, error) {
	if src == nil {
		return nil, errors.New("new setup: nil setup")
	}
	if errs := compiler.Validate(src); len(errs) > 0 {
		var merr *multierror.Error
		for _, e := range errs {
			merr = multierror.Append(merr, e)
		}
		return nil, fmt.Errorf("new setup: %w", merr)
	}

	hash, err := ir.SetupHash(src)
	if err != nil {
		return nil, fmt.Errorf("new setup: %w", err)
	}

	s := &Setup{
		config:   src.Config,
		hash:     hash,
		patches:  make(map[int]ir.PatchEntry, len(src.Patches)),
		numbers:  src.Numbers(),
		control:  src.Control,
		pre:      src.Pre,
		post:     src.Post,
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, e := range src.Patches {
		s.patches[e.Number] = e
	}
	for _, p := range s.allPatches() {
		if err := s.registry.check(p); err != nil {
			return nil, fmt.Errorf("new setup: %w", err)
		}
	}

	s.active = s.numbers[0]
	if src.DefaultPatch != nil {
		s.active = *src.DefaultPatch
	}

	if s.config.Backend == ir.BackendJackRT && !s.config.Silent && s.usesProcess() {
		slog.Warn("process unit used with jack-rt backend",
			"backend", s.config.Backend,
			"note", "transforms run on the event thread",
		)
	}

	return s, nil
}

// Config returns the runtime configuration.
func (s *Setup) Config() ir.Config { return s.config }

// Hash returns the setup hash recorded with traced runs.
func (s *Setup) Hash() string { return s.hash }

// Numbers returns the patch numbers in ascending order.
func (s *Setup) Numbers() []int { return slices.Clone(s.numbers) }

// Active returns the number of the active patch.
func (s *Setup) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start runs the init patch of the active patch and returns its outputs.
func (s *Setup) Start(ctx context.Context) ([]ir.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runInit(ctx, s.active)
}

// Process runs one event through the setup.
func (s *Setup) Process(ctx context.Context, ev ir.Event) (Result, error) {
	if !ev.Type.Valid() || ev.Type == ir.EventDummy {
		return Result{}, NewInvalidEventError("cannot process event of type %q", ev.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Patch: s.active}
	var scene sceneRequest

	if s.control != nil {
		if _, err := s.evaluate(ctx, s.control, ev, &scene); err != nil {
			return Result{}, fmt.Errorf("control patch: %w", err)
		}
	}

	events := []ir.Event{ev}
	for _, stage := range []struct {
		name  string
		patch *ir.Patch
	}{
		{"preprocess", s.pre},
		{fmt.Sprintf("patch %d", s.active), s.patches[s.active].Body},
		{"postprocess", s.post},
	} {
		var err error
		events, err = s.evaluateAll(ctx, stage.patch, events, &scene)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", stage.name, err)
		}
	}
	res.Outputs = events

	if scene.set && scene.patch != s.active {
		if _, ok := s.patches[scene.patch]; !ok {
			slog.Warn("scene switch to unknown patch ignored",
				"patch", scene.patch,
				"active", s.active,
			)
			return res, nil
		}
		from := s.active
		init, err := s.switchLocked(ctx, scene.patch)
		if err != nil {
			return Result{}, err
		}
		res.Outputs = append(res.Outputs, init...)
		res.Switch = &Switch{From: from, To: scene.patch}
	}

	return res, nil
}

// SwitchPatch makes patch n active and returns its init outputs.
// Switching to the active patch does nothing.
func (s *Setup) SwitchPatch(ctx context.Context, n int) ([]ir.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patches[n]; !ok {
		return nil, NewUnknownPatchError(n)
	}
	if n == s.active {
		return nil, nil
	}
	return s.switchLocked(ctx, n)
}

// Resume makes patch n active without running its init patch, restoring
// the state a recorded run ended in.
func (s *Setup) Resume(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patches[n]; !ok {
		return NewUnknownPatchError(n)
	}
	s.active = n
	return nil
}

func (s *Setup) switchLocked(ctx context.Context, n int) ([]ir.Event, error) {
	slog.Info("patch switched", "from", s.active, "to", n)
	s.active = n
	return s.runInit(ctx, n)
}

// runInit feeds a dummy event through the init patch of n, then through
// postprocess. Events still of the dummy type are dropped, and scene
// switches requested by an init patch are ignored.
func (s *Setup) runInit(ctx context.Context, n int) ([]ir.Event, error) {
	entry := s.patches[n]
	if entry.Init == nil {
		return nil, nil
	}

	var ignored sceneRequest
	out, err := s.evaluate(ctx, entry.Init, ir.DummyEvent(), &ignored)
	if err != nil {
		return nil, fmt.Errorf("init patch %d: %w", n, err)
	}
	out = slices.DeleteFunc(out, func(ev ir.Event) bool { return ev.Type == ir.EventDummy })
	out, err = s.evaluateAll(ctx, s.post, out, &ignored)
	if err != nil {
		return nil, fmt.Errorf("init patch %d: postprocess: %w", n, err)
	}
	return out, nil
}

// Wait blocks until every call and system unit started so far has
// finished and returns their errors, if any.
func (s *Setup) Wait() error {
	s.wg.Wait()
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.errs.ErrorOrNil()
	s.errs = nil
	return err
}

func (s *Setup) spawn(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			slog.Warn("observer failed", "handler", name, "error", err)
			s.errMu.Lock()
			s.errs = multierror.Append(s.errs, NewHandlerError(name, err))
			s.errMu.Unlock()
		}
	}()
}

func (s *Setup) allPatches() []*ir.Patch {
	ps := []*ir.Patch{s.control, s.pre, s.post}
	for _, n := range s.numbers {
		e := s.patches[n]
		ps = append(ps, e.Init, e.Body)
	}
	return ps
}

func (s *Setup) usesProcess() bool {
	for _, p := range s.allPatches() {
		if p == nil {
			continue
		}
		for _, u := range p.Units() {
			if u.Kind == ir.KindProcess {
				return true
			}
		}
	}
	return false
}

// TestRun compiles expr into a single-patch setup and processes one event
// through it, waiting for any call or system units to finish.
func TestRun(ctx context.Context, expr ir.Expr, ev ir.Event, opts ...Option) ([]ir.Event, error) {
	p, err := compiler.Compile(expr)
	if err != nil {
		return nil, err
	}
	s, err := NewSetup(&ir.Setup{
		Config:  ir.DefaultConfig(),
		Patches: []ir.PatchEntry{{Number: 0, Body: p}},
	}, opts...)
	if err != nil {
		return nil, err
	}

	res, err := s.Process(ctx, ev)
	if werr := s.Wait(); werr != nil {
		err = multierror.Append(err, werr)
	}
	if err != nil {
		return nil, err
	}
	return res.Outputs, nil
}
