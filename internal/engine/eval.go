package engine

import (
	"context"
	"fmt"

	"github.com/roach88/patchwire/internal/ir"
)

// sceneRequest collects scene switches requested while an event is
// processed. The last request wins.
type sceneRequest struct {
	patch int
	set   bool
}

func (r *sceneRequest) request(n int) {
	r.patch = n
	r.set = true
}

// evaluation is one pass of an event through a compiled patch.
//
// Events travel depth-first along Next in attach order, so outputs reach
// the Output module in the same order for every run.
type evaluation struct {
	ctx     context.Context
	setup   *Setup
	patch   *ir.Patch
	scene   *sceneRequest
	outputs []ir.Event
	err     error
}

func (s *Setup) evaluate(ctx context.Context, p *ir.Patch, ev ir.Event, scene *sceneRequest) ([]ir.Event, error) {
	e := &evaluation{ctx: ctx, setup: s, patch: p, scene: scene}
	e.visit(p.Input, ev)
	if e.err != nil {
		return nil, e.err
	}
	return e.outputs, nil
}

// evaluateAll feeds every event of in through p and concatenates the results.
func (s *Setup) evaluateAll(ctx context.Context, p *ir.Patch, in []ir.Event, scene *sceneRequest) ([]ir.Event, error) {
	if p == nil {
		return in, nil
	}
	out := []ir.Event{}
	for _, ev := range in {
		res, err := s.evaluate(ctx, p, ev, scene)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

func (e *evaluation) visit(id int, ev ir.Event) {
	if e.err != nil {
		return
	}
	m := e.patch.Module(id)

	switch m.Kind {
	case ir.ModuleOutput:
		e.outputs = append(e.outputs, ev)
	case ir.ModuleInput:
		e.forward(id, ev)
	case ir.ModuleUnit:
		out, err := e.setup.apply(e.ctx, m.Unit, ev, e.scene)
		if err != nil {
			e.err = err
			return
		}
		for _, o := range out {
			e.forward(id, o)
		}
	}
}

// forward hands ev to every successor. All but the last receive a copy so
// no two branches share a sysex buffer.
func (e *evaluation) forward(id int, ev ir.Event) {
	next := e.patch.Successors(id)
	for i, to := range next {
		out := ev
		if i < len(next)-1 {
			out = ev.Clone()
		}
		e.visit(to, out)
	}
}

// apply runs one unit on one event.
func (s *Setup) apply(ctx context.Context, u *ir.Unit, ev ir.Event, scene *sceneRequest) ([]ir.Event, error) {
	if u.IsFilter() {
		if filterPasses(u, ev) {
			return []ir.Event{ev}, nil
		}
		return nil, nil
	}

	switch u.Kind {
	case ir.KindPass:
		return []ir.Event{ev}, nil

	case ir.KindDiscard:
		return nil, nil

	case ir.KindPort, ir.KindChannel, ir.KindTranspose, ir.KindVelocity, ir.KindCtrlMap, ir.KindCtrlRange:
		if out, ok := modify(u, ev); ok {
			return []ir.Event{out}, nil
		}
		return nil, nil

	case ir.KindCtrl:
		if len(u.Params.Values) != 2 {
			return nil, fmt.Errorf("ctrl unit needs 2 values, has %d", len(u.Params.Values))
		}
		return []ir.Event{generateCtrl(u, ev)}, nil

	case ir.KindSceneSwitch:
		scene.request(parameter(u.Params.Amount, ev))
		return nil, nil

	case ir.KindProcess:
		fn, ok := s.registry.Transform(u.Params.Handler)
		if !ok {
			return nil, NewMissingHandlerError(string(u.Kind), u.Params.Handler)
		}
		out, err := fn(ctx, ev.Clone())
		if err != nil {
			return nil, NewHandlerError(u.Params.Handler, err)
		}
		return out, nil

	case ir.KindCall:
		fn, ok := s.registry.Observer(u.Params.Handler)
		if !ok {
			return nil, NewMissingHandlerError(string(u.Kind), u.Params.Handler)
		}
		copied := ev.Clone()
		s.spawn(u.Params.Handler, func() error { return fn(ctx, copied) })
		return []ir.Event{ev}, nil

	case ir.KindSystem:
		copied := ev.Clone()
		command := u.Params.Handler
		s.spawn(command, func() error { return runSystem(ctx, command, copied) })
		return []ir.Event{ev}, nil
	}

	return nil, fmt.Errorf("unknown unit kind %q", u.Kind)
}
