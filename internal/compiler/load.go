package compiler

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/units"
)

// exprNodeKeys are the discriminating fields of an expression struct.
var exprNodeKeys = []string{"chain", "fork", "unit", "split", "threshold"}

// filterFactories backs the "args" form of filter units.
var filterFactories = map[ir.UnitKind]FilterFunc{
	ir.KindPortFilter:      units.PortFilter,
	ir.KindChannelFilter:   units.ChannelFilter,
	ir.KindKeyFilter:       units.KeyFilter,
	ir.KindVelocityFilter:  units.VelocityFilter,
	ir.KindCtrlFilter:      units.CtrlFilter,
	ir.KindCtrlValueFilter: units.CtrlValueFilter,
	ir.KindProgramFilter:   units.ProgramFilter,
	ir.KindSysExFilter:     units.SysExFilter,
}

// paramNames are the symbolic parameter references accepted by generators.
var paramNames = map[string]int{
	"port":    ir.ParamPort,
	"channel": ir.ParamChannel,
	"data1":   ir.ParamData1,
	"data2":   ir.ParamData2,
}

// exprParser reads CUE expression nodes and remembers the source position
// of every node it visits, keyed by field path.
type exprParser struct {
	positions map[string]token.Pos
}

func newExprParser() *exprParser {
	return &exprParser{positions: make(map[string]token.Pos)}
}

// CompileExpr parses a CUE expression node into an ir.Expr.
//
// A list is a Fork; a struct holds exactly one of chain, fork, unit, split
// or threshold:
//
//	[{unit: "channel_filter", args: [0]}, {unit: "pass"}]
//	{chain: [{unit: "key_filter", args: [0, 60]}, {unit: "transpose", value: 12}]}
//	{split: "channel", cases: [{key: 0, patch: {unit: "pass"}}], else: {unit: "discard"}}
//	{threshold: "key", at: 60, lower: {unit: "pass"}, upper: {unit: "discard"}}
func CompileExpr(v cue.Value) (ir.Expr, error) {
	return newExprParser().parse(v, fieldPath(v))
}

// CompilePatch parses a CUE expression node and compiles it.
func CompilePatch(v cue.Value) (*ir.Patch, error) {
	return newExprParser().compile(v, fieldPath(v))
}

func (p *exprParser) compile(v cue.Value, field string) (*ir.Patch, error) {
	expr, err := p.parse(v, field)
	if err != nil {
		return nil, err
	}
	patch, err := CompileAt(expr, field)
	if err != nil {
		return nil, p.locate(err)
	}
	slog.Debug("compiled patch", "field", field, "expr", ir.FormatExpr(expr), "units", len(patch.Units()))
	return patch, nil
}

// locate fills in the position of a CompileError from the nearest node on
// its field path.
func (p *exprParser) locate(err error) error {
	ce, ok := err.(*CompileError)
	if !ok || ce.Pos.IsValid() {
		return err
	}
	for field := ce.Field; field != ""; field = parentField(field) {
		if pos, ok := p.positions[field]; ok {
			ce.Pos = pos
			break
		}
	}
	return ce
}

func parentField(field string) string {
	i := strings.LastIndex(field, ".")
	if i < 0 {
		return ""
	}
	return field[:i]
}

func (p *exprParser) parse(v cue.Value, field string) (ir.Expr, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, p.errorAt(v, field, "expression is missing")
	}
	p.positions[field] = v.Pos()

	switch v.IncompleteKind() {
	case cue.ListKind:
		items, err := p.parseList(v, field, "fork")
		if err != nil {
			return nil, err
		}
		return ir.Fork{Items: items}, nil
	case cue.StructKind:
	default:
		return nil, p.errorAt(v, field, "expected a list or struct, got %v", v.IncompleteKind())
	}

	var found []string
	for _, key := range exprNodeKeys {
		if v.LookupPath(cue.ParsePath(key)).Exists() {
			found = append(found, key)
		}
	}
	if len(found) != 1 {
		return nil, p.errorAt(v, field, "expected exactly one of %s, got %v",
			strings.Join(exprNodeKeys, ", "), found)
	}

	switch found[0] {
	case "chain":
		items, err := p.parseList(v.LookupPath(cue.ParsePath("chain")), field, "chain")
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, p.errorAt(v, field, "chain needs at least one item")
		}
		return ir.ChainOf(items...), nil
	case "fork":
		items, err := p.parseList(v.LookupPath(cue.ParsePath("fork")), field, "fork")
		if err != nil {
			return nil, err
		}
		return ir.Fork{Items: items}, nil
	case "unit":
		u, err := p.parseUnit(v, field)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "split":
		return p.parseSplit(v, field)
	default:
		return p.parseThreshold(v, field)
	}
}

func (p *exprParser) parseList(v cue.Value, field, label string) ([]ir.Expr, error) {
	iter, err := v.List()
	if err != nil {
		return nil, p.errorAt(v, field, "%s must be a list", label)
	}
	var items []ir.Expr
	for i := 0; iter.Next(); i++ {
		item, err := p.parse(iter.Value(), join(field, fmt.Sprintf("%s[%d]", label, i)))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *exprParser) parseUnit(v cue.Value, field string) (ir.Unit, error) {
	name, err := v.LookupPath(cue.ParsePath("unit")).String()
	if err != nil {
		return ir.Unit{}, p.errorAt(v, field, "unit must be a string")
	}
	kind := ir.UnitKind(name)
	if !kind.Valid() {
		return ir.Unit{}, p.errorAt(v, field, "unknown unit kind %q", name)
	}

	u, err := p.buildUnit(v, field, kind)
	if err != nil {
		return ir.Unit{}, err
	}

	if inv := v.LookupPath(cue.ParsePath("invert")); inv.Exists() {
		negate, err := inv.Bool()
		if err != nil {
			return ir.Unit{}, p.errorAt(inv, field, "invert must be a bool")
		}
		if negate {
			if !u.IsFilter() {
				return ir.Unit{}, p.errorAt(inv, field, "%s cannot be inverted", kind)
			}
			u = u.Invert()
		}
	}
	return u, nil
}

func (p *exprParser) buildUnit(v cue.Value, field string, kind ir.UnitKind) (ir.Unit, error) {
	wrap := func(u ir.Unit, err error) (ir.Unit, error) {
		if err != nil {
			return ir.Unit{}, &CompileError{
				Field:   field,
				Message: err.Error(),
				Pos:     v.Pos(),
				Err:     fmt.Errorf("%w: %w", ErrInvalidExpression, err),
			}
		}
		return u, nil
	}

	if f, ok := filterFactories[kind]; ok {
		args, err := p.keyList(v.LookupPath(cue.ParsePath("args")), field)
		if err != nil {
			return ir.Unit{}, err
		}
		return wrap(f(args...))
	}

	switch kind {
	case ir.KindTypeFilter:
		names, err := p.stringList(v.LookupPath(cue.ParsePath("args")), field)
		if err != nil {
			return ir.Unit{}, err
		}
		types := make([]ir.EventType, len(names))
		for i, n := range names {
			types[i] = ir.EventType(n)
		}
		return wrap(units.TypeFilter(types...))

	case ir.KindPort, ir.KindChannel, ir.KindTranspose:
		n, err := p.intField(v, field, "value")
		if err != nil {
			return ir.Unit{}, err
		}
		switch kind {
		case ir.KindPort:
			return wrap(units.Port(n))
		case ir.KindChannel:
			return wrap(units.Channel(n))
		default:
			return units.Transpose(n), nil
		}

	case ir.KindVelocity:
		var set []ir.VelocityMode
		var value float64
		for mode := ir.VelocityOffset; mode <= ir.VelocityCurve; mode++ {
			mv := v.LookupPath(cue.ParsePath(mode.String()))
			if !mv.Exists() {
				continue
			}
			f, err := mv.Float64()
			if err != nil {
				return ir.Unit{}, p.errorAt(mv, field, "%s must be a number", mode)
			}
			set = append(set, mode)
			value = f
		}
		if len(set) != 1 {
			return ir.Unit{}, p.errorAt(v, field, "velocity needs exactly one of offset, multiply, fixed, gamma, curve")
		}
		return wrap(units.Velocity(value, set[0]))

	case ir.KindCtrlMap:
		from, err := p.intField(v, field, "from")
		if err != nil {
			return ir.Unit{}, err
		}
		to, err := p.intField(v, field, "to")
		if err != nil {
			return ir.Unit{}, err
		}
		return wrap(units.CtrlMap(from, to))

	case ir.KindCtrlRange:
		var vals [5]int
		for i, name := range []string{"ctrl", "min", "max", "in_min", "in_max"} {
			n, err := p.intField(v, field, name)
			if err != nil {
				return ir.Unit{}, err
			}
			vals[i] = n
		}
		return wrap(units.CtrlRange(vals[0], vals[1], vals[2], vals[3], vals[4]))

	case ir.KindCtrl:
		ctrl, err := p.paramField(v, field, "ctrl")
		if err != nil {
			return ir.Unit{}, err
		}
		value, err := p.paramField(v, field, "value")
		if err != nil {
			return ir.Unit{}, err
		}
		return wrap(units.Ctrl(ctrl, value))

	case ir.KindSceneSwitch:
		n, err := p.paramField(v, field, "value")
		if err != nil {
			return ir.Unit{}, err
		}
		return wrap(units.SceneSwitch(n))

	case ir.KindPass:
		return units.Pass(), nil
	case ir.KindDiscard:
		return units.Discard(), nil

	case ir.KindProcess, ir.KindCall:
		handler, err := p.stringField(v, field, "handler")
		if err != nil {
			return ir.Unit{}, err
		}
		if kind == ir.KindProcess {
			return wrap(units.Process(handler))
		}
		return wrap(units.Call(handler))

	case ir.KindSystem:
		cmd, err := p.stringField(v, field, "command")
		if err != nil {
			return ir.Unit{}, err
		}
		return wrap(units.System(cmd))
	}

	return ir.Unit{}, p.errorAt(v, field, "unit %s cannot be loaded", kind)
}

func (p *exprParser) parseSplit(v cue.Value, field string) (ir.Expr, error) {
	name, err := v.LookupPath(cue.ParsePath("split")).String()
	if err != nil {
		return nil, p.errorAt(v, field, "split must be a string")
	}
	build, ok := Splits[name]
	if !ok {
		return nil, p.errorAt(v, field, "unknown split %q", name)
	}

	var table Table
	cases := v.LookupPath(cue.ParsePath("cases"))
	if cases.Exists() {
		iter, err := cases.List()
		if err != nil {
			return nil, p.errorAt(cases, field, "cases must be a list")
		}
		for i := 0; iter.Next(); i++ {
			cv := iter.Value()
			casePath := join(field, fmt.Sprintf("cases[%d]", i))
			p.positions[casePath] = cv.Pos()

			key, err := p.key(cv.LookupPath(cue.ParsePath("key")), casePath)
			if err != nil {
				return nil, err
			}
			sub, err := p.parse(cv.LookupPath(cue.ParsePath("patch")), join(casePath, "patch"))
			if err != nil {
				return nil, err
			}
			table.Cases = append(table.Cases, Case{Key: key, Patch: sub})
		}
	}

	if ev := v.LookupPath(cue.ParsePath("else")); ev.Exists() {
		def, err := p.parse(ev, join(field, "else"))
		if err != nil {
			return nil, err
		}
		table.Default = def
	}

	expr, err := build(table)
	if err != nil {
		return nil, p.rebase(err, field)
	}
	return expr, nil
}

func (p *exprParser) parseThreshold(v cue.Value, field string) (ir.Expr, error) {
	name, err := v.LookupPath(cue.ParsePath("threshold")).String()
	if err != nil {
		return nil, p.errorAt(v, field, "threshold must be a string")
	}
	build, ok := Thresholds[name]
	if !ok {
		return nil, p.errorAt(v, field, "unknown threshold %q", name)
	}
	at, err := p.intField(v, field, "at")
	if err != nil {
		return nil, err
	}
	lower, err := p.parse(v.LookupPath(cue.ParsePath("lower")), join(field, "lower"))
	if err != nil {
		return nil, err
	}
	upper, err := p.parse(v.LookupPath(cue.ParsePath("upper")), join(field, "upper"))
	if err != nil {
		return nil, err
	}
	expr, err := build(at, lower, upper)
	if err != nil {
		return nil, p.rebase(err, field)
	}
	return expr, nil
}

// rebase prefixes the field of a builder error with the split's own path
// and resolves its position.
func (p *exprParser) rebase(err error, field string) error {
	if ce, ok := err.(*CompileError); ok {
		ce.Field = join(field, ce.Field)
		return p.locate(ce)
	}
	return err
}

func (p *exprParser) errorAt(v cue.Value, field, format string, args ...any) error {
	return &CompileError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Pos:     v.Pos(),
		Err:     ErrInvalidExpression,
	}
}

func (p *exprParser) intField(v cue.Value, field, name string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, p.errorAt(v, field, "%s is required", name)
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, p.errorAt(fv, join(field, name), "must be an integer")
	}
	return int(n), nil
}

func (p *exprParser) stringField(v cue.Value, field, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", p.errorAt(v, field, "%s is required", name)
	}
	s, err := fv.String()
	if err != nil {
		return "", p.errorAt(fv, join(field, name), "must be a string")
	}
	return s, nil
}

// paramField reads an integer or a parameter name (port, channel, data1,
// data2).
func (p *exprParser) paramField(v cue.Value, field, name string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if s, err := fv.String(); err == nil {
		ref, ok := paramNames[s]
		if !ok {
			return 0, p.errorAt(fv, join(field, name), "unknown parameter %q", s)
		}
		return ref, nil
	}
	return p.intField(v, field, name)
}

// key reads a dispatch key: an integer or a list of integers.
func (p *exprParser) key(v cue.Value, field string) (units.Key, error) {
	if !v.Exists() {
		return nil, p.errorAt(v, field, "key is required")
	}
	if n, err := v.Int64(); err == nil {
		return units.K(int(n)), nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, p.errorAt(v, join(field, "key"), "key must be an integer or a list of integers")
	}
	var k units.Key
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, p.errorAt(iter.Value(), join(field, "key"), "key elements must be integers")
		}
		k = append(k, int(n))
	}
	return k, nil
}

func (p *exprParser) keyList(v cue.Value, field string) ([]units.Key, error) {
	if !v.Exists() {
		return nil, p.errorAt(v, field, "args is required")
	}
	iter, err := v.List()
	if err != nil {
		return nil, p.errorAt(v, join(field, "args"), "args must be a list")
	}
	var keys []units.Key
	for iter.Next() {
		k, err := p.key(iter.Value(), join(field, "args"))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (p *exprParser) stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, p.errorAt(v, join(field, "args"), "args must be a list of strings")
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, p.errorAt(iter.Value(), join(field, "args"), "args must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// fieldPath renders the CUE path of v without quotes, e.g. patch.1.
func fieldPath(v cue.Value) string {
	sels := v.Path().Selectors()
	parts := make([]string, len(sels))
	for i, s := range sels {
		parts[i] = strings.Trim(s.String(), `"`)
	}
	return strings.Join(parts, ".")
}

// CompileSetup reads the setup and patch blocks of a CUE value into a
// compiled Setup.
func CompileSetup(root cue.Value) (*ir.Setup, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	p := newExprParser()

	setup := &ir.Setup{Config: ir.DefaultConfig()}
	sv := root.LookupPath(cue.ParsePath("setup"))
	if sv.Exists() {
		if err := p.parseConfig(sv, &setup.Config); err != nil {
			return nil, err
		}
		if dv := sv.LookupPath(cue.ParsePath("default_patch")); dv.Exists() {
			n, err := dv.Int64()
			if err != nil {
				return nil, p.errorAt(dv, "setup.default_patch", "must be an integer")
			}
			num := int(n)
			setup.DefaultPatch = &num
		}

		for _, slot := range []struct {
			name string
			dst  **ir.Patch
		}{
			{"control", &setup.Control},
			{"preprocess", &setup.Pre},
			{"postprocess", &setup.Post},
		} {
			v := sv.LookupPath(cue.ParsePath(slot.name))
			if !v.Exists() {
				continue
			}
			patch, err := p.compile(v, "setup."+slot.name)
			if err != nil {
				return nil, err
			}
			*slot.dst = patch
		}
	}

	pv := root.LookupPath(cue.ParsePath("patch"))
	if !pv.Exists() {
		return nil, &CompileError{
			Field:   "patch",
			Message: "at least one patch is required",
			Pos:     root.Pos(),
			Err:     ErrInvalidExpression,
		}
	}
	iter, err := pv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		label := strings.Trim(iter.Label(), `"`)
		field := "patch." + label
		num, err := strconv.Atoi(label)
		if err != nil {
			return nil, p.errorAt(iter.Value(), field, "patch label must be an integer")
		}
		entry, err := p.parseEntry(iter.Value(), field, num)
		if err != nil {
			return nil, err
		}
		setup.Patches = append(setup.Patches, entry)
	}
	slices.SortFunc(setup.Patches, func(a, b ir.PatchEntry) int { return a.Number - b.Number })

	return setup, nil
}

// parseEntry reads either a bare expression or {init, body}.
func (p *exprParser) parseEntry(v cue.Value, field string, num int) (ir.PatchEntry, error) {
	entry := ir.PatchEntry{Number: num}
	body := v.LookupPath(cue.ParsePath("body"))
	if v.IncompleteKind() != cue.StructKind || !body.Exists() {
		patch, err := p.compile(v, field)
		if err != nil {
			return entry, err
		}
		entry.Body = patch
		return entry, nil
	}

	patch, err := p.compile(body, join(field, "body"))
	if err != nil {
		return entry, err
	}
	entry.Body = patch
	if iv := v.LookupPath(cue.ParsePath("init")); iv.Exists() {
		initPatch, err := p.compile(iv, join(field, "init"))
		if err != nil {
			return entry, err
		}
		entry.Init = initPatch
	}
	return entry, nil
}

func (p *exprParser) parseConfig(sv cue.Value, cfg *ir.Config) error {
	if bv := sv.LookupPath(cue.ParsePath("backend")); bv.Exists() {
		s, err := bv.String()
		if err != nil || !ir.Backend(s).Valid() {
			return p.errorAt(bv, "setup.backend", "backend must be one of dummy, alsa, jack, jack-rt")
		}
		cfg.Backend = ir.Backend(s)
	}
	if cv := sv.LookupPath(cue.ParsePath("client_name")); cv.Exists() {
		s, err := cv.String()
		if err != nil {
			return p.errorAt(cv, "setup.client_name", "must be a string")
		}
		cfg.ClientName = s
	}
	if sil := sv.LookupPath(cue.ParsePath("silent")); sil.Exists() {
		b, err := sil.Bool()
		if err != nil {
			return p.errorAt(sil, "setup.silent", "must be a bool")
		}
		cfg.Silent = b
	}

	var err error
	if cfg.InPorts, cfg.InPortNames, err = p.ports(sv, "in_ports", cfg.InPorts); err != nil {
		return err
	}
	if cfg.OutPorts, cfg.OutPortNames, err = p.ports(sv, "out_ports", cfg.OutPorts); err != nil {
		return err
	}
	return nil
}

// ports reads a port count or a list of port names.
func (p *exprParser) ports(sv cue.Value, name string, def int) (int, []string, error) {
	v := sv.LookupPath(cue.ParsePath(name))
	if !v.Exists() {
		return def, nil, nil
	}
	field := "setup." + name
	if n, err := v.Int64(); err == nil {
		if n < 1 {
			return 0, nil, p.errorAt(v, field, "at least one port is required")
		}
		return int(n), nil, nil
	}
	names, err := p.stringList(v, field)
	if err != nil {
		return 0, nil, p.errorAt(v, field, "must be a port count or a list of port names")
	}
	if len(names) == 0 {
		return 0, nil, p.errorAt(v, field, "at least one port is required")
	}
	return len(names), names, nil
}
