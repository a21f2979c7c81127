// Package compiler turns combinator expressions into executable patch
// graphs.
//
// Compile is the graph compiler: every Unit occurrence becomes a fresh
// module, Chains connect all outputs of the left operand to all inputs of
// the right one, and Forks place their items side by side. The result is
// wrapped between a synthetic Input (ID 0) and Output (ID 1).
//
// BuildSplit and BuildThreshold expand dispatch tables into plain
// expressions, and the loader in load.go reads both from CUE.
package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/patchwire/internal/ir"
)

// Compile builds a Patch from an expression. On error no Patch is returned.
func Compile(expr ir.Expr) (*ir.Patch, error) {
	return CompileAt(expr, "")
}

// CompileAt is Compile with error fields rooted at field, e.g. "patch.1".
func CompileAt(expr ir.Expr, field string) (*ir.Patch, error) {
	b := &builder{
		modules: []ir.Module{
			{ID: ir.InputID, Kind: ir.ModuleInput},
			{ID: ir.OutputID, Kind: ir.ModuleOutput},
		},
	}

	ins, outs, err := b.build(expr, field)
	if err != nil {
		return nil, err
	}

	for _, id := range ins {
		b.attach(ir.InputID, id)
	}
	for _, id := range outs {
		b.attach(id, ir.OutputID)
	}

	return &ir.Patch{
		Modules: b.modules,
		Input:   ir.InputID,
		Output:  ir.OutputID,
	}, nil
}

// builder accumulates modules while walking the tree. IDs are indices into
// modules and are assigned in depth-first left-to-right order.
type builder struct {
	modules []ir.Module
}

func (b *builder) add(u ir.Unit) int {
	id := len(b.modules)
	unit := u
	b.modules = append(b.modules, ir.Module{ID: id, Kind: ir.ModuleUnit, Unit: &unit})
	return id
}

// attach adds the edge from -> to unless it already exists.
func (b *builder) attach(from, to int) {
	m := &b.modules[from]
	if slices.Contains(m.Next, to) {
		return
	}
	m.Next = append(m.Next, to)
}

func (b *builder) build(e ir.Expr, field string) (ins, outs []int, err error) {
	switch n := e.(type) {
	case ir.Unit:
		if !n.Kind.Valid() {
			return nil, nil, invalidExpr(field, "unknown unit kind %q", n.Kind)
		}
		if n.Negated && !n.IsFilter() {
			return nil, nil, invalidExpr(field, "%s cannot be inverted", n.Kind)
		}
		id := b.add(n)
		return []int{id}, []int{id}, nil

	case *ir.Unit:
		if n == nil {
			return nil, nil, invalidExpr(field, "nil unit")
		}
		return b.build(*n, field)

	case ir.Chain:
		return b.buildChain(n, field)

	case ir.Fork:
		for i, item := range n.Items {
			in, out, err := b.build(item, join(field, fmt.Sprintf("fork[%d]", i)))
			if err != nil {
				return nil, nil, err
			}
			ins = append(ins, in...)
			outs = append(outs, out...)
		}
		return ins, outs, nil

	case nil:
		return nil, nil, invalidExpr(field, "missing expression")

	default:
		return nil, nil, invalidExpr(field, "unsupported node %T", e)
	}
}

// buildChain compiles a left-nested Chain as the sequence it folds, so
// field paths match the chain lists of the CUE source.
func (b *builder) buildChain(c ir.Chain, field string) (ins, outs []int, err error) {
	items := chainItems(c)

	var prevOuts []int
	for i, item := range items {
		path := join(field, fmt.Sprintf("chain[%d]", i))
		in, out, err := b.build(item, path)
		if err != nil {
			return nil, nil, err
		}

		if i == 0 {
			ins = in
		} else {
			if len(prevOuts) == 0 {
				return nil, nil, &CompileError{
					Field:   join(field, fmt.Sprintf("chain[%d]", i-1)),
					Message: "left operand of chain has no outputs",
					Err:     ErrEmptyChainOperand,
				}
			}
			if len(in) == 0 {
				return nil, nil, &CompileError{
					Field:   path,
					Message: "right operand of chain has no inputs",
					Err:     ErrEmptyChainOperand,
				}
			}
			for _, from := range prevOuts {
				for _, to := range in {
					b.attach(from, to)
				}
			}
		}
		prevOuts = out
	}

	return ins, prevOuts, nil
}

// chainItems unfolds Chain{Chain{a, b}, c} into [a, b, c].
func chainItems(c ir.Chain) []ir.Expr {
	var rev []ir.Expr
	var cur ir.Expr = c
	for {
		ch, ok := cur.(ir.Chain)
		if !ok {
			rev = append(rev, cur)
			break
		}
		rev = append(rev, ch.Right)
		cur = ch.Left
	}
	slices.Reverse(rev)
	return rev
}

func join(field, seg string) string {
	if field == "" {
		return seg
	}
	return field + "." + seg
}
