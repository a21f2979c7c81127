package ir

import (
	"fmt"
	"strings"
)

// Expr is a node of a combinator tree: a Unit, a Chain or a Fork.
//
// This is a sealed interface; only types in this package implement it.
type Expr interface {
	exprNode()
}

// Chain composes Left and Right sequentially: every output of Left feeds
// every input of Right.
type Chain struct {
	Left  Expr
	Right Expr
}

func (Chain) exprNode() {}

// Fork composes its items in parallel. An empty Fork has no inputs and no
// outputs.
type Fork struct {
	Items []Expr
}

func (Fork) exprNode() {}

// ChainOf folds items into left-nested Chains. A single item is returned
// as is; no items yields nil, which the compiler rejects.
func ChainOf(items ...Expr) Expr {
	if len(items) == 0 {
		return nil
	}
	out := items[0]
	for _, next := range items[1:] {
		out = Chain{Left: out, Right: next}
	}
	return out
}

// ForkOf builds a Fork of items.
func ForkOf(items ...Expr) Fork {
	return Fork{Items: items}
}

// Then is shorthand for Chain{Left: a, Right: b}.
func Then(a, b Expr) Chain {
	return Chain{Left: a, Right: b}
}

// FormatExpr renders an expression in arrow notation for debug logs,
// e.g. "key_filter[0,60) >> [transpose(12), pass]".
func FormatExpr(e Expr) string {
	var b strings.Builder
	formatExpr(&b, e)
	return b.String()
}

func formatExpr(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case Unit:
		b.WriteString(FormatUnit(n))
	case Chain:
		formatExpr(b, n.Left)
		b.WriteString(" >> ")
		if _, nested := n.Right.(Chain); nested {
			b.WriteString("(")
			formatExpr(b, n.Right)
			b.WriteString(")")
		} else {
			formatExpr(b, n.Right)
		}
	case Fork:
		b.WriteString("[")
		for i, item := range n.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			formatExpr(b, item)
		}
		b.WriteString("]")
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

// FormatUnit renders a single unit.
func FormatUnit(u Unit) string {
	var b strings.Builder
	if u.Negated {
		b.WriteString("~")
	}
	b.WriteString(string(u.Kind))
	p := u.Params
	switch {
	case p.Ranged:
		fmt.Fprintf(&b, "[%d,%d)", p.Lower, p.Upper)
	case len(p.Types) > 0:
		fmt.Fprintf(&b, "%v", p.Types)
	case len(p.Data) > 0:
		fmt.Fprintf(&b, "(% X)", p.Data)
	case len(p.Values) > 0:
		fmt.Fprintf(&b, "%v", p.Values)
	case p.Mode != 0:
		fmt.Fprintf(&b, "(%g, %s)", p.Factor, p.Mode)
	case p.Handler != "":
		fmt.Fprintf(&b, "(%q)", p.Handler)
	case u.Kind == KindPort || u.Kind == KindChannel || u.Kind == KindTranspose || u.Kind == KindSceneSwitch:
		fmt.Fprintf(&b, "(%d)", p.Amount)
	}
	return b.String()
}
