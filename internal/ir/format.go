package ir

import (
	"fmt"
	"strings"
)

// Format renders the expression rooted at id as JavaScript-like text,
// e.g. "(x + 0) == (1 * x)". Phis are printed by reference ("phi3") so
// loop cycles terminate.
func (g *Graph) Format(id NodeID) string {
	var b strings.Builder
	g.format(&b, id, true)
	return b.String()
}

func (g *Graph) format(b *strings.Builder, id NodeID, top bool) {
	if id == NoNode {
		b.WriteString("<none>")
		return
	}
	n := g.nodes[id]
	switch n.Kind {
	case KindConstant:
		b.WriteString(n.Value().String())
	case KindParameter:
		b.WriteString(g.ParamName(int(n.Aux)))
	case KindPhi:
		fmt.Fprintf(b, "phi%d", n.ID)
	case KindStaticAssert:
		b.WriteString("static_assert(")
		g.format(b, n.Inputs[0], true)
		b.WriteString(")")
	case KindNegate, KindBooleanNot:
		b.WriteString(n.Kind.Symbol())
		g.format(b, n.Inputs[0], false)
	default:
		if !n.Kind.IsBinary() {
			fmt.Fprintf(b, "%s%v", n.Kind, n.Inputs)
			return
		}
		if !top {
			b.WriteString("(")
		}
		g.format(b, n.Inputs[0], false)
		fmt.Fprintf(b, " %s ", n.Kind.Symbol())
		g.format(b, n.Inputs[1], false)
		if !top {
			b.WriteString(")")
		}
	}
}

// Dump lists every node of the arena, one per line:
//
//	#3 Add:Signed32|OtherNumber [#1 #2]
func (g *Graph) Dump() string {
	var b strings.Builder
	for _, n := range g.nodes {
		fmt.Fprintf(&b, "#%d %s", n.ID, n.Kind)
		switch n.Kind {
		case KindConstant:
			fmt.Fprintf(&b, "(%s)", n.Value())
		case KindParameter:
			fmt.Fprintf(&b, "(%s)", g.ParamName(int(n.Aux)))
		case KindPhi:
			fmt.Fprintf(&b, "(merge=%d)", PhiMerge(n.Aux))
		}
		fmt.Fprintf(&b, ":%s", n.Type)
		if len(n.Inputs) > 0 {
			b.WriteString(" [")
			for i, in := range n.Inputs {
				if i > 0 {
					b.WriteString(" ")
				}
				fmt.Fprintf(&b, "#%d", in)
			}
			b.WriteString("]")
		}
		if n.Canon != NoNode && n.Canon != n.ID {
			fmt.Fprintf(&b, " canon=#%d", n.Canon)
		}
		if n.Erased {
			b.WriteString(" erased")
		}
		b.WriteString("\n")
	}
	return b.String()
}
