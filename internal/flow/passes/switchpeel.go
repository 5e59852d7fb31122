package passes

import (
	"github.com/you-not-fish/flowopt/internal/flow"
)

// peelDominantCases tests the dominant case of a profiled switch ahead
// of the switch itself.
//
//	b: switch v [A, B, C]       b: if v == 1 goto B
//	                       =>   s: switch v [A, B, C]
//
// The switch keeps every arm; its edge into the peeled target is left
// with no weight.
func peelDominantCases(c *Context) bool {
	g := c.Graph
	if !g.UsingProfile || !g.EdgeWeightsValid {
		return false
	}
	var switches []*flow.Block
	for b := range g.Blocks() {
		if b.Kind == flow.JumpSwitch {
			switches = append(switches, b)
		}
	}
	changed := false
	for _, b := range switches {
		if peelDominantCase(c, b) {
			changed = true
		}
	}
	return changed
}

// dominantArm returns the index and target of the arm of b that takes at
// least pct percent of b's weight, or -1.
func dominantArm(b *flow.Block, pct float64) (int, *flow.Block) {
	if !b.HasProfileWeight() || b.Weight == flow.WeightZero {
		return -1, nil
	}
	for i, t := range b.Switch {
		e := t.PredEdge(b)
		if e == nil || e.DupCount != 1 {
			continue
		}
		w, exact := e.Weight()
		if exact && float64(w)*100 >= float64(b.Weight)*pct {
			return i, t
		}
	}
	return -1, nil
}

func peelDominantCase(c *Context, b *flow.Block) bool {
	g := c.Graph
	arm, t := dominantArm(b, c.Config.Heuristics.DominantCasePercent)
	if t == nil || t == b || b.Has(flow.FlagKeepAlways) || g.IsRegionLast(b) {
		return false
	}
	sw, ok := b.Stmts.PeelCase(arm)
	if !ok {
		return false
	}
	taken, _ := t.PredEdge(b).Weight()

	type bounds struct{ lo, hi flow.Weight }
	weights := make(map[*flow.Block]bounds, len(b.Switch))
	for _, a := range b.UniqueSuccs() {
		e := a.PredEdge(b)
		weights[a] = bounds{e.WeightMin, e.WeightMax}
	}
	arms := append([]*flow.Block(nil), b.Switch...)

	c.Logf("peel dominant switch case", "block", b, "arm", arm, "dest", t, "weight", taken)

	s := g.NewBlockAfter(flow.JumpSwitch, b)
	s.Stmts = sw
	s.Flags |= b.Flags&(flow.FlagProfileWeight|flow.FlagGCSafe) | flow.FlagInternal
	s.Weight = max(b.Weight-taken, flow.WeightZero)

	g.SetKind(b, flow.JumpCond, t)
	g.SetKind(s, flow.JumpSwitch, nil, arms...)

	t.PredEdge(b).SetWeights(taken, taken)
	s.PredEdge(b).SetWeights(s.Weight, s.Weight)
	for a, w := range weights {
		e := a.PredEdge(s)
		if a == t {
			e.SetWeights(flow.WeightZero, flow.WeightZero)
		} else {
			e.SetWeights(w.lo, w.hi)
		}
	}
	return true
}
