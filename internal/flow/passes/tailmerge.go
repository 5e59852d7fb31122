package passes

import (
	"github.com/you-not-fish/flowopt/internal/flow"
)

// tailMerge moves a statement that several predecessors of a join end
// with into one new block in front of the join.
//
//	p1: a; s; goto j          p1: a; goto m
//	p2: b; s; goto j    =>    p2: b; goto m
//	j:  ...                   m:  s; goto j
//	                          j:  ...
func tailMerge(c *Context) bool {
	if !c.Config.TailMerge {
		return false
	}
	changed := false
	for j := range c.Graph.Blocks() {
		if mergeTails(c, j) {
			changed = true
		}
	}
	return changed
}

// tailGroup returns the largest set of j's predecessors that only go to
// j and end in the same statement.
func tailGroup(g *flow.Graph, j *flow.Block) []*flow.Block {
	var cands []*flow.Block
	for _, e := range j.Preds {
		p := e.Source
		if e.DupCount != 1 || p == j || p.IsEmpty() || !flow.SameEHRegion(p, j) {
			continue
		}
		if p.Has(flow.FlagKeepAlways) || p.IsPairTail() || g.IsRegionLast(p) {
			continue
		}
		switch {
		case p.Kind == flow.JumpAlways && p.Target == j:
		case p.Kind == flow.JumpFallthrough && p.Next() == j:
		default:
			continue
		}
		cands = append(cands, p)
	}

	var best []*flow.Block
	for i, p := range cands {
		group := []*flow.Block{p}
		for _, q := range cands[i+1:] {
			if p.Stmts.SameTail(q.Stmts) {
				group = append(group, q)
			}
		}
		if len(group) > len(best) {
			best = group
		}
	}
	if len(best) < 2 {
		return nil
	}
	return best
}

func mergeTails(c *Context, j *flow.Block) bool {
	g := c.Graph
	if j.NumPreds() < 2 {
		return false
	}
	group := tailGroup(g, j)
	if group == nil {
		return false
	}

	// The block falling into j, if any, keeps its place in front of m.
	anchor := group[0]
	for _, p := range group {
		if p.Kind == flow.JumpFallthrough {
			anchor = p
		}
	}

	var lo, hi, w flow.Weight
	rare, profiled := true, true
	for _, p := range group {
		e := j.PredEdge(p)
		lo += e.WeightMin
		hi += e.WeightMax
		w += p.Weight
		rare = rare && p.IsRarelyRun()
		profiled = profiled && p.HasProfileWeight()
	}

	c.Logf("merge common tail", "join", j, "preds", len(group), "anchor", anchor)

	kind := flow.JumpAlways
	if anchor.Kind == flow.JumpFallthrough {
		kind = flow.JumpFallthrough
	}
	m := g.NewBlockAfter(kind, anchor)
	m.Stmts = anchor.Stmts.CutTail()
	m.Set(flow.FlagInternal)
	m.Weight = w
	if profiled {
		m.Set(flow.FlagProfileWeight)
	}
	if rare {
		m.MakeRarelyRun()
	}
	if kind == flow.JumpAlways {
		m.Target = j
	}

	for _, p := range group {
		if p != anchor {
			p.Stmts.CutTail()
		}
		if p.Kind == flow.JumpAlways {
			g.Retarget(p, j, m)
			continue
		}
		e := j.PredEdge(p)
		plo, phi := e.WeightMin, e.WeightMax
		g.RemoveRefPred(j, p)
		g.AddRefPred(m, p).SetWeights(plo, phi)
	}
	g.AddRefPred(j, m).SetWeights(lo, hi)
	return true
}
