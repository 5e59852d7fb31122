package passes

import (
	"github.com/you-not-fish/flowopt/internal/flow"
)

// layout improves block order: it spreads rarity, tests dominant switch
// cases first, pulls hot jump targets up, straightens jumps to
// conditionals and moves cold runs to the end of their region.
func layout(c *Context) bool {
	changed := false
	for _, step := range []func(*Context) bool{
		expandRarelyRun,
		peelDominantCases,
		relocateHotTargets,
		straightenBranches,
		relocateRareRuns,
	} {
		if step(c) {
			changed = true
		}
	}
	return changed
}

// expandRarelyRun propagates rarity until nothing changes. A block turns
// cold when all of its successors are cold (jumping, falling or calling
// a finally into cold code) or when all of its predecessors are. The two
// halves of a call-finally pair are cold together.
func expandRarelyRun(c *Context) bool {
	g := c.Graph
	r := c.Reach()
	changed := false
	for again := true; again; {
		again = false

		for b := range g.Blocks() {
			if pairRarity(c, b) {
				again, changed = true, true
			}
			if b.IsRarelyRun() || b.HasProfileWeight() {
				continue
			}
			var reason string
			switch next := b.Next(); b.Kind {
			case flow.JumpAlways:
				if b.Target.IsRarelyRun() {
					reason = "jump to a rarely run block"
				}
			case flow.JumpCallFinally:
				if b.IsCallFinallyPair() && next != nil && next.IsRarelyRun() {
					reason = "call-finally continuing into a rarely run block"
				}
			case flow.JumpFallthrough:
				if next != nil && next.IsRarelyRun() {
					reason = "falls into a rarely run block"
				}
			case flow.JumpCond:
				if next != nil && next.IsRarelyRun() && b.Target.IsRarelyRun() {
					reason = "both arms are rarely run"
				}
			}
			if reason != "" {
				c.Logf("mark rarely run", "block", b, "reason", reason)
				b.MakeRarelyRun()
				again, changed = true, true
			}
		}

		for b := range g.Blocks() {
			if b.IsRarelyRun() || b.HasProfileWeight() || len(b.Preds) == 0 {
				continue
			}
			if r.IsEntry(b) || g.IsHandlerBeg(b) {
				continue
			}
			cold := true
			for _, e := range b.Preds {
				if !e.Source.IsRarelyRun() {
					cold = false
					break
				}
			}
			if !cold {
				continue
			}
			c.Logf("mark rarely run", "block", b, "reason", "all predecessors are rarely run")
			b.MakeRarelyRun()
			again, changed = true, true
		}
	}
	return changed
}

// pairRarity makes both halves of the call-finally pair starting at b
// cold when either one is.
func pairRarity(c *Context, b *flow.Block) bool {
	next := b.Next()
	if !b.IsCallFinallyPair() || next == nil || b.IsRarelyRun() == next.IsRarelyRun() {
		return false
	}
	if b.IsRarelyRun() {
		c.Logf("mark rarely run", "block", next, "reason", "continuation of a rarely run call-finally")
		next.MakeRarelyRun()
	} else {
		c.Logf("mark rarely run", "block", b, "reason", "call-finally of a rarely run continuation")
		b.MakeRarelyRun()
	}
	return true
}

// straightenBranches rewrites an unconditional jump to a conditional that
// branches back to the jump's next block into a copy of the conditional
// with the sense reversed, when the test is cheap enough to duplicate.
//
//	j:    goto d              j:    if !c goto N
//	T:    ...            =>   T:    ...
//	d:    if c goto T         d:    if c goto T
//	N:    ...                 N:    ...
func straightenBranches(c *Context) bool {
	g := c.Graph
	changed := false
	for b := range g.Blocks() {
		if optimizeBranch(c, b) {
			changed = true
		}
	}
	return changed
}

func optimizeBranch(c *Context, j *flow.Block) bool {
	g := c.Graph
	h := &c.Config.Heuristics

	if j.Kind != flow.JumpAlways || j.Has(flow.FlagKeepAlways) || j.IsPairTail() {
		return false
	}
	d := j.Target
	next := j.Next()
	if d == j || d == next || d.Kind != flow.JumpCond || next == nil || d.Target != next {
		return false
	}
	if d.Next() == nil || !flow.SameTryRegion(j, d) {
		return false
	}

	rareJump, rareDest, rareNext := j.IsRarelyRun(), d.IsRarelyRun(), next.IsRarelyRun()
	if g.UsingProfile && weighed(j) && weighed(d) && weighed(next) {
		wj, wd, wn := float64(j.Weight), float64(d.Weight), float64(next.Weight)
		if wj*h.HotColdRatio < wd {
			rareJump = true
		}
		if wn*h.HotColdRatio < wd {
			rareNext = true
		}
		if wd*h.HotColdRatio < wj && wd*h.HotColdRatio < wn {
			rareDest = true
		}
	}

	budget := h.DupCostBase
	if rareDest != rareJump {
		budget += h.DupCostCrossRegion
	}
	if rareDest != rareNext {
		budget += h.DupCostCrossRegion
	}
	if d.Stmts.Cost() > budget {
		return false
	}

	dup := d.Stmts.Clone()
	if !dup.ReverseBranch() {
		return false
	}

	c.Logf("straighten branch", "block", j, "cond", d, "cost", d.Stmts.Cost(), "budget", budget)

	var moved flow.Weight
	if e := d.PredEdge(j); e != nil {
		moved, _ = e.Weight()
	}

	j.Stmts.Append(dup)
	g.SetKind(j, flow.JumpCond, d.Next())

	switch {
	case g.EdgeWeightsValid && d.HasProfileWeight():
		if d.Weight > moved {
			d.Weight -= moved
		} else {
			d.Weight = flow.WeightZero
		}
	case !d.HasProfileWeight():
		// Estimated weights: a loop test loses one entry per trip.
		w := j.Weight
		if d.Has(flow.FlagLoopHead) {
			w /= flow.Weight(h.LoopWeightScale)
		}
		if d.Weight > w {
			d.Weight -= w
		}
	}
	return true
}

// weighed reports whether b's weight can be trusted for layout.
func weighed(b *flow.Block) bool {
	return b.HasProfileWeight() || b.IsRarelyRun()
}

// relocateHotTargets moves the taken target of a conditional right
// after it, reversing the test, when profiled edge weights show the jump
// is taken HotJumpRatio times as often as the fall-through.
//
//	b: if c goto T        b: if !c goto N
//	N: ...           =>   T: ...
//	...                   N: ...
//	T: ...
func relocateHotTargets(c *Context) bool {
	g := c.Graph
	if !g.UsingProfile || !g.EdgeWeightsValid {
		return false
	}
	changed := false
	for b := range g.Blocks() {
		if b.Kind == flow.JumpCond && hoistHotTarget(c, b) {
			changed = true
		}
	}
	return changed
}

func hoistHotTarget(c *Context, b *flow.Block) bool {
	g := c.Graph
	h := &c.Config.Heuristics
	t, next := b.Target, b.Next()

	if t == b || t == next || next == nil || t.RefCount() != 1 || t.IsRarelyRun() {
		return false
	}
	if !flow.SameEHRegion(b, t) || !movable(g, t) || g.InFilter(t) ||
		t.Kind == flow.JumpCallFinally || t.IsPairTail() {
		return false
	}
	if p := t.Prev(); p != nil && p.FallsThrough() {
		return false
	}

	taken, fall := t.PredEdge(b), next.PredEdge(b)
	if taken == nil || fall == nil {
		return false
	}
	wt, exactT := taken.Weight()
	wf, exactF := fall.Weight()
	if !exactT || !exactF || wt == flow.WeightZero || float64(wt) < float64(wf)*h.HotJumpRatio {
		return false
	}
	if !b.Stmts.ReverseBranch() {
		return false
	}

	c.Logf("move hot target", "block", b, "dest", t, "taken", wt, "fall", wf)
	moveBlock(g, t, b)
	// The test is reversed: jump to the old next, fall into t.
	b.Target = next
	return true
}

// relocateRareRuns moves each maximal run of rarely run blocks after the
// last block of its innermost region, or to the end of the graph.
func relocateRareRuns(c *Context) bool {
	g := c.Graph
	changed := false
	for b := g.First(); b != nil; {
		last := rareRun(g, b)
		if last == nil {
			b = b.Next()
			continue
		}
		after := last.Next()
		if moveRareRun(c, b, last) {
			changed = true
		}
		b = after
	}
	return changed
}

// rareRun returns the last block of the run of movable rarely run
// blocks starting at b, or nil.
func rareRun(g *flow.Graph, b *flow.Block) *flow.Block {
	if !rareMovable(g, b) {
		return nil
	}
	last := b
	for n := last.Next(); n != nil && rareMovable(g, n) && flow.SameEHRegion(b, n); n = n.Next() {
		last = n
	}
	return last
}

func rareMovable(g *flow.Graph, b *flow.Block) bool {
	return b.IsRarelyRun() &&
		movable(g, b) &&
		!g.InFilter(b) &&
		b.Kind != flow.JumpCallFinally &&
		!b.IsPairTail()
}

func moveRareRun(c *Context, first, last *flow.Block) bool {
	g := c.Graph
	dest := g.RegionLast(first)
	if dest == nil || dest.FallsThrough() {
		return false
	}

	// Only worth it if something warm sits between the run and dest.
	warm := false
	for x := last.Next(); x != nil; x = x.Next() {
		if !x.IsRarelyRun() {
			warm = true
		}
		if x == dest {
			break
		}
	}
	if !warm {
		return false
	}

	prev := first.Prev()
	exit := last.Next()
	switch {
	case prev == nil:
		return false
	case prev.Kind == flow.JumpCond:
		if prev.Target != exit || !prev.Stmts.ReverseBranch() {
			return false
		}
	case prev.Kind == flow.JumpCallFinally && !prev.Has(flow.FlagRetlessCall):
		return false
	}

	c.Logf("move rarely run blocks", "first", first, "last", last, "after", dest)

	switch prev.Kind {
	case flow.JumpFallthrough:
		g.SetKind(prev, flow.JumpAlways, first)
	case flow.JumpCond:
		// Reversed above: jump into the run, fall into exit. The arms
		// are the same pair, so no edge changes.
		prev.Target = first
	}

	if last.FallsThrough() && exit != nil {
		switch last.Kind {
		case flow.JumpFallthrough:
			g.SetKind(last, flow.JumpAlways, exit)
		default:
			fix := g.NewBlockAfter(flow.JumpAlways, last)
			fix.Target = exit
			fix.Set(flow.FlagInternal)
			fix.MakeRarelyRun()
			g.RemoveRefPred(exit, last)
			g.AddRefPred(fix, last)
			g.AddRefPred(exit, fix)
			last = fix
		}
	}

	g.MoveAfter(first, last, dest)
	g.ExtendRegionLast(dest, last)
	return true
}
