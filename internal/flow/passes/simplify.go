package passes

import (
	"github.com/you-not-fish/flowopt/internal/flow"
)

// maxRevisits bounds how often one block is reconsidered in a row
// before the walk moves on.
const maxRevisits = 8

// simplify applies local rewrites to every block until a full walk
// changes nothing.
func simplify(c *Context) bool {
	g := c.Graph
	changed := false
	for round := 0; ; round++ {
		if round == c.Config.MaxSimplifyRounds {
			g.Fatalf("simplification did not settle in %d rounds", round)
		}
		if !simplifyWalk(c) {
			break
		}
		changed = true
	}
	return changed
}

func simplifyWalk(c *Context) bool {
	g := c.Graph
	changed := false
	revisits := 0
	for b := g.First(); b != nil; {
		prev := b.Prev()
		if simplifyBlock(c, b) {
			changed = true
			if b.Has(flow.FlagRemoved) {
				revisits = 0
				if prev != nil && !prev.Has(flow.FlagRemoved) {
					b = prev.Next()
				} else {
					b = g.First()
				}
				continue
			}
			if revisits < maxRevisits {
				revisits++
				continue
			}
		}
		revisits = 0
		b = b.Next()
	}
	return changed
}

// simplifyBlock tries each rewrite on b in turn and reports whether one fired.
func simplifyBlock(c *Context, b *flow.Block) bool {
	g := c.Graph

	if b.Kind == flow.JumpAlways && c.Config.TailDuplication && tailDuplicate(c, b) {
		return true
	}

	if b.Kind == flow.JumpAlways || b.Kind == flow.JumpCond {
		dest := b.Target
		next := b.Next()

		if dest == next && optimizeBranchToNext(c, b) {
			return true
		}
		if isEmptyHop(dest) && optimizeBranchToEmptyHop(c, b, dest) {
			return true
		}
		if b.Kind == flow.JumpCond && isEmptyHop(next) && optimizeCondAroundHop(c, b, next) {
			return true
		}
	}

	if next := b.Next(); g.CanCompact(b, next) {
		c.Logf("compact", "block", b, "next", next)
		g.Compact(b, next)
		return true
	}

	if removeUnreferenced(c, b) {
		return true
	}

	if b.Kind == flow.JumpSwitch && optimizeSwitch(c, b) {
		return true
	}

	if b.IsEmpty() && optimizeEmptyBlock(c, b) {
		return true
	}

	return false
}

// isEmptyHop reports whether b is an empty unconditional jump that can
// be bypassed.
func isEmptyHop(b *flow.Block) bool {
	return b != nil &&
		b.Kind == flow.JumpAlways &&
		b.IsEmpty() &&
		b.Target != b &&
		!b.Has(flow.FlagKeepAlways) &&
		!b.IsPairTail()
}

// optimizeBranchToNext removes a jump to the lexically next block. A
// conditional keeps the side effects of its condition.
func optimizeBranchToNext(c *Context, b *flow.Block) bool {
	g := c.Graph
	switch b.Kind {
	case flow.JumpAlways:
		if b.Has(flow.FlagKeepAlways) || b.IsPairTail() {
			return false
		}
	case flow.JumpCond:
		b.Stmts.DropBranch()
	default:
		return false
	}
	c.Logf("branch to next", "block", b, "kind", b.Kind)
	g.SetKind(b, flow.JumpFallthrough, nil)
	return true
}

// optimizeBranchToEmptyHop makes b jump straight to the target of the
// empty unconditional block hop.
func optimizeBranchToEmptyHop(c *Context, b, hop *flow.Block) bool {
	g := c.Graph
	dest := hop.Target
	if !flow.SameTryRegion(b, dest) && dest.TryIndex != 0 {
		return false
	}

	if g.EdgeWeightsValid && hop.HasProfileWeight() {
		in := hop.PredEdge(b)
		w, exact := in.Weight()
		if !exact {
			hop.Clear(flow.FlagProfileWeight)
		}
		if hop.Weight > w {
			hop.Weight -= w
		} else {
			hop.Weight = flow.WeightZero
		}
		if out := dest.PredEdge(hop); out != nil {
			lo, hi := out.WeightMin-in.WeightMin, out.WeightMax-in.WeightMin
			out.SetWeights(max(lo, 0), max(hi, 0))
		}
	}

	c.Logf("bypass empty jump", "block", b, "hop", hop, "dest", dest)
	g.Retarget(b, hop, dest)
	return true
}

// optimizeCondAroundHop handles a conditional b whose fall-through hop
// is an empty unconditional jump.
//
//	b:   if c goto dest      b:   if !c goto X
//	hop: goto X          =>  dest: ...
//	dest: ...
//
// When dest is elsewhere and joins nothing, it is first moved after hop.
// When dest is X the condition is irrelevant. Nothing is done while a
// profile is in use but its edge weights are not.
func optimizeCondAroundHop(c *Context, b, hop *flow.Block) bool {
	g := c.Graph
	dest := b.Target
	x := hop.Target

	if g.UsingProfile && !g.EdgeWeightsValid {
		return false
	}
	if hop.RefCount() != 1 || !flow.SameEHRegion(b, hop) ||
		hop.Has(flow.FlagDontRemove) || hop == g.ReturnBlock ||
		!g.CanRemoveEmptyBlock(hop) {
		return false
	}

	switch {
	case dest == x:
		c.Logf("condition irrelevant", "block", b, "dest", dest)
		b.Stmts.DropBranch()
		g.SetKind(b, flow.JumpAlways, dest)
		return true

	case dest == hop.Next():
		if !b.Stmts.ReverseBranch() {
			return false
		}
		c.Logf("reverse around empty jump", "block", b, "hop", hop, "dest", x)
		g.Retarget(b, dest, x)
		g.RemoveRefPred(hop, b)
		g.RemoveBlock(hop)
		g.AddRefPred(dest, b)
		return true

	default:
		return moveJoinFreeTarget(c, b, hop)
	}
}

// moveJoinFreeTarget relocates b's taken target right after hop so the
// reversal above applies. The target must have b as its only
// predecessor, lie later in the same region and share b's rarity.
func moveJoinFreeTarget(c *Context, b, hop *flow.Block) bool {
	g := c.Graph
	dest := b.Target
	h := &c.Config.Heuristics

	if dest.RefCount() != 1 || hop.Target.NumPreds() < 2 {
		return false
	}
	if !flow.SameEHRegion(b, dest) || dest.IsRarelyRun() != b.IsRarelyRun() {
		return false
	}
	if !movable(g, dest) || dest.Kind == flow.JumpCallFinally || dest.IsPairTail() {
		return false
	}
	if p := dest.Prev(); p != nil && p.FallsThrough() {
		return false
	}
	if !follows(hop, dest) {
		return false
	}
	if !b.Stmts.ReverseBranch() {
		return false
	}
	b.Stmts.ReverseBranch()
	if g.UsingProfile && dest.HasProfileWeight() && hop.HasProfileWeight() &&
		float64(dest.Weight)*h.HotColdRatio < float64(hop.Weight) {
		return false
	}

	c.Logf("move join-free target", "block", b, "dest", dest, "after", hop)
	moveBlock(g, dest, hop)
	return true
}

// moveBlock moves b after the given block. If b fell through, an
// explicit jump to its old next block follows it.
func moveBlock(g *flow.Graph, b, after *flow.Block) {
	next := b.Next()
	g.MoveAfter(b, b, after)
	if !b.FallsThrough() || next == nil {
		return
	}
	fix := g.NewBlockAfter(flow.JumpAlways, b)
	fix.Target = next
	fix.Set(flow.FlagInternal)
	fix.Weight = b.Weight
	fix.Flags |= b.Flags & (flow.FlagRunRarely | flow.FlagProfileWeight)
	g.RemoveRefPred(next, b)
	g.AddRefPred(fix, b)
	g.AddRefPred(next, fix)
}

// follows reports whether b comes after a in lexical order.
func follows(a, b *flow.Block) bool {
	for x := a.Next(); x != nil; x = x.Next() {
		if x == b {
			return true
		}
	}
	return false
}

// movable reports whether layout may relocate b.
func movable(g *flow.Graph, b *flow.Block) bool {
	return b != g.First() &&
		!b.Has(flow.FlagDontMove) &&
		!b.Has(flow.FlagDontRemove) &&
		!g.IsTryBeg(b) && !g.IsHandlerBeg(b) && !g.IsRegionLast(b)
}

// removeUnreferenced deletes b if nothing jumps to it but itself.
func removeUnreferenced(c *Context, b *flow.Block) bool {
	g := c.Graph
	if b == g.First() || b.Has(flow.FlagDontRemove) || b.Has(flow.FlagThrowHelper) || b == g.ReturnBlock {
		return false
	}
	if b.IsPairTail() || g.IsTryBeg(b) || g.IsHandlerBeg(b) {
		return false
	}
	if c.Config.RootContinuations && b.Has(flow.FlagFinallyTarget) {
		return false
	}
	for _, e := range b.Preds {
		if e.Source != b {
			return false
		}
	}
	if len(b.Preds) == 0 {
		c.Logf("remove unreferenced block", "block", b)
	} else {
		c.Logf("remove isolated loop", "block", b)
	}
	g.RemoveBlock(b)
	return true
}

// optimizeSwitch bypasses empty jumps on switch arms and reduces a switch
// with one distinct successor to a jump, and one with two arms, the
// second being the next block, to a conditional.
func optimizeSwitch(c *Context, b *flow.Block) bool {
	g := c.Graph
	changed := false

	for again := true; again; {
		again = false
		for _, s := range b.Switch {
			if !isEmptyHop(s) || (!flow.SameTryRegion(b, s.Target) && s.Target.TryIndex != 0) {
				continue
			}
			if hopCycle(g, s) {
				continue
			}
			if b.HasProfileWeight() && s.HasProfileWeight() {
				if s.Weight > b.Weight {
					s.Weight -= b.Weight
				} else {
					s.Weight = flow.WeightZero
				}
			}
			c.Logf("switch arm bypasses empty jump", "block", b, "hop", s, "dest", s.Target)
			g.Retarget(b, s, s.Target)
			changed = true
			again = true
			break
		}
	}

	switch succs := b.UniqueSuccs(); {
	case len(succs) == 1:
		c.Logf("switch to jump", "block", b, "dest", succs[0])
		b.Stmts.DropBranch()
		g.SetKind(b, flow.JumpAlways, succs[0])
		return true
	case len(b.Switch) == 2 && b.Switch[1] == b.Next():
		if !b.Stmts.SwitchToCond() {
			return changed
		}
		c.Logf("switch to conditional", "block", b, "dest", b.Switch[0])
		g.SetKind(b, flow.JumpCond, b.Switch[0])
		return true
	}
	return changed
}

// hopCycle reports whether following empty jumps from hop comes back
// to a block already seen.
func hopCycle(g *flow.Graph, hop *flow.Block) bool {
	seen := make(map[*flow.Block]bool)
	for b := hop; isEmptyHop(b); b = b.Target {
		if seen[b] || len(seen) > g.NumBlocks() {
			return true
		}
		seen[b] = true
	}
	return false
}

// optimizeEmptyBlock deletes an empty fall-through or jump block,
// sending its predecessors to its successor.
func optimizeEmptyBlock(c *Context, b *flow.Block) bool {
	g := c.Graph
	prev := b.Prev()

	if prev == nil || !b.IsEmpty() || b.Has(flow.FlagDontRemove) || b == g.ReturnBlock {
		return false
	}
	if b.IsPairTail() || b.Has(flow.FlagKeepAlways) || b.Has(flow.FlagFinallyTarget) {
		return false
	}

	var succ *flow.Block
	switch b.Kind {
	case flow.JumpAlways:
		if b.Target == b || prev.Kind != flow.JumpFallthrough {
			return false
		}
		succ = b.Target
	case flow.JumpFallthrough:
		if prev.Kind == flow.JumpCallFinally {
			return false
		}
		succ = b.Next()
		if succ == nil {
			return false
		}
	default:
		return false
	}

	if !g.CanRemoveEmptyBlock(b) {
		return false
	}
	if !flow.SameEHRegion(b, succ) {
		for _, e := range b.Preds {
			if e.Source.Kind == flow.JumpCatchReturn {
				// A catch return must land in a real block of this region.
				c.Logf("keep catch return target", "block", b)
				b.Stmts.InsertNop()
				return true
			}
		}
	}
	for _, e := range b.Preds {
		p := e.Source
		if p == b {
			return false
		}
		if p.Kind == flow.JumpSwitch || p.Kind.HasTarget() {
			continue
		}
		if p != prev {
			return false
		}
	}

	c.Logf("remove empty block", "block", b, "succ", succ)
	if b.Kind == flow.JumpAlways {
		g.SetKind(prev, flow.JumpAlways, succ)
	}
	for _, e := range append([]*flow.Edge(nil), b.Preds...) {
		p := e.Source
		if p.JumpsToTarget(b) {
			g.Retarget(p, b, succ)
		}
		if p == prev && p.FallsThrough() {
			g.RemoveRefPred(b, p)
			g.AddRefPred(succ, p)
		}
	}
	g.RemoveBlock(b)
	return true
}
