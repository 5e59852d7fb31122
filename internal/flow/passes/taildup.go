package passes

import (
	"github.com/you-not-fish/flowopt/internal/flow"
)

// tailDuplicate copies the single-test conditional that b jumps to into
// b when b's last statements store into the tested local, so the copied
// test can later fold.
//
//	b:      x = 0; goto t       b:   x = 0; if x < n goto T
//	t:      if x < n goto T =>  fix: goto N
//	N:      ...                 t:   if x < n goto T
//	                            N:   ...
func tailDuplicate(c *Context, b *flow.Block) bool {
	g := c.Graph
	t := b.Target
	h := &c.Config.Heuristics

	if t == nil || t == b || t.Kind != flow.JumpCond || b.Has(flow.FlagKeepAlways) || b.IsPairTail() {
		return false
	}
	if !flow.SameEHRegion(b, t) || b.IsRarelyRun() {
		return false
	}
	if t.RefCount() < 2 {
		// Compaction handles the single-predecessor case.
		return false
	}
	lcl, ok := t.Stmts.TestedLocal()
	if !ok || !b.Stmts.StoresFavorably(lcl, h.TailDupWindow) {
		return false
	}
	fall := t.Next()
	if fall == nil || t.Target == t {
		return false
	}
	if c.Dom().Dominates(t, b) {
		// b -> t is a back edge; duplicating would peel the loop test.
		return false
	}

	c.Logf("duplicate conditional tail", "block", b, "cond", t, "local", lcl)

	b.Stmts.Append(t.Stmts.Clone())
	g.SetKind(b, flow.JumpCond, t.Target)
	if g.UsingProfile && t.HasProfileWeight() {
		if t.Weight > b.Weight {
			t.Weight -= b.Weight
		} else {
			t.Weight = flow.WeightZero
		}
	}

	// SetKind recorded an arm into b's old next; move it to the fix-up.
	old := b.Next()
	fix := g.NewBlockAfter(flow.JumpAlways, b)
	fix.Target = fall
	fix.Flags |= b.Flags&(flow.FlagRunRarely|flow.FlagProfileWeight|flow.FlagGCSafe) | flow.FlagInternal
	fix.Weight = b.Weight
	if old != nil {
		g.RemoveRefPred(old, b)
	}
	g.AddRefPred(fix, b)
	g.AddRefPred(fall, fix)
	return true
}
