package flow

// link inserts b after prev; a nil prev makes b the first block.
func (g *Graph) link(prev, b *Block) {
	b.prev = prev
	if prev == nil {
		b.next = g.first
		g.first = b
	} else {
		b.next = prev.next
		prev.next = b
	}
	if b.next != nil {
		b.next.prev = b
	} else {
		g.last = b
	}
	g.count++
	g.touch()
}

// UnlinkRange removes the contiguous run first..last from the lexical order.
// Edges and EH bounds are left alone; the caller relinks or deletes the run.
func (g *Graph) UnlinkRange(first, last *Block) {
	n := 1
	for b := first; b != last; b = b.next {
		if b == nil {
			g.Fatalf("%s does not follow %s", last, first)
		}
		n++
	}
	if first.prev != nil {
		first.prev.next = last.next
	} else {
		g.first = last.next
	}
	if last.next != nil {
		last.next.prev = first.prev
	} else {
		g.last = first.prev
	}
	first.prev = nil
	last.next = nil
	g.count -= n
	g.touch()
}

// MoveAfter moves the run first..last so that it follows after.
func (g *Graph) MoveAfter(first, last, after *Block) {
	for b := first; ; b = b.next {
		if b == after {
			g.Fatalf("%s: moving a run after one of its own blocks", after)
		}
		if b == last {
			break
		}
	}
	n := 0
	for b := first; b != nil; b = b.next {
		n++
		if b == last {
			break
		}
	}
	g.UnlinkRange(first, last)
	first.prev = after
	last.next = after.next
	if after.next != nil {
		after.next.prev = last
	} else {
		g.last = last
	}
	after.next = first
	g.count += n
	g.touch()
}

// RemoveBlock deletes b. Every outgoing arm is dropped from its
// successor's predecessor list, b leaves the lexical order, region ends
// that were b move back one block and b becomes a tombstone until the
// next Renumber. Arms of other blocks into b are the caller's business.
func (g *Graph) RemoveBlock(b *Block) {
	if b.Has(FlagRemoved) {
		g.Fatalf("%s removed twice", b)
	}
	for _, s := range b.Succs() {
		if s.Has(FlagRemoved) {
			continue
		}
		g.RemoveRefPred(s, b)
	}
	if b.IsCallFinallyPair() {
		g.detachContinuation(b)
	}
	g.updateForDeletedBlock(b)
	if g.ReturnBlock == b {
		g.ReturnBlock = nil
	}
	g.UnlinkRange(b, b)
	b.Preds = nil
	b.Set(FlagRemoved)
	g.removed = append(g.removed, b)
}

// detachContinuation drops the arms from the finally called by b back
// to b's continuation.
func (g *Graph) detachContinuation(b *Block) {
	cont := b.next
	if cont == nil {
		return
	}
	r := g.regionWithHandler(b.Target)
	if r == nil {
		return
	}
	for _, fr := range g.FinallyReturns(r.HndBeg) {
		if cont.PredEdge(fr) != nil {
			g.RemoveAllRefPreds(cont, fr)
		}
	}
}

// ConvertToThrow turns b into an empty, rarely run throw block.
// A call-finally loses its continuation arms.
func (g *Graph) ConvertToThrow(b *Block) {
	if b.IsCallFinallyPair() {
		g.detachContinuation(b)
	}
	g.SetKind(b, JumpThrow, nil)
	if b.Stmts != nil {
		b.Stmts.Clear()
	}
	b.Clear(FlagInternal)
	b.Set(FlagImported)
	b.MakeRarelyRun()
}

func (g *Graph) regionWithHandler(hndBeg *Block) *Region {
	for _, r := range g.EH {
		if r.HndBeg == hndBeg {
			return r
		}
	}
	return nil
}

// SetKind changes b's terminator. Old arms are dropped and new ones are
// recorded, so predecessor lists stay exact.
func (g *Graph) SetKind(b *Block, kind JumpKind, target *Block, arms ...*Block) {
	for _, s := range b.Succs() {
		if !s.Has(FlagRemoved) {
			g.RemoveRefPred(s, b)
		}
	}
	b.Kind = kind
	b.Target = nil
	b.Switch = nil
	switch {
	case kind == JumpSwitch:
		b.Switch = append([]*Block(nil), arms...)
	case kind.HasTarget():
		if target == nil {
			g.Fatalf("%s: %s needs a target", b, kind)
		}
		b.Target = target
	}
	for _, s := range b.Succs() {
		g.AddRefPred(s, b)
	}
}

// Retarget replaces every arm of pred that jumps to old with new and
// moves the arms' multiplicity onto new. The fall-through arm of a
// conditional is structural and never moves.
func (g *Graph) Retarget(pred, old, new *Block) {
	k := 0
	switch pred.Kind {
	case JumpAlways, JumpCond, JumpCallFinally, JumpFilterReturn, JumpCatchReturn:
		if pred.Target == old {
			pred.Target = new
			k = 1
		}
	case JumpSwitch:
		for i, s := range pred.Switch {
			if s == old {
				pred.Switch[i] = new
				k++
			}
		}
	default:
		g.Fatalf("%s: cannot retarget a %s block", pred, pred.Kind)
	}
	if k == 0 {
		g.Fatalf("%s does not jump to %s", pred, old)
	}

	oldEdge := old.PredEdge(pred)
	lo, hi := oldEdge.WeightMin, oldEdge.WeightMax
	for i := 0; i < k; i++ {
		g.RemoveRefPred(old, pred)
	}
	e := new.PredEdge(pred)
	fresh := e == nil
	for i := 0; i < k; i++ {
		e = g.AddRefPred(new, pred)
	}
	if fresh {
		e.SetWeights(lo, hi)
	} else {
		e.SetWeights(e.WeightMin+lo, e.WeightMax+hi)
	}
}

// CanCompact reports whether b can be merged into a.
func (g *Graph) CanCompact(a, b *Block) bool {
	if a == nil || b == nil || a == b || a.next != b {
		return false
	}
	switch a.Kind {
	case JumpFallthrough:
	case JumpAlways:
		if a.Target != b || a.Has(FlagKeepAlways) {
			return false
		}
	default:
		return false
	}
	if b.Has(FlagDontRemove) || b == g.ReturnBlock || b.IsPairTail() {
		return false
	}
	if !SameEHRegion(a, b) {
		return false
	}
	if g.IsTryBeg(b) || g.IsHandlerBeg(b) {
		return false
	}
	// Only an empty a may take over b's other predecessors.
	if b.RefCount() != 1 && !(a.IsEmpty() && !g.IsTryBeg(a) && !g.IsHandlerBeg(a)) {
		return false
	}
	for _, e := range b.Preds {
		if e.Source.Kind == JumpSwitch {
			return false
		}
	}
	return true
}

// Compact merges b, which a falls or jumps into, into a.
// a takes over b's statements, terminator and successors.
func (g *Graph) Compact(a, b *Block) {
	if a.next != b {
		g.Fatalf("compact %s into %s: not adjacent", b, a)
	}
	if !SameEHRegion(a, b) {
		g.Fatalf("compact %s into %s: EH regions differ", b, a)
	}
	if b.Has(FlagDontRemove) {
		g.Fatalf("compact %s into %s: block must not be removed", b, a)
	}

	// Other predecessors of b now enter through a.
	for _, e := range append([]*Edge(nil), b.Preds...) {
		if e.Source != a {
			g.Retarget(e.Source, b, a)
		}
	}
	g.RemoveAllRefPreds(b, a)

	if a.Stmts != nil && b.Stmts != nil {
		a.Stmts.Append(b.Stmts)
	}

	switch {
	case b.Kind == JumpThrow:
		a.MakeRarelyRun()
	case a.HasProfileWeight() || b.HasProfileWeight() || a.Weight != 0 || b.Weight != 0:
		w := a.Weight
		if b.Weight > w {
			w = b.Weight
		}
		a.Weight = w
		if a.HasProfileWeight() || b.HasProfileWeight() {
			a.Set(FlagProfileWeight)
		}
		if w != 0 {
			a.Clear(FlagRunRarely)
		}
	default:
		a.MakeRarelyRun()
	}
	a.Flags |= b.Flags & (FlagGCSafe | FlagImported | FlagLoopHead)

	// Hand b's successor arms to a.
	succs := b.UniqueSuccs()
	a.Kind, a.Target, a.Switch = b.Kind, b.Target, b.Switch
	for _, s := range succs {
		if e := s.PredEdge(b); e != nil {
			e.Source = a
		}
	}
	b.Kind, b.Target, b.Switch = JumpThrow, nil, nil

	if g.ReturnBlock == b {
		g.ReturnBlock = a
	}
	g.replaceRegionLast(b, a)
	g.UnlinkRange(b, b)
	b.Preds = nil
	b.Set(FlagRemoved)
	g.removed = append(g.removed, b)
	g.touch()
}
