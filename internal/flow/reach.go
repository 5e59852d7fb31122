package flow

import (
	"github.com/bits-and-blooms/bitset"
)

// ReachOptions selects which blocks seed the entry set.
type ReachOptions struct {
	// RootContinuations adds the continuation of every call-finally pair
	// to the entry set, for targets that enter them from the runtime.
	RootContinuations bool
}

// Reach holds, for each block b, the set of blocks from which b can be
// reached. Sets are indexed by block ID and are valid for the numbering
// they were computed under; blocks created later take slower paths.
type Reach struct {
	graph     *Graph
	numbering uint32
	maxID     ID

	sets  []*bitset.BitSet
	entry *bitset.BitSet
}

// ComputeEntrySet returns the IDs of blocks the runtime may enter
// directly: the first block, handler and filter begins, and with
// RootContinuations every call-finally continuation.
func ComputeEntrySet(g *Graph, opts ReachOptions) *bitset.BitSet {
	s := bitset.New(uint(g.nextID))
	if g.first != nil {
		s.Set(uint(g.first.ID))
	}
	for _, r := range g.EH {
		if r.HndBeg != nil {
			s.Set(uint(r.HndBeg.ID))
		}
		if r.FilterBeg != nil {
			s.Set(uint(r.FilterBeg.ID))
		}
	}
	if opts.RootContinuations {
		for b := g.first; b != nil; b = b.next {
			if b.IsCallFinallyPair() && b.next != nil {
				s.Set(uint(b.next.ID))
			}
		}
	}
	return s
}

// ComputeReach computes reachability sets as a fixed point of
// Reach(b) = {b} ∪ Reach(p) over all predecessors p. It also marks a
// block GC-safe when all of its predecessors are.
func ComputeReach(g *Graph, opts ReachOptions) *Reach {
	return ComputeReachFrom(g, ComputeEntrySet(g, opts))
}

// ComputeReachFrom is ComputeReach with an entry set already computed
// for the current numbering.
func ComputeReachFrom(g *Graph, entry *bitset.BitSet) *Reach {
	n := uint(g.nextID)
	r := &Reach{
		graph:     g,
		numbering: g.numbering,
		maxID:     g.MaxID(),
		sets:      make([]*bitset.BitSet, n),
		entry:     entry,
	}
	for b := g.first; b != nil; b = b.next {
		s := bitset.New(n)
		s.Set(uint(b.ID))
		r.sets[b.ID] = s
	}

	limit := g.count + 2
	for pass := 0; ; pass++ {
		if pass > limit {
			g.Fatalf("reachability did not converge after %d passes", limit)
		}
		changed := false
		for b := g.first; b != nil; b = b.next {
			s := r.sets[b.ID]
			before := s.Count()
			predGCSafe := len(b.Preds) > 0
			for _, e := range b.Preds {
				if ps := r.sets[e.Source.ID]; ps != nil {
					s.InPlaceUnion(ps)
				}
				if !e.Source.Has(FlagGCSafe) {
					predGCSafe = false
				}
			}
			if predGCSafe && !b.Has(FlagGCSafe) {
				b.Set(FlagGCSafe)
				changed = true
			}
			if s.Count() != before {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return r
}

func (r *Reach) check() {
	if r.graph.numbering != r.numbering {
		r.graph.Fatalf("reachability used after renumbering")
	}
}

// MaxID returns the largest block ID the sets cover.
func (r *Reach) MaxID() ID { return r.maxID }

// Entry returns the entry set the sets were computed with.
func (r *Reach) Entry() *bitset.BitSet { return r.entry }

// IsEntry reports whether b is in the entry set.
func (r *Reach) IsEntry(b *Block) bool {
	r.check()
	return b.ID <= r.maxID && r.entry.Test(uint(b.ID))
}

// Set returns the reachability set of b, or nil for blocks created later.
func (r *Reach) Set(b *Block) *bitset.BitSet {
	r.check()
	if b.ID > r.maxID {
		return nil
	}
	return r.sets[b.ID]
}

// Reachable reports whether b can be reached from some entry block.
func (r *Reach) Reachable(b *Block) bool {
	r.check()
	if b.ID <= r.maxID && r.sets[b.ID] != nil {
		return r.sets[b.ID].IntersectionCardinality(r.entry) > 0
	}
	seen := bitset.New(uint(r.graph.nextID))
	return r.walkPreds(b, seen, func(x *Block) bool {
		return x.ID <= r.maxID && r.sets[x.ID] != nil && r.sets[x.ID].IntersectionCardinality(r.entry) > 0
	})
}

// Reaches reports whether there is a path from a to b.
// Blocks created after the computation are answered by walking
// predecessors of b, stopping at blocks with known sets.
func (r *Reach) Reaches(a, b *Block) bool {
	r.check()
	if a == b {
		return true
	}
	if a.ID <= r.maxID && b.ID <= r.maxID && r.sets[b.ID] != nil {
		return r.sets[b.ID].Test(uint(a.ID))
	}
	seen := bitset.New(uint(r.graph.nextID))
	return r.walkPreds(b, seen, func(x *Block) bool {
		if x == a {
			return true
		}
		return a.ID <= r.maxID && x.ID <= r.maxID && r.sets[x.ID] != nil && r.sets[x.ID].Test(uint(a.ID))
	})
}

// walkPreds searches backwards from b for a block satisfying hit.
func (r *Reach) walkPreds(b *Block, seen *bitset.BitSet, hit func(*Block) bool) bool {
	stack := []*Block{b}
	seen.Set(uint(b.ID))
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if hit(x) {
			return true
		}
		for _, e := range x.Preds {
			p := e.Source
			if seen.Test(uint(p.ID)) {
				continue
			}
			seen.Set(uint(p.ID))
			stack = append(stack, p)
		}
	}
	return false
}
