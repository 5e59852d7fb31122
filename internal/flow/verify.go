package flow

import (
	"fmt"
	"strings"

	"github.com/nikandfor/errors"
)

// Verify checks the structural integrity of g: list links, terminators,
// predecessor multiplicities and the EH table.
// It returns an error describing all violations found, or nil if valid.
func Verify(g *Graph) error {
	var errs []string

	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if g.first == nil {
		add("graph %s: no blocks", g.Name)
		return combineErrors(errs)
	}

	// 1. List links and membership
	pos := make(map[*Block]int, g.count)
	ids := make(map[ID]*Block, g.count)
	var prev *Block
	for b := g.first; b != nil; b = b.next {
		if b.prev != prev {
			add("%s: prev link is %s, want %s", b, b.prev, prev)
		}
		if b.graph != g {
			add("%s: block belongs to another graph", b)
		}
		if b.Has(FlagRemoved) {
			add("%s: removed block still linked", b)
		}
		if b.ID <= Root || b.ID >= g.nextID {
			add("%s: id out of range (next id %d)", b, g.nextID)
		}
		if other := ids[b.ID]; other != nil {
			add("%s: id shared with another block", b)
		}
		ids[b.ID] = b
		pos[b] = len(pos)
		prev = b
	}
	if g.last != prev {
		add("graph %s: last is %s, want %s", g.Name, g.last, prev)
	}
	if len(pos) != g.count {
		add("graph %s: count is %d, list holds %d", g.Name, g.count, len(pos))
	}

	live := func(b *Block) bool {
		_, ok := pos[b]
		return ok
	}

	// 2. Terminators
	for b := g.first; b != nil; b = b.next {
		switch b.Kind {
		case JumpFallthrough, JumpCond:
			if b.next == nil {
				add("%s: %s block at the end of the graph", b, b.Kind)
			}
		case JumpCallFinally:
			if b.IsCallFinallyPair() {
				n := b.next
				if n == nil || n.Kind != JumpAlways || !n.Has(FlagKeepAlways) {
					add("%s: call-finally without continuation", b)
				}
			}
		case JumpSwitch:
			if len(b.Switch) == 0 {
				add("%s: switch without arms", b)
			}
		case JumpAlways, JumpReturn, JumpThrow, JumpFinallyReturn, JumpFilterReturn, JumpCatchReturn:
		default:
			add("%s: invalid jump kind %s", b, b.Kind)
			continue
		}
		if b.Kind.HasTarget() && b.Target == nil {
			add("%s: %s without target", b, b.Kind)
			continue
		}
		for _, s := range b.Succs() {
			if s == nil || !live(s) {
				add("%s: successor %s not in graph", b, s)
			}
		}
		if b.Weight < 0 {
			add("%s: negative weight %v", b, b.Weight)
		}
	}
	if len(errs) != 0 {
		return combineErrors(errs)
	}

	// 3. Predecessor lists match successor arms
	want := make(map[[2]*Block]int)
	for b := g.first; b != nil; b = b.next {
		for _, s := range b.Succs() {
			want[[2]*Block{b, s}]++
		}
	}
	for b := g.first; b != nil; b = b.next {
		seen := make(map[*Block]bool, len(b.Preds))
		for _, e := range b.Preds {
			if seen[e.Source] {
				add("%s: duplicate edge from %s", b, e.Source)
			}
			seen[e.Source] = true
			if !live(e.Source) {
				add("%s: predecessor %s not in graph", b, e.Source)
				continue
			}
			if n := want[[2]*Block{e.Source, b}]; n != e.DupCount {
				add("%s: edge from %s has multiplicity %d, want %d", b, e.Source, e.DupCount, n)
			}
			if e.WeightMin > e.WeightMax {
				add("%s: edge from %s has min weight above max", b, e.Source)
			}
			delete(want, [2]*Block{e.Source, b})
		}
	}
	for k, n := range want {
		add("%s: missing edge from %s (multiplicity %d)", k[1], k[0], n)
	}

	// 4. EH regions
	for i, r := range g.EH {
		idx := i + 1
		checkRange := func(what string, beg, last *Block, in func(*Block) bool) {
			if beg == nil || last == nil || !live(beg) || !live(last) {
				add("EH#%d: %s bounds not in graph", idx, what)
				return
			}
			if pos[beg] > pos[last] {
				add("EH#%d: %s begins after it ends", idx, what)
				return
			}
			for b := beg; ; b = b.next {
				if !in(b) {
					add("EH#%d: %s inside %s range", idx, b, what)
				}
				if b == last {
					break
				}
			}
		}
		checkRange("try", r.TryBeg, r.TryLast, func(b *Block) bool { return g.InTry(b, idx) })
		checkRange("handler", r.HndBeg, r.HndLast, func(b *Block) bool { return g.InHandler(b, idx) })
		if r.TryBeg != nil && r.TryBeg.TryIndex != idx {
			add("EH#%d: try begin %s has try index %d", idx, r.TryBeg, r.TryBeg.TryIndex)
		}
		if r.HndBeg != nil && r.HndBeg.HndIndex != idx {
			add("EH#%d: handler begin %s has handler index %d", idx, r.HndBeg, r.HndBeg.HndIndex)
		}
		if r.Kind == HandlerFilter && (r.FilterBeg == nil || !live(r.FilterBeg)) {
			add("EH#%d: filter begin not in graph", idx)
		}
	}
	for b := g.first; b != nil; b = b.next {
		if b.TryIndex < 0 || b.TryIndex > len(g.EH) || b.HndIndex < 0 || b.HndIndex > len(g.EH) {
			add("%s: region index out of range", b)
			continue
		}
		if r := g.Region(b.TryIndex); r != nil && live(r.TryBeg) && live(r.TryLast) {
			if pos[b] < pos[r.TryBeg] || pos[b] > pos[r.TryLast] {
				add("%s: outside the range of its try EH#%d", b, b.TryIndex)
			}
		}
	}

	return combineErrors(errs)
}

// VerifyDom checks the dominator tree against g. It calls Verify first.
func VerifyDom(g *Graph, d *DomTree) error {
	if err := Verify(g); err != nil {
		return err
	}

	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	for b := g.first; b != nil; b = b.next {
		if !d.Contains(b) {
			continue
		}
		idom := d.IDom(b)
		if idom == b {
			add("%s: block is its own idom", b)
			continue
		}
		if idom != nil && !d.Dominates(idom, b) {
			add("%s: idom %s does not dominate it", b, idom)
		}
		// The idom of a block dominates all of its predecessors.
		for _, e := range b.Preds {
			if idom != nil && d.Contains(e.Source) && !d.Dominates(idom, e.Source) {
				add("%s: idom %s does not dominate predecessor %s", b, idom, e.Source)
			}
		}
		for _, c := range d.Children(b) {
			if d.IDom(c) != b {
				add("%s: child %s has idom %s", b, c, d.IDom(c))
			}
		}
	}

	return combineErrors(errs)
}

// combineErrors creates an error from a list of error strings, or returns nil.
func combineErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New("flow graph verification failed:\n  %s", strings.Join(errs, "\n  "))
}
