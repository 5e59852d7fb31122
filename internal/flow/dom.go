package flow

import (
	"github.com/bits-and-blooms/bitset"
)

// DomTree is the dominator tree of a Graph, rooted at the synthetic
// super-root. Every entry block and every predecessor-less block hangs
// directly off the super-root. Queries are O(1) through pre/post numbers.
type DomTree struct {
	graph     *Graph
	numbering uint32
	maxID     ID

	idom     []ID // by ID; Root for top-level blocks, -1 if unreached
	blocks   []*Block
	children [][]*Block
	pre      []int32
	post     []int32
	rpo      []*Block
}

const noIdom ID = -1

// ReversePostOrder returns the blocks reached by a depth-first walk
// from roots, in reverse post-order. The walk uses an explicit stack.
func ReversePostOrder(g *Graph, roots []*Block) []*Block {
	visited := bitset.New(uint(g.nextID))
	var post []*Block

	type frame struct {
		b     *Block
		succs []*Block
		i     int
	}
	for _, root := range roots {
		if visited.Test(uint(root.ID)) {
			continue
		}
		visited.Set(uint(root.ID))
		stack := []frame{{b: root, succs: root.Succs()}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.i < len(top.succs) {
				s := top.succs[top.i]
				top.i++
				if !visited.Test(uint(s.ID)) {
					visited.Set(uint(s.ID))
					stack = append(stack, frame{b: s, succs: s.Succs()})
				}
				continue
			}
			post = append(post, top.b)
			stack = stack[:len(stack)-1]
		}
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// domRoots returns the DFS seeds: the first block, then the remaining
// entry blocks, then blocks without predecessors, each in lexical order.
func domRoots(g *Graph, entry *bitset.BitSet) []*Block {
	var roots []*Block
	seen := bitset.New(uint(g.nextID))
	add := func(b *Block) {
		if !seen.Test(uint(b.ID)) {
			seen.Set(uint(b.ID))
			roots = append(roots, b)
		}
	}
	if g.first != nil {
		add(g.first)
	}
	for b := g.first; b != nil; b = b.next {
		if entry != nil && entry.Test(uint(b.ID)) {
			add(b)
		}
	}
	for b := g.first; b != nil; b = b.next {
		if len(b.Preds) == 0 {
			add(b)
		}
	}
	return roots
}

// ComputeDom computes the dominator tree of g using Cooper, Harvey, and
// Kennedy's "A Simple, Fast Dominance Algorithm". The super-root is a
// predecessor of every seed, so seeds are immediately dominated by it.
func ComputeDom(g *Graph, entry *bitset.BitSet) *DomTree {
	n := int(g.nextID)
	d := &DomTree{
		graph:     g,
		numbering: g.numbering,
		maxID:     g.MaxID(),
		idom:      make([]ID, n),
		blocks:    make([]*Block, n),
		children:  make([][]*Block, n),
		pre:       make([]int32, n),
		post:      make([]int32, n),
	}
	for i := range d.idom {
		d.idom[i] = noIdom
		d.pre[i] = -1
		d.post[i] = -1
	}

	roots := domRoots(g, entry)
	d.rpo = ReversePostOrder(g, roots)

	// Post-order numbers; the super-root comes last.
	postNum := make([]int, n)
	for i, b := range d.rpo {
		postNum[b.ID] = len(d.rpo) - 1 - i
		d.blocks[b.ID] = b
	}
	postNum[Root] = len(d.rpo)

	isSeed := bitset.New(uint(n))
	for _, b := range roots {
		isSeed.Set(uint(b.ID))
		d.idom[b.ID] = Root
	}
	d.idom[Root] = Root

	intersect := func(b1, b2 ID) ID {
		for b1 != b2 {
			for postNum[b1] < postNum[b2] {
				b1 = d.idom[b1]
			}
			for postNum[b2] < postNum[b1] {
				b2 = d.idom[b2]
			}
		}
		return b1
	}

	changed := true
	for changed {
		changed = false
		for _, b := range d.rpo {
			if isSeed.Test(uint(b.ID)) {
				continue
			}
			newIdom := noIdom
			for _, e := range b.Preds {
				p := e.Source.ID
				if d.idom[p] == noIdom {
					continue
				}
				if newIdom == noIdom {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != noIdom && d.idom[b.ID] != newIdom {
				d.idom[b.ID] = newIdom
				changed = true
			}
		}
	}

	for _, b := range d.rpo {
		p := d.idom[b.ID]
		d.children[p] = append(d.children[p], b)
	}
	d.number()
	return d
}

// number assigns pre and post order numbers over the dominator tree.
func (d *DomTree) number() {
	type frame struct {
		id ID
		i  int
	}
	var pre, post int32
	d.pre[Root] = pre
	pre++
	stack := []frame{{id: Root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := d.children[top.id]
		if top.i < len(kids) {
			c := kids[top.i].ID
			top.i++
			d.pre[c] = pre
			pre++
			stack = append(stack, frame{id: c})
			continue
		}
		d.post[top.id] = post
		post++
		stack = stack[:len(stack)-1]
	}
}

func (d *DomTree) check() {
	if d.graph.numbering != d.numbering {
		d.graph.Fatalf("dominator tree used after renumbering")
	}
}

// MaxID returns the largest block ID covered by the tree.
func (d *DomTree) MaxID() ID { return d.maxID }

// Contains reports whether b was reached when the tree was built.
func (d *DomTree) Contains(b *Block) bool {
	d.check()
	return b.ID <= d.maxID && d.pre[b.ID] >= 0
}

// IDom returns b's immediate dominator, or nil when that is the super-root
// or b is not in the tree.
func (d *DomTree) IDom(b *Block) *Block {
	if !d.Contains(b) {
		return nil
	}
	p := d.idom[b.ID]
	if p == Root || p == noIdom {
		return nil
	}
	return d.blockAt(p)
}

// Children returns the blocks b immediately dominates.
func (d *DomTree) Children(b *Block) []*Block {
	if !d.Contains(b) {
		return nil
	}
	return d.children[b.ID]
}

// RootChildren returns the blocks hanging directly off the super-root.
func (d *DomTree) RootChildren() []*Block { return d.children[Root] }

// ReversePostOrder returns the blocks of the tree in the order the
// dominators were computed.
func (d *DomTree) ReversePostOrder() []*Block { return d.rpo }

// PreNum and PostNum return b's tree numbers, or -1.
func (d *DomTree) PreNum(b *Block) int32 {
	if !d.Contains(b) {
		return -1
	}
	return d.pre[b.ID]
}

func (d *DomTree) PostNum(b *Block) int32 {
	if !d.Contains(b) {
		return -1
	}
	return d.post[b.ID]
}

func (d *DomTree) blockAt(id ID) *Block { return d.blocks[id] }

// Dominates reports whether every path from an entry to b passes through a.
// A block dominates itself.
//
// Blocks created after the tree was built are handled conservatively:
// a new b is dominated by a when a dominates all of b's predecessors;
// a new a dominates b only if it is a preheader falling into a block
// that does.
func (d *DomTree) Dominates(a, b *Block) bool {
	d.check()
	return d.dominates(a, b, nil)
}

func (d *DomTree) dominates(a, b *Block, seen *bitset.BitSet) bool {
	if a == b {
		return true
	}
	if b.ID > d.maxID {
		if seen == nil {
			seen = bitset.New(uint(d.graph.nextID))
		}
		if seen.Test(uint(b.ID)) {
			return true
		}
		seen.Set(uint(b.ID))
		if len(b.Preds) == 0 {
			return false
		}
		for _, e := range b.Preds {
			if !d.dominates(a, e.Source, seen) {
				return false
			}
		}
		return true
	}
	if a.ID > d.maxID {
		if a.Has(FlagPreheader) && a.Kind == JumpFallthrough && a.next != nil {
			return d.dominates(a.next, b, seen)
		}
		return false
	}
	if d.pre[a.ID] < 0 || d.pre[b.ID] < 0 {
		return false
	}
	return d.pre[a.ID] <= d.pre[b.ID] && d.post[b.ID] <= d.post[a.ID]
}

// Frontier computes the dominance frontier of every block in the tree.
func (d *DomTree) Frontier() map[*Block][]*Block {
	d.check()
	df := make(map[*Block][]*Block)
	for _, b := range d.rpo {
		if len(b.Preds) < 2 {
			continue
		}
		stop := d.IDom(b)
		for _, e := range b.Preds {
			runner := e.Source
			for runner != nil && runner != stop && d.Contains(runner) {
				df[runner] = appendUnique(df[runner], b)
				runner = d.IDom(runner)
			}
		}
	}
	return df
}

func appendUnique(list []*Block, b *Block) []*Block {
	if containsBlock(list, b) {
		return list
	}
	return append(list, b)
}
