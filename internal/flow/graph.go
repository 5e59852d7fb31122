package flow

import "iter"

// Graph is a method's control flow graph: a lexically ordered list of
// blocks, their predecessor edges and the EH region table.
type Graph struct {
	// Name identifies the method in diagnostics.
	Name string

	// EH is the exception region table, innermost regions first.
	// Blocks refer to entries by 1-based index.
	EH []*Region

	// ReturnBlock is the canonical merged return block, if any.
	ReturnBlock *Block

	// UsingProfile is set when block weights came from profile data.
	UsingProfile bool

	// EdgeWeightsValid is set when edge weight bounds are trustworthy.
	EdgeWeightsValid bool

	first, last *Block
	count       int
	nextID      ID

	numbering uint32
	edits     uint64

	removed []*Block

	newPayload func() Payload
}

// New returns an empty graph. newPayload creates statement lists for
// blocks the graph makes itself.
func New(name string, newPayload func() Payload) *Graph {
	return &Graph{
		Name:       name,
		nextID:     1,
		newPayload: newPayload,
	}
}

// NewBlock creates a block of the given kind and appends it to the graph.
func (g *Graph) NewBlock(kind JumpKind) *Block {
	b := g.alloc(kind)
	g.link(g.last, b)
	return b
}

// NewBlockAfter creates a block of the given kind right after prev.
// The new block inherits prev's EH regions.
func (g *Graph) NewBlockAfter(kind JumpKind, prev *Block) *Block {
	b := g.alloc(kind)
	b.TryIndex = prev.TryIndex
	b.HndIndex = prev.HndIndex
	g.link(prev, b)
	return b
}

func (g *Graph) alloc(kind JumpKind) *Block {
	b := &Block{
		ID:     g.nextID,
		Kind:   kind,
		Weight: WeightUnity,
		graph:  g,
	}
	if g.newPayload != nil {
		b.Stmts = g.newPayload()
	}
	g.nextID++
	return b
}

// NewPayload returns an empty statement list of the graph's flavor.
func (g *Graph) NewPayload() Payload {
	if g.newPayload == nil {
		return nil
	}
	return g.newPayload()
}

// First returns the first block in lexical order.
func (g *Graph) First() *Block { return g.first }

// Last returns the last block in lexical order.
func (g *Graph) Last() *Block { return g.last }

// NumBlocks returns the number of live blocks.
func (g *Graph) NumBlocks() int { return g.count }

// MaxID returns the largest ID handed out so far.
func (g *Graph) MaxID() ID { return g.nextID - 1 }

// Numbering returns the numbering version. Renumber bumps it.
func (g *Graph) Numbering() uint32 { return g.numbering }

// Edits returns a counter bumped by every structural change.
func (g *Graph) Edits() uint64 { return g.edits }

// Removed returns the tombstones collected since the last Renumber.
func (g *Graph) Removed() []*Block { return g.removed }

func (g *Graph) touch() { g.edits++ }

// Blocks iterates over the live blocks in lexical order.
// The successor is read before yielding, so the current block may be unlinked.
func (g *Graph) Blocks() iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for b := g.first; b != nil; {
			next := b.next
			if !yield(b) {
				return
			}
			b = next
		}
	}
}

// BlockList returns the live blocks in lexical order.
func (g *Graph) BlockList() []*Block {
	bs := make([]*Block, 0, g.count)
	for b := g.first; b != nil; b = b.next {
		bs = append(bs, b)
	}
	return bs
}

// BlockByID returns the live block with the given ID, or nil.
func (g *Graph) BlockByID(id ID) *Block {
	for b := g.first; b != nil; b = b.next {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Renumber assigns dense IDs 1..N in lexical order, drops tombstones
// and invalidates every analysis computed under the old numbering.
func (g *Graph) Renumber() {
	id := ID(1)
	for b := g.first; b != nil; b = b.next {
		b.ID = id
		id++
	}
	g.nextID = id
	g.removed = nil
	g.numbering++
	g.touch()
}

// finallyContinuations returns the blocks a finally-return block
// goes back to: the continuation of every call-finally targeting its handler.
func (g *Graph) finallyContinuations(b *Block) []*Block {
	r := g.Region(b.HndIndex)
	if r == nil {
		g.Fatalf("%s: finally return outside a handler", b)
	}
	var out []*Block
	for c := g.first; c != nil; c = c.next {
		if c.IsCallFinallyPair() && c.Target == r.HndBeg && c.next != nil {
			out = append(out, c.next)
		}
	}
	return out
}

// FinallyReturns returns the finally-return blocks of the handler
// beginning at hndBeg.
func (g *Graph) FinallyReturns(hndBeg *Block) []*Block {
	var out []*Block
	for b := g.first; b != nil; b = b.next {
		if b.Kind != JumpFinallyReturn {
			continue
		}
		if r := g.Region(b.HndIndex); r != nil && r.HndBeg == hndBeg {
			out = append(out, b)
		}
	}
	return out
}
