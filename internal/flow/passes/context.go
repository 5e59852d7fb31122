package passes

import (
	"context"

	"github.com/bits-and-blooms/bitset"
	"github.com/nikandfor/tlog"

	"github.com/you-not-fish/flowopt/internal/flow"
)

// Context carries one graph through the optimizer: its configuration,
// the logging span and lazily recomputed analyses.
type Context struct {
	Graph  *flow.Graph
	Config Config

	ctx context.Context
	tr  tlog.Span

	entry      *bitset.BitSet
	entryEdits uint64

	reach      *flow.Reach
	reachEdits uint64

	dom *flow.DomTree
}

// NewContext returns a Context for g. Logging goes to the span in ctx, if any.
func NewContext(ctx context.Context, g *flow.Graph, cfg Config) *Context {
	return &Context{
		Graph:  g,
		Config: cfg,
		ctx:    ctx,
		tr:     tlog.SpanFromContext(ctx),
	}
}

// Logf records a rewrite on the current span.
func (c *Context) Logf(msg string, kvs ...interface{}) {
	c.tr.Printw(msg, kvs...)
}

func (c *Context) reachOptions() flow.ReachOptions {
	return flow.ReachOptions{RootContinuations: c.Config.RootContinuations}
}

// EntrySet returns the blocks the runtime may enter directly, by ID.
func (c *Context) EntrySet() *bitset.BitSet {
	g := c.Graph
	if c.entry == nil || c.entryEdits != g.Edits() || c.entry.Len() != uint(g.MaxID())+1 {
		c.entry = flow.ComputeEntrySet(g, c.reachOptions())
		c.entryEdits = g.Edits()
	}
	return c.entry
}

// Reach returns reachability sets that reflect every edit made so far.
func (c *Context) Reach() *flow.Reach {
	g := c.Graph
	if c.reach == nil || c.reachEdits != g.Edits() || c.reach.MaxID() != g.MaxID() {
		c.reach = flow.ComputeReachFrom(g, c.EntrySet())
		// ComputeReach may set GC-safe flags; that is not an edit.
		c.reachEdits = g.Edits()
	}
	return c.reach
}

// ComputeDom rebuilds the dominator tree from fresh reachability.
func (c *Context) ComputeDom() *flow.DomTree {
	c.dom = flow.ComputeDom(c.Graph, c.Reach().Entry())
	return c.dom
}

// Dom returns the last dominator tree built, which may predate recent
// edits; queries about new blocks take the conservative paths.
func (c *Context) Dom() *flow.DomTree {
	if c.dom == nil || c.dom.MaxID() > c.Graph.MaxID() {
		return c.ComputeDom()
	}
	return c.dom
}

// Renumber renumbers the graph and drops analyses keyed on old IDs.
func (c *Context) Renumber() {
	c.Graph.Renumber()
	c.entry = nil
	c.reach = nil
	c.dom = nil
}
