package passes

import (
	"context"

	"github.com/nikandfor/tlog"

	"github.com/you-not-fish/flowopt/internal/flow"
)

// State is a step of the optimization driver.
type State int

const (
	StateRenumbering State = iota
	StateComputingEntrySet
	StateComputingReachability
	StateRemovingDeadBlocks
	StateComputingDominators
	StateSimplifying
	StateLayout
	StateDone
)

var stateNames = [...]string{
	StateRenumbering:           "renumbering",
	StateComputingEntrySet:     "entryset",
	StateComputingReachability: "reachability",
	StateRemovingDeadBlocks:    "deadblocks",
	StateComputingDominators:   "dominators",
	StateSimplifying:           "simplify",
	StateLayout:                "layout",
	StateDone:                  "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

var (
	deadBlockPasses = []Pass{{Name: "deadblocks", Fn: removeDeadBlocks}}
	simplifyPasses  = []Pass{{Name: "simplify", Fn: simplify}, {Name: "tailmerge", Fn: tailMerge}}
	layoutPasses    = []Pass{{Name: "layout", Fn: layout}}
)

// Result holds the analyses of an optimized graph. They are exact for
// the graph as Optimize left it and go stale with the next edit.
type Result struct {
	Graph *flow.Graph
	Reach *flow.Reach
	Dom   *flow.DomTree

	// Rounds is the number of times the driver went back to renumbering.
	Rounds int
}

// Dominates reports whether every path from an entry to b passes through a.
func (r *Result) Dominates(a, b *flow.Block) bool { return r.Dom.Dominates(a, b) }

// Reaches reports whether there is a path from a to b.
func (r *Result) Reaches(a, b *flow.Block) bool { return r.Reach.Reaches(a, b) }

// IsLoopHead reports whether b is the target of a back edge.
func (r *Result) IsLoopHead(b *flow.Block) bool { return b.Has(flow.FlagLoopHead) }

// IsRunRarely reports whether b is cold.
func (r *Result) IsRunRarely(b *flow.Block) bool { return b.IsRarelyRun() }

// Order returns the final lexical block order.
func (r *Result) Order() []*flow.Block { return r.Graph.BlockList() }

// Regions returns the EH table.
func (r *Result) Regions() []*flow.Region { return r.Graph.EH }

// maxLayoutRuns bounds how often layout runs in one Optimize call.
const maxLayoutRuns = 4

type driver struct {
	c     *Context
	state State

	layouts int
	rounds  int
}

// Optimize runs the flow graph optimizations on g. Predecessor lists must
// be exact on entry; g.ComputePreds builds them. An internal consistency
// failure is returned as an error wrapping flow.ErrInternal.
func Optimize(ctx context.Context, g *flow.Graph, cfg Config) (res *Result, err error) {
	tr := tlog.SpawnFromContext(ctx, "optimize", "graph", g.Name, "blocks", g.NumBlocks())
	defer tr.Finish("err", &err)

	ctx = tlog.ContextWithSpan(ctx, tr)

	defer flow.Recover(&err)

	d := &driver{
		c:     NewContext(ctx, g, cfg),
		state: StateRenumbering,
	}
	if err = d.run(); err != nil {
		return nil, err
	}

	tr.Printw("optimized", "blocks", g.NumBlocks(), "rounds", d.rounds, "layouts", d.layouts)

	return &Result{
		Graph:  g,
		Reach:  d.c.Reach(),
		Dom:    d.c.Dom(),
		Rounds: d.rounds,
	}, nil
}

func (d *driver) run() error {
	c := d.c
	g := c.Graph

	for d.state != StateDone {
		c.Logf("driver state", "state", d.state)

		switch d.state {
		case StateRenumbering:
			c.Renumber()
			d.state = StateComputingEntrySet

		case StateComputingEntrySet:
			entry := c.EntrySet()
			c.Logf("entry set", "blocks", entry.Count())
			d.state = StateComputingReachability

		case StateComputingReachability:
			c.Reach()
			d.state = StateRemovingDeadBlocks

		case StateRemovingDeadBlocks:
			changed, err := Run(c, deadBlockPasses)
			if err != nil {
				return err
			}
			if changed && g.NumBlocks() != int(g.MaxID()) {
				// IDs have holes now; renumber before dominance.
				d.again()
				continue
			}
			d.state = StateComputingDominators

		case StateComputingDominators:
			c.ComputeDom()
			d.state = StateSimplifying

		case StateSimplifying:
			changed, err := Run(c, simplifyPasses)
			if err != nil {
				return err
			}
			switch {
			case changed:
				d.again()
			case !c.Config.Layout || d.layouts == maxLayoutRuns:
				d.state = StateDone
			default:
				d.state = StateLayout
			}

		case StateLayout:
			changed, err := Run(c, layoutPasses)
			if err != nil {
				return err
			}
			// Settled once layout finds nothing after a quiet simplify.
			d.layouts++
			if changed {
				d.again()
			} else {
				d.state = StateDone
			}

		default:
			g.Fatalf("driver in unknown state %d", d.state)
		}
	}
	return nil
}

// again sends the driver back to renumbering after an edit.
func (d *driver) again() {
	d.rounds++
	if d.rounds > d.c.Config.MaxDriverRounds {
		d.c.Graph.Fatalf("optimization did not settle in %d rounds", d.c.Config.MaxDriverRounds)
	}
	d.state = StateRenumbering
}
