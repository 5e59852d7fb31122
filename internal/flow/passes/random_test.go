package passes

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/ir"
)

// randomGraph builds a graph of up to a dozen blocks with arbitrary
// jumps, including self loops and cycles of empty jumps.
func randomGraph(t *testing.T, rnd *rand.Rand) *flow.Graph {
	g := newGraph(t)
	n := 2 + rnd.Intn(11)
	bs := make([]*flow.Block, n)
	for i := range bs {
		bs[i] = block(g, flow.JumpReturn)
	}
	pick := func() *flow.Block { return bs[rnd.Intn(n)] }

	for i, b := range bs {
		var stmts []*ir.Node
		switch rnd.Intn(3) {
		case 0:
			stmts = append(stmts, ir.Store(1, ir.Const(int64(rnd.Intn(4)))))
		case 1:
			stmts = append(stmts, ir.Call("f", ir.Local(1)))
		}

		last := i == n-1
		switch k := rnd.Intn(6); {
		case k == 0 && !last:
			b.Kind = flow.JumpFallthrough
		case k == 1:
			jump(b, flow.JumpAlways, pick())
		case k == 2 && !last:
			stmts = append(stmts, cond(1, int64(rnd.Intn(4))))
			jump(b, flow.JumpCond, pick())
		case k == 3:
			stmts = append(stmts, ir.Switch(ir.Local(1)))
			b.Kind = flow.JumpSwitch
			for j := 2 + rnd.Intn(2); j > 0; j-- {
				b.Switch = append(b.Switch, pick())
			}
		case k == 4:
			stmts = append(stmts, ir.Throw(ir.Local(1)))
			b.Kind = flow.JumpThrow
		default:
			stmts = append(stmts, ir.Return(ir.Local(1)))
		}
		b.Stmts = ir.NewList(stmts...)
	}
	return g
}

// TestOptimizeRandomGraphs checks the published facts on random graphs:
// every block reaches itself, whatever reaches a predecessor reaches the
// block, and the first block dominates every reachable block.
func TestOptimizeRandomGraphs(t *testing.T) {
	for seed := int64(1); seed <= 300; seed++ {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			rnd := rand.New(rand.NewSource(seed))
			g := randomGraph(t, rnd)
			before := flow.Sprint(g)

			cfg := testConfig()
			cfg.TailDuplication = rnd.Intn(2) == 0
			cfg.Layout = rnd.Intn(4) != 0

			res := optimize(t, g, cfg)

			first := g.First()
			require.NotNil(t, first, "input:\n%s", before)
			for _, b := range res.Order() {
				assert.True(t, res.Reaches(b, b), "%s does not reach itself", b)

				set := res.Reach.Set(b)
				require.NotNil(t, set, "%s", b)
				for _, e := range b.Preds {
					ps := res.Reach.Set(e.Source)
					require.NotNil(t, ps, "%s", e.Source)
					assert.True(t, set.IsSuperSet(ps), "reach(%s) not within reach(%s)\ninput:\n%s", e.Source, b, before)
				}

				if res.Reach.Reachable(b) {
					assert.True(t, res.Dominates(first, b), "%s does not dominate %s\ninput:\n%s", first, b, before)
				}
			}
		})
	}
}

// TestOptimizeEmptyJumpCycles runs graphs made of nothing but empty
// jumps into each other.
func TestOptimizeEmptyJumpCycles(t *testing.T) {
	for n := 2; n <= 6; n++ {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			g := newGraph(t)
			s := block(g, flow.JumpSwitch, ir.Switch(ir.Local(1)))
			hops := make([]*flow.Block, n)
			for i := range hops {
				hops[i] = block(g, flow.JumpAlways)
			}
			x := block(g, flow.JumpReturn, ir.Return())
			for i, h := range hops {
				h.Target = hops[(i+1)%n]
			}
			s.Switch = []*flow.Block{hops[0], hops[n/2], x}

			res := optimize(t, g, testConfig())

			assert.Equal(t, s, g.First())
			assert.True(t, res.Reaches(s, x))
		})
	}
}
