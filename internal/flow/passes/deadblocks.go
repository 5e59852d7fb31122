package passes

import (
	"github.com/you-not-fish/flowopt/internal/flow"
)

// removeDeadBlocks deletes blocks that no entry block reaches, round
// after round until a round finds nothing, then recomputes loop heads.
func removeDeadBlocks(c *Context) bool {
	g := c.Graph
	changed := false
	for round := 0; ; round++ {
		if round == c.Config.MaxDeadBlockRounds {
			g.Fatalf("dead block removal did not settle in %d rounds", round)
		}
		if !removeUnreachable(c) {
			break
		}
		changed = true
	}
	markLoopHeads(c)
	return changed
}

func removeUnreachable(c *Context) bool {
	g := c.Graph
	r := c.Reach()

	var dead []*flow.Block
	isDead := make(map[*flow.Block]bool)
	for b := range g.Blocks() {
		if r.IsEntry(b) || r.Reachable(b) {
			continue
		}
		if b.Has(flow.FlagThrowHelper) || b == g.ReturnBlock {
			continue
		}
		dead = append(dead, b)
		isDead[b] = true
	}
	if len(dead) == 0 {
		return false
	}

	changed := false
	for _, b := range dead {
		if b.IsPairTail() && !isDead[b.Prev()] {
			call := b.Prev()
			if r := regionOfHandler(g, call.Target); r != nil && len(g.FinallyReturns(r.HndBeg)) != 0 {
				// Its finally returns are dead too and go first.
				continue
			}
			call.Set(flow.FlagRetlessCall)
			c.Logf("call-finally never returns", "block", call)
		}

		if b.Has(flow.FlagDontRemove) || g.IsTryBeg(b) || g.IsHandlerBeg(b) {
			if b.Kind == flow.JumpThrow && b.IsEmpty() && len(b.Succs()) == 0 {
				continue
			}
			c.Logf("dead block kept as throw", "block", b)
			g.ConvertToThrow(b)
			changed = true
			continue
		}

		c.Logf("remove dead block", "block", b)
		g.RemoveBlock(b)
		changed = true
	}
	return changed
}

func regionOfHandler(g *flow.Graph, hndBeg *flow.Block) *flow.Region {
	for _, r := range g.EH {
		if r.HndBeg == hndBeg {
			return r
		}
	}
	return nil
}

// markLoopHeads flags every reachable block that has a predecessor at or
// after it in lexical order and reachable from it, ignoring call-finally
// predecessors.
func markLoopHeads(c *Context) {
	g := c.Graph
	r := c.Reach()

	pos := make(map[*flow.Block]int, g.NumBlocks())
	i := 0
	for b := range g.Blocks() {
		pos[b] = i
		i++
	}

	for b := range g.Blocks() {
		b.Clear(flow.FlagLoopHead)
		if !r.IsEntry(b) && !r.Reachable(b) {
			continue
		}
		for _, e := range b.Preds {
			p := e.Source
			if p.Kind == flow.JumpCallFinally {
				continue
			}
			if pos[p] >= pos[b] && r.Reaches(b, p) {
				b.Set(flow.FlagLoopHead)
				break
			}
		}
	}
}
