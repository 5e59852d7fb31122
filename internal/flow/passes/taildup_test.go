package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/ir"
)

// tailDupGraph builds
//
//	p1: l1 = 0; goto t
//	p2: l1 = v; goto t
//	t:  if l1 < 3 goto T
//	n:  return
//	T:  return
func tailDupGraph(t *testing.T, v *ir.Node) (g *flow.Graph, p1, p2, tb, n, tt *flow.Block) {
	g = newGraph(t)
	p1 = block(g, flow.JumpAlways, ir.Store(1, ir.Const(0)))
	p2 = block(g, flow.JumpAlways, ir.Store(1, v))
	tb = block(g, flow.JumpCond, cond(1, 3))
	n = block(g, flow.JumpReturn, ir.Return(ir.Const(0)))
	tt = block(g, flow.JumpReturn, ir.Return(ir.Const(1)))
	p1.Target = tb
	p2.Target = tb
	tb.Target = tt
	return
}

func TestTailDuplicate(t *testing.T) {
	g, p1, p2, tb, n, tt := tailDupGraph(t, ir.Call("f"))
	c := newContext(t, g, testConfig())

	require.True(t, tailDuplicate(c, p1))

	assert.Equal(t, flow.JumpCond, p1.Kind)
	assert.Equal(t, tt, p1.Target)
	assert.Equal(t, []string{"l1 = 0", "jtrue((l1 < 3))"}, lines(p1))
	assert.Equal(t, []string{"jtrue((l1 < 3))"}, lines(tb), "original test untouched")

	fix := p1.Next()
	assert.Equal(t, flow.JumpAlways, fix.Kind)
	assert.Equal(t, n, fix.Target)
	assert.True(t, fix.Has(flow.FlagInternal))
	assert.Equal(t, p2, fix.Next())

	assert.Equal(t, 1, tb.RefCount())
	assert.Equal(t, p2, tb.SinglePred())
	require.NoError(t, flow.Verify(g))

	assert.False(t, tailDuplicate(c, p2), "t has a single predecessor left")
}

func TestTailDuplicateSkipsBackEdge(t *testing.T) {
	g := newGraph(t)
	block(g, flow.JumpFallthrough, ir.Store(1, ir.Const(0)))
	h := block(g, flow.JumpCond, cond(1, 10))
	body := block(g, flow.JumpAlways, ir.Call("f"), ir.Store(1, ir.Const(7)))
	x := block(g, flow.JumpReturn, ir.Return())
	h.Target = x
	body.Target = h
	c := newContext(t, g, testConfig())

	assert.False(t, tailDuplicate(c, body))
	assert.Equal(t, flow.JumpAlways, body.Kind)
}

func TestTailDuplicationDisabled(t *testing.T) {
	g, p1, _, tb, _, _ := tailDupGraph(t, ir.Const(5))
	cfg := testConfig()
	cfg.TailDuplication = false
	c := newContext(t, g, cfg)

	assert.False(t, simplifyBlock(c, p1))
	assert.Equal(t, flow.JumpAlways, p1.Kind)
	assert.Equal(t, tb, p1.Target)

	c.Config.TailDuplication = true
	assert.True(t, simplifyBlock(c, p1))
	assert.Equal(t, flow.JumpCond, p1.Kind)
}

func TestTailDuplicateUnfavorableStore(t *testing.T) {
	g, _, p2, _, _, _ := tailDupGraph(t, ir.Call("f"))
	c := newContext(t, g, testConfig())

	assert.False(t, tailDuplicate(c, p2))
}
