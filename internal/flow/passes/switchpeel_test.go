package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/ir"
)

// profiledSwitch builds
//
//	b: l1 = call f(); switch l1 [A, B, C]    weight 100
//	A: return 0                              edge 10
//	B: return 1                              edge wb
//	C: return 2                              edge 90-wb
func profiledSwitch(t *testing.T, wb flow.Weight) (c *Context, b, A, B, C *flow.Block) {
	g := newGraph(t)
	b = block(g, flow.JumpSwitch, ir.Store(1, ir.Call("f")), ir.Switch(ir.Local(1)))
	A = block(g, flow.JumpReturn, ir.Return(ir.Const(0)))
	B = block(g, flow.JumpReturn, ir.Return(ir.Const(1)))
	C = block(g, flow.JumpReturn, ir.Return(ir.Const(2)))
	b.Switch = []*flow.Block{A, B, C}
	b.Weight = 100
	b.Set(flow.FlagProfileWeight)
	g.UsingProfile = true

	c = newContext(t, g, testConfig())
	g.EdgeWeightsValid = true
	A.PredEdge(b).SetWeights(10, 10)
	B.PredEdge(b).SetWeights(wb, wb)
	C.PredEdge(b).SetWeights(90-wb, 90-wb)
	return
}

func TestPeelDominantCase(t *testing.T) {
	c, b, A, B, C := profiledSwitch(t, 80)

	require.True(t, peelDominantCases(c))

	assert.Equal(t, flow.JumpCond, b.Kind)
	assert.Equal(t, B, b.Target)
	assert.Equal(t, []string{"l1 = call f()", "jtrue((l1 == 1))"}, lines(b))

	s := b.Next()
	assert.Equal(t, flow.JumpSwitch, s.Kind)
	assert.Equal(t, []*flow.Block{A, B, C}, s.Switch)
	assert.Equal(t, []string{"switch(l1)"}, lines(s))
	assert.Equal(t, flow.Weight(20), s.Weight)
	assert.True(t, s.HasProfileWeight())

	w, _ := B.PredEdge(b).Weight()
	assert.Equal(t, flow.Weight(80), w)
	w, _ = B.PredEdge(s).Weight()
	assert.Zero(t, w)
	w, _ = A.PredEdge(s).Weight()
	assert.Equal(t, flow.Weight(10), w)
	assert.Nil(t, A.PredEdge(b))
	require.NoError(t, flow.Verify(c.Graph))

	assert.False(t, peelDominantCases(c), "no arm dominates what is left")
}

func TestPeelNeedsDominantCase(t *testing.T) {
	c, b, _, _, _ := profiledSwitch(t, 45)

	assert.False(t, peelDominantCases(c))
	assert.Equal(t, flow.JumpSwitch, b.Kind)
}

func TestPeelNeedsEdgeWeights(t *testing.T) {
	c, b, _, _, _ := profiledSwitch(t, 80)
	c.Graph.EdgeWeightsValid = false

	assert.False(t, peelDominantCases(c))
	assert.Equal(t, flow.JumpSwitch, b.Kind)
}
