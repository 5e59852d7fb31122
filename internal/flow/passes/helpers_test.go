package passes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/ir"
)

func newGraph(t *testing.T) *flow.Graph {
	return flow.New(t.Name(), ir.NewPayload)
}

// block appends a block of the given kind holding stmts.
func block(g *flow.Graph, kind flow.JumpKind, stmts ...*ir.Node) *flow.Block {
	b := g.NewBlock(kind)
	b.Stmts = ir.NewList(stmts...)
	return b
}

func jump(b *flow.Block, kind flow.JumpKind, target *flow.Block) {
	b.Kind = kind
	b.Target = target
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Verify = true
	return cfg
}

// newContext finishes g's predecessor lists and wraps it for a pass.
func newContext(t *testing.T, g *flow.Graph, cfg Config) *Context {
	t.Helper()
	g.ComputePreds()
	require.NoError(t, flow.Verify(g))
	return NewContext(context.Background(), g, cfg)
}

func optimize(t *testing.T, g *flow.Graph, cfg Config) *Result {
	t.Helper()
	g.ComputePreds()
	res, err := Optimize(context.Background(), g, cfg)
	require.NoError(t, err)
	require.NoError(t, flow.Verify(g))
	require.NoError(t, flow.VerifyDom(g, res.Dom))
	return res
}

func lines(b *flow.Block) []string { return b.Stmts.Lines() }

func cond(lcl int, n int64) *ir.Node {
	return ir.JTrue(ir.Bin(ir.OpLt, ir.Local(lcl), ir.Const(n)))
}
