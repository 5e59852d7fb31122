package importer

import (
	"context"
	"go/ast"
	goimporter "go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/flow/passes"
)

const src = `package p

func sum(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	return s
}

func check(x int) int {
	if x < 0 {
		panic("negative")
	}
	return x
}

func work() {}

func count(n int) {
	for i := 0; i < n; i++ {
		work()
	}
}

func safe() (ok bool) {
	defer func() { recover() }()
	work()
	return true
}
`

func build(t *testing.T, name string) *ssa.Function {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	require.NoError(t, err)

	pkg := types.NewPackage("p", "p")
	conf := &types.Config{Importer: goimporter.Default()}
	ssaPkg, _, err := ssautil.BuildPackage(conf, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	require.NoError(t, err)

	fn := ssaPkg.Func(name)
	require.NotNil(t, fn, name)
	return fn
}

func countKind(g *flow.Graph, k flow.JumpKind) (n int) {
	for b := range g.Blocks() {
		if b.Kind == k {
			n++
		}
	}
	return n
}

func TestFromSSALoop(t *testing.T) {
	fn := build(t, "sum")

	g, err := FromSSA(fn)
	require.NoError(t, err)

	assert.Equal(t, "sum", g.Name)
	assert.GreaterOrEqual(t, g.NumBlocks(), len(fn.Blocks))
	assert.Equal(t, 1, countKind(g, flow.JumpReturn))
	assert.Equal(t, 1, countKind(g, flow.JumpCond))
	assert.Empty(t, g.EH)
	assert.True(t, g.First().Has(flow.FlagImported))

	res, err := passes.Optimize(context.Background(), g, passes.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, flow.Verify(g))

	loops := 0
	for _, b := range res.Order() {
		if res.IsLoopHead(b) {
			loops++
		}
	}
	assert.Positive(t, loops)
}

func TestFromSSAFoldsCompare(t *testing.T) {
	g, err := FromSSA(build(t, "count"))
	require.NoError(t, err)

	var tests, all []string
	for b := range g.Blocks() {
		if b.Kind == flow.JumpCond {
			tests = append(tests, b.Stmts.Lines()...)
		}
		all = append(all, b.Stmts.Lines()...)
	}
	assert.Equal(t, []string{"jtrue((l2 < l1))"}, tests)
	assert.NotContains(t, all, "l3 = (l2 < l1)")
}

// TestFromSSATailDuplicates verifies that the loop test is copied into
// the entry block, which stores the constant it compares.
func TestFromSSATailDuplicates(t *testing.T) {
	cfg := passes.DefaultConfig()
	cfg.Verify = true
	cfg.Layout = false

	cfg.TailDuplication = false
	g, err := FromSSA(build(t, "count"))
	require.NoError(t, err)
	_, err = passes.Optimize(context.Background(), g, cfg)
	require.NoError(t, err)
	assert.Equal(t, flow.JumpAlways, g.First().Kind)

	cfg.TailDuplication = true
	g, err = FromSSA(build(t, "count"))
	require.NoError(t, err)
	_, err = passes.Optimize(context.Background(), g, cfg)
	require.NoError(t, err)

	entry := g.First()
	require.Equal(t, flow.JumpCond, entry.Kind)
	got := entry.Stmts.Lines()
	require.Len(t, got, 2)
	assert.Equal(t, "l2 = 0", got[0])
	assert.Contains(t, []string{"jtrue((l2 < l1))", "jtrue((l2 >= l1))"}, got[1])
}

func TestFromSSAPanic(t *testing.T) {
	g, err := FromSSA(build(t, "check"))
	require.NoError(t, err)

	assert.Equal(t, 1, countKind(g, flow.JumpThrow))
	assert.Equal(t, 1, countKind(g, flow.JumpReturn))
}

func TestFromSSARecover(t *testing.T) {
	fn := build(t, "safe")
	require.NotNil(t, fn.Recover)

	g, err := FromSSA(fn)
	require.NoError(t, err)

	require.Len(t, g.EH, 1)
	r := g.EH[0]
	assert.Equal(t, flow.HandlerCatch, r.Kind)
	assert.Equal(t, g.First(), r.TryBeg)
	assert.Equal(t, g.Last(), r.HndBeg)
	assert.Equal(t, g.Last().Prev(), r.TryLast)

	_, err = passes.Optimize(context.Background(), g, passes.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, flow.Verify(g))
	assert.False(t, r.HndBeg.Has(flow.FlagRemoved), "handler is an entry")
}

func TestFromSSANoBody(t *testing.T) {
	fn := build(t, "sum")
	fn.Blocks = nil

	_, err := FromSSA(fn)
	assert.ErrorIs(t, err, ErrNoBody)
}

func TestFromSSAClosureName(t *testing.T) {
	fn := build(t, "safe")
	require.NotEmpty(t, fn.AnonFuncs)

	g, err := FromSSA(fn.AnonFuncs[0])
	require.NoError(t, err)
	assert.Equal(t, "safe$1", g.Name)
}
