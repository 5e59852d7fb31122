// Package importer turns Go functions, as built by golang.org/x/tools/go/ssa,
// into flow graphs.
//
// Every SSA basic block becomes one flow block in the same order. A
// comparison used only by the branch ending its block is folded into the
// branch test. Phi nodes are lowered to copies at the end of the incoming
// edges; an edge that
// needs copies, or a false arm that is not the next block, gets a block of
// its own. A function with a recover block is wrapped in one catch region
// whose handler is the recover block.
package importer

import (
	"go/constant"
	"go/token"
	"go/types"
	"sort"

	"github.com/nikandfor/errors"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/ir"
)

// ErrNoBody is returned for functions without Go source, such as
// assembly or external declarations.
var ErrNoBody = errors.New("function has no body")

// LoadPackages loads and builds the packages matching patterns and returns
// their functions, including methods and closures, sorted by name.
func LoadPackages(patterns ...string) ([]*ssa.Function, error) {
	cfg := &packages.Config{Mode: packages.LoadSyntax}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, errors.Wrap(err, "load packages")
	}
	if n := packages.PrintErrors(pkgs); n != 0 {
		return nil, errors.New("%d errors loading %v", n, patterns)
	}

	prog, ssaPkgs := ssautil.Packages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	mine := make(map[*ssa.Package]bool, len(ssaPkgs))
	for _, p := range ssaPkgs {
		if p != nil {
			mine[p] = true
		}
	}

	var fns []*ssa.Function
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Blocks == nil || !mine[fn.Pkg] {
			continue
		}
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].String() < fns[j].String() })

	return fns, nil
}

// Name returns the graph name used for fn: its name relative to its package.
func Name(fn *ssa.Function) string {
	if fn.Pkg != nil {
		return fn.RelString(fn.Pkg.Pkg)
	}
	return fn.String()
}

type builder struct {
	fn *ssa.Function
	g  *flow.Graph

	blocks map[*ssa.BasicBlock]*flow.Block
	locals map[ssa.Value]int
	nlocal int
}

// FromSSA builds the flow graph of fn. Predecessor lists are computed,
// so the graph is ready for the optimizer.
func FromSSA(fn *ssa.Function) (*flow.Graph, error) {
	if len(fn.Blocks) == 0 {
		return nil, errors.Wrap(ErrNoBody, "%v", fn)
	}

	b := &builder{
		fn:     fn,
		g:      flow.New(Name(fn), ir.NewPayload),
		blocks: make(map[*ssa.BasicBlock]*flow.Block, len(fn.Blocks)+1),
		locals: make(map[ssa.Value]int),
	}
	for _, p := range fn.Params {
		b.local(p)
	}

	for _, sb := range fn.Blocks {
		if sb != fn.Recover {
			b.blocks[sb] = b.newBlock()
		}
	}
	if fn.Recover != nil {
		b.blocks[fn.Recover] = b.newBlock()
	}

	for _, sb := range fn.Blocks {
		if err := b.block(sb); err != nil {
			return nil, errors.Wrap(err, "%v: block %d", fn, sb.Index)
		}
	}

	if fn.Recover != nil {
		b.recoverRegion(b.blocks[fn.Recover])
	}

	b.g.ComputePreds()
	if err := flow.Verify(b.g); err != nil {
		return nil, errors.Wrap(err, "%v", fn)
	}
	return b.g, nil
}

func (b *builder) newBlock() *flow.Block {
	fb := b.g.NewBlock(flow.JumpReturn)
	fb.Stmts = ir.NewList()
	fb.Set(flow.FlagImported)
	return fb
}

// edgeBlock inserts an internal jump to dest right after at.
func (b *builder) edgeBlock(at, dest *flow.Block) *flow.Block {
	e := b.g.NewBlockAfter(flow.JumpAlways, at)
	e.Target = dest
	e.Stmts = ir.NewList()
	e.Set(flow.FlagInternal)
	return e
}

func (b *builder) block(sb *ssa.BasicBlock) error {
	fb := b.blocks[sb]
	stmts := fb.Stmts.(*ir.List)

	n := len(sb.Instrs)
	if n == 0 {
		return errors.New("empty block")
	}
	folded := foldedCond(sb)
	for _, in := range sb.Instrs[:n-1] {
		if folded != nil && in == ssa.Instruction(folded) {
			continue
		}
		if s := b.stmt(in); s != nil {
			stmts.Stmts = append(stmts.Stmts, s)
		}
	}

	switch t := sb.Instrs[n-1].(type) {
	case *ssa.Jump:
		stmts.Stmts = append(stmts.Stmts, b.phiCopies(sb, sb.Succs[0])...)
		fb.Kind = flow.JumpAlways
		fb.Target = b.blocks[sb.Succs[0]]

	case *ssa.If:
		test := b.operand(t.Cond)
		if folded != nil {
			test = b.expr(folded)
		}
		stmts.Stmts = append(stmts.Stmts, ir.JTrue(test))
		fb.Kind = flow.JumpCond

		taken, fall := sb.Succs[0], sb.Succs[1]
		takenCopies := b.phiCopies(sb, taken)
		fallCopies := b.phiCopies(sb, fall)

		fb.Target = b.blocks[taken]
		if len(takenCopies) != 0 {
			e := b.edgeBlock(fb, b.blocks[taken])
			e.Stmts.(*ir.List).Stmts = takenCopies
			fb.Target = e
		}
		if len(fallCopies) != 0 || fb.Next() != b.blocks[fall] {
			e := b.edgeBlock(fb, b.blocks[fall])
			e.Stmts.(*ir.List).Stmts = fallCopies
		}

	case *ssa.Return:
		args := make([]*ir.Node, len(t.Results))
		for i, r := range t.Results {
			args[i] = b.operand(r)
		}
		stmts.Stmts = append(stmts.Stmts, ir.Return(args...))
		fb.Kind = flow.JumpReturn

	case *ssa.Panic:
		stmts.Stmts = append(stmts.Stmts, ir.Throw(b.operand(t.X)))
		fb.Kind = flow.JumpThrow

	default:
		return errors.New("unexpected terminator %T", t)
	}
	return nil
}

// foldedCond returns the comparison that only the If ending sb uses, if
// it is computed in sb. It becomes the branch test instead of a local.
func foldedCond(sb *ssa.BasicBlock) *ssa.BinOp {
	t, ok := sb.Instrs[len(sb.Instrs)-1].(*ssa.If)
	if !ok {
		return nil
	}
	c, ok := t.Cond.(*ssa.BinOp)
	if !ok || c.Block() != sb {
		return nil
	}
	if op, ok := binOps[c.Op]; !ok || !op.IsCompare() {
		return nil
	}
	if refs := c.Referrers(); refs == nil || len(*refs) != 1 {
		return nil
	}
	return c
}

// phiCopies returns the stores that feed the phis of to along the edge
// from. With more than one phi the values go through temporaries first,
// since one phi may read another.
func (b *builder) phiCopies(from, to *ssa.BasicBlock) []*ir.Node {
	k := -1
	for i, p := range to.Preds {
		if p == from {
			k = i
			break
		}
	}

	var phis []*ssa.Phi
	for _, in := range to.Instrs {
		phi, ok := in.(*ssa.Phi)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	if k < 0 || len(phis) == 0 {
		return nil
	}

	if len(phis) == 1 {
		return []*ir.Node{ir.Store(b.local(phis[0]), b.operand(phis[0].Edges[k]))}
	}

	out := make([]*ir.Node, 0, 2*len(phis))
	tmps := make([]int, len(phis))
	for i, phi := range phis {
		tmps[i] = b.temp()
		out = append(out, ir.Store(tmps[i], b.operand(phi.Edges[k])))
	}
	for i, phi := range phis {
		out = append(out, ir.Store(b.local(phi), ir.Local(tmps[i])))
	}
	return out
}

// stmt lowers a non-terminating instruction. Phis and debug markers
// produce nothing.
func (b *builder) stmt(in ssa.Instruction) *ir.Node {
	switch in := in.(type) {
	case *ssa.Phi, *ssa.DebugRef:
		return nil

	case *ssa.Call:
		call := b.call(&in.Call)
		if t, ok := in.Type().(*types.Tuple); ok && t.Len() == 0 {
			return call
		}
		return ir.Store(b.local(in), call)

	case ssa.Value:
		return ir.Store(b.local(in), b.expr(in))

	default:
		// Stores, map updates, sends, go and defer statements.
		return ir.Opaque(in.String(), true)
	}
}

// expr lowers the right-hand side of a value instruction.
func (b *builder) expr(v ssa.Value) *ir.Node {
	switch v := v.(type) {
	case *ssa.BinOp:
		if op, ok := binOps[v.Op]; ok {
			return ir.Bin(op, b.operand(v.X), b.operand(v.Y))
		}
		return ir.Opaque(v.Op.String(), false, b.operand(v.X), b.operand(v.Y))

	case *ssa.UnOp:
		switch v.Op {
		case token.NOT:
			return ir.Not(b.operand(v.X))
		case token.SUB:
			return ir.Bin(ir.OpSub, ir.Const(0), b.operand(v.X))
		}
		// Loads and receives.
		return ir.Opaque(v.Op.String(), true, b.operand(v.X))

	case *ssa.Convert:
		return ir.Cast(b.operand(v.X))
	case *ssa.ChangeType:
		return ir.Cast(b.operand(v.X))
	}
	return ir.Opaque(v.String(), false)
}

var binOps = map[token.Token]ir.Op{
	token.ADD: ir.OpAdd,
	token.SUB: ir.OpSub,
	token.MUL: ir.OpMul,
	token.EQL: ir.OpEq,
	token.NEQ: ir.OpNe,
	token.LSS: ir.OpLt,
	token.LEQ: ir.OpLe,
	token.GTR: ir.OpGt,
	token.GEQ: ir.OpGe,
}

func (b *builder) call(c *ssa.CallCommon) *ir.Node {
	args := make([]*ir.Node, 0, len(c.Args))
	for _, a := range c.Args {
		args = append(args, b.operand(a))
	}

	if bi, ok := c.Value.(*ssa.Builtin); ok && bi.Name() == "len" && len(args) == 1 {
		return ir.ArrLen(args[0])
	}

	var name string
	switch {
	case c.IsInvoke():
		name = c.Method.Name()
		args = append([]*ir.Node{b.operand(c.Value)}, args...)
	case c.StaticCallee() != nil:
		name = Name(c.StaticCallee())
	default:
		name = c.Value.Name()
	}
	return ir.Call(name, args...)
}

// operand lowers a value used by an instruction.
func (b *builder) operand(v ssa.Value) *ir.Node {
	switch v := v.(type) {
	case *ssa.Const:
		if v.Value != nil {
			switch v.Value.Kind() {
			case constant.Int:
				if n, ok := constant.Int64Val(v.Value); ok {
					return ir.Const(n)
				}
			case constant.Bool:
				if constant.BoolVal(v.Value) {
					return ir.Const(1)
				}
				return ir.Const(0)
			}
		}
		return ir.Opaque(v.String(), false)

	case *ssa.Function, *ssa.Global, *ssa.Builtin:
		return ir.Opaque(v.Name(), false)
	}
	return ir.Local(b.local(v))
}

func (b *builder) local(v ssa.Value) int {
	if n, ok := b.locals[v]; ok {
		return n
	}
	n := b.temp()
	b.locals[v] = n
	return n
}

func (b *builder) temp() int {
	b.nlocal++
	return b.nlocal
}

// recoverRegion makes every block before h a try region handled by h.
func (b *builder) recoverRegion(h *flow.Block) {
	g := b.g
	first := g.First()
	last := h.Prev()
	if last == nil || h.Next() != nil {
		return
	}

	idx := g.AddRegion(&flow.Region{
		Kind:    flow.HandlerCatch,
		TryBeg:  first,
		TryLast: last,
		HndBeg:  h,
		HndLast: h,
	})
	for fb := first; fb != h; fb = fb.Next() {
		fb.TryIndex = idx
	}
	h.HndIndex = idx
}
