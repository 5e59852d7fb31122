package ir

import "github.com/you-not-fish/flowopt/internal/flow"

// List is a block's statement list. A conditional block ends in an
// OpJTrue statement and a switch block in an OpSwitch statement.
type List struct {
	Stmts []*Node
}

var _ flow.Payload = (*List)(nil)

// NewList returns a list holding stmts.
func NewList(stmts ...*Node) *List { return &List{Stmts: stmts} }

// NewPayload is the payload factory for graphs of ir statements.
func NewPayload() flow.Payload { return &List{} }

func (l *List) Len() int { return len(l.Stmts) }

func (l *List) Lines() []string {
	lines := make([]string, len(l.Stmts))
	for i, s := range l.Stmts {
		lines[i] = s.String()
	}
	return lines
}

func (l *List) Append(other flow.Payload) {
	o := other.(*List)
	l.Stmts = append(l.Stmts, o.Stmts...)
	o.Stmts = nil
}

func (l *List) Clone() flow.Payload {
	c := &List{Stmts: make([]*Node, len(l.Stmts))}
	for i, s := range l.Stmts {
		c.Stmts[i] = s.Clone()
	}
	return c
}

func (l *List) Clear() { l.Stmts = nil }

func (l *List) Cost() int {
	c := 0
	for _, s := range l.Stmts {
		c += s.Cost()
	}
	return c
}

func (l *List) HasSideEffects() bool {
	for _, s := range l.Stmts {
		if s.HasSideEffects() {
			return true
		}
	}
	return false
}

// Last returns the final statement, or nil.
func (l *List) Last() *Node {
	if len(l.Stmts) == 0 {
		return nil
	}
	return l.Stmts[len(l.Stmts)-1]
}

func (l *List) DropBranch() {
	last := l.Last()
	if last == nil || (last.Op != OpJTrue && last.Op != OpSwitch) {
		return
	}
	l.Stmts = append(l.Stmts[:len(l.Stmts)-1], sideEffects(last.Args[0])...)
}

func (l *List) ReverseBranch() bool {
	last := l.Last()
	if last == nil || last.Op != OpJTrue {
		return false
	}
	cond := last.Args[0]
	switch {
	case cond.Op.IsCompare():
		cond.Op = reversed[cond.Op]
	case cond.Op == OpNot:
		last.Args[0] = cond.Args[0]
	default:
		last.Args[0] = Not(cond)
	}
	return true
}

func (l *List) SwitchToCond() bool {
	last := l.Last()
	if last == nil || last.Op != OpSwitch {
		return false
	}
	l.Stmts[len(l.Stmts)-1] = JTrue(Bin(OpEq, last.Args[0], Const(0)))
	return true
}

func (l *List) PeelCase(arm int) (flow.Payload, bool) {
	last := l.Last()
	if last == nil || last.Op != OpSwitch || last.Args[0].HasSideEffects() {
		return nil, false
	}
	v := last.Args[0]
	l.Stmts[len(l.Stmts)-1] = JTrue(Bin(OpEq, v, Const(int64(arm))))
	return NewList(Switch(v.Clone())), true
}

func (l *List) SameTail(other flow.Payload) bool {
	a, b := l.Last(), other.(*List).Last()
	if a == nil || b == nil || a.Op == OpJTrue || a.Op == OpSwitch {
		return false
	}
	return a.Equal(b)
}

func (l *List) CutTail() flow.Payload {
	last := l.Last()
	if last == nil {
		return NewList()
	}
	l.Stmts = l.Stmts[:len(l.Stmts)-1]
	return NewList(last)
}

func (l *List) InsertNop() { l.Stmts = append(l.Stmts, Nop()) }

// TestedLocal matches a list that is exactly JTrue(x cmp y) where, casts
// aside, one side is a local and the other a constant or a local.
func (l *List) TestedLocal() (int, bool) {
	if len(l.Stmts) != 1 || l.Stmts[0].Op != OpJTrue {
		return 0, false
	}
	cond := l.Stmts[0].Args[0]
	if !cond.Op.IsCompare() {
		return 0, false
	}
	x, y := StripCasts(cond.Args[0]), StripCasts(cond.Args[1])
	switch {
	case x.Op == OpLocal && (y.Op == OpConst || y.Op == OpLocal):
		return int(x.Val), true
	case y.Op == OpLocal && x.Op == OpConst:
		return int(y.Val), true
	}
	return 0, false
}

// StoresFavorably reports whether one of the last window statements
// stores a constant, an array length or a comparison into lcl, which
// lets a duplicated test of lcl fold later.
func (l *List) StoresFavorably(lcl, window int) bool {
	for i := len(l.Stmts) - 1; i >= 0 && i >= len(l.Stmts)-window; i-- {
		s := l.Stmts[i]
		if s.Op != OpStore || int(s.Val) != lcl {
			continue
		}
		v := StripCasts(s.Args[0])
		if v.Op == OpConst || v.Op == OpArrLen || v.Op.IsCompare() {
			return true
		}
	}
	return false
}
