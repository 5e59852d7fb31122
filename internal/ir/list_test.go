package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseBranch(t *testing.T) {
	tests := []struct {
		cond *Node
		want string
	}{
		{Bin(OpLt, Local(1), Const(3)), "jtrue((l1 >= 3))"},
		{Bin(OpEq, Local(1), Local(2)), "jtrue((l1 != l2))"},
		{Local(4), "jtrue(!l4)"},
		{Not(Local(4)), "jtrue(l4)"},
	}
	for _, tt := range tests {
		l := NewList(JTrue(tt.cond))
		require.True(t, l.ReverseBranch())
		assert.Equal(t, tt.want, l.Last().String())
	}

	assert.False(t, NewList(Return()).ReverseBranch())
}

func TestDropBranchKeepsSideEffects(t *testing.T) {
	l := NewList(
		Store(1, Const(0)),
		JTrue(Bin(OpNe, Call("f", Local(2)), Const(0))),
	)

	l.DropBranch()

	assert.Equal(t, []string{"l1 = 0", "call f(l2)"}, l.Lines())

	l = NewList(JTrue(Bin(OpNe, Local(2), Const(0))))
	l.DropBranch()
	assert.Zero(t, l.Len())
}

func TestSwitchToCond(t *testing.T) {
	l := NewList(Switch(Local(3)))

	require.True(t, l.SwitchToCond())
	assert.Equal(t, "jtrue((l3 == 0))", l.Last().String())
	assert.False(t, l.SwitchToCond())
}

func TestTestedLocal(t *testing.T) {
	tests := []struct {
		name string
		l    *List
		lcl  int
		ok   bool
	}{
		{"local vs const", NewList(JTrue(Bin(OpLt, Cast(Local(2)), Const(10)))), 2, true},
		{"const vs local", NewList(JTrue(Bin(OpEq, Const(1), Local(5)))), 5, true},
		{"local vs local", NewList(JTrue(Bin(OpGe, Local(1), Local(7)))), 1, true},
		{"not a compare", NewList(JTrue(Local(1))), 0, false},
		{"two statements", NewList(Nop(), JTrue(Bin(OpEq, Local(1), Const(0)))), 0, false},
		{"call operand", NewList(JTrue(Bin(OpEq, Call("f"), Const(0)))), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lcl, ok := tt.l.TestedLocal()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.lcl, lcl)
		})
	}
}

func TestStoresFavorably(t *testing.T) {
	l := NewList(
		Store(1, Const(0)),
		Store(2, Call("g")),
		Store(3, ArrLen(Local(9))),
		Call("h"),
	)

	assert.True(t, l.StoresFavorably(3, 2))
	assert.False(t, l.StoresFavorably(1, 2), "outside the window")
	assert.True(t, l.StoresFavorably(1, 4))
	assert.False(t, l.StoresFavorably(2, 4), "call result")
}

func TestCloneIsDeep(t *testing.T) {
	l := NewList(JTrue(Bin(OpLt, Local(1), Const(3))))
	c := l.Clone().(*List)

	require.True(t, c.ReverseBranch())

	assert.Equal(t, "jtrue((l1 < 3))", l.Last().String())
	assert.Equal(t, "jtrue((l1 >= 3))", c.Last().String())
}

func TestCostAndSideEffects(t *testing.T) {
	l := NewList(Store(1, Bin(OpAdd, Local(1), Const(1))), Nop())
	assert.Equal(t, 4, l.Cost())
	assert.True(t, l.HasSideEffects())

	l = NewList(JTrue(Bin(OpLt, Local(1), Const(3))))
	assert.Equal(t, 4, l.Cost())
	assert.False(t, l.HasSideEffects())
}

func TestPeelCase(t *testing.T) {
	l := NewList(Store(1, Call("f")), Switch(Local(1)))

	sw, ok := l.PeelCase(2)
	require.True(t, ok)
	assert.Equal(t, []string{"l1 = call f()", "jtrue((l1 == 2))"}, l.Lines())
	assert.Equal(t, []string{"switch(l1)"}, sw.Lines())

	l = NewList(Switch(Call("g")))
	_, ok = l.PeelCase(0)
	assert.False(t, ok, "switch value has side effects")
	assert.Equal(t, []string{"switch(call g())"}, l.Lines())

	_, ok = NewList(Return()).PeelCase(0)
	assert.False(t, ok)
}

func TestSameTail(t *testing.T) {
	a := NewList(Call("f"), Store(1, Bin(OpAdd, Local(2), Const(1))))
	b := NewList(Store(1, Bin(OpAdd, Local(2), Const(1))))
	c := NewList(Store(1, Bin(OpAdd, Local(2), Const(2))))

	assert.True(t, a.SameTail(b))
	assert.False(t, a.SameTail(c))
	assert.False(t, a.SameTail(NewList()))
	assert.False(t, NewList(JTrue(Local(1))).SameTail(NewList(JTrue(Local(1)))), "branches never match")
}

func TestCutTail(t *testing.T) {
	l := NewList(Call("f"), Store(1, Const(0)))

	tail := l.CutTail()

	assert.Equal(t, []string{"call f()"}, l.Lines())
	assert.Equal(t, []string{"l1 = 0"}, tail.Lines())
	assert.Zero(t, NewList().CutTail().Len())
}

func TestEqual(t *testing.T) {
	x := Call("f", Local(1), Const(2))
	assert.True(t, x.Equal(x.Clone()))
	assert.False(t, x.Equal(Call("g", Local(1), Const(2))))
	assert.False(t, x.Equal(Call("f", Local(1))))
	assert.False(t, Opaque("load", true).Equal(Opaque("load", false)))
}
