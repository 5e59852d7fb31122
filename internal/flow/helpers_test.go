package flow

import (
	"strconv"
	"strings"
	"testing"
)

// testPayload is a list of opaque statement strings.
// "if ..." and "switch ..." terminate a block; "call ..." has side effects.
type testPayload struct {
	stmts []string
}

func newTestPayload() Payload { return &testPayload{} }

func stmts(s ...string) *testPayload { return &testPayload{stmts: s} }

func (p *testPayload) Len() int        { return len(p.stmts) }
func (p *testPayload) Lines() []string { return p.stmts }
func (p *testPayload) Cost() int       { return len(p.stmts) }
func (p *testPayload) Clear()          { p.stmts = nil }
func (p *testPayload) InsertNop()      { p.stmts = append(p.stmts, "nop") }

func (p *testPayload) Append(other Payload) {
	p.stmts = append(p.stmts, other.(*testPayload).stmts...)
}

func (p *testPayload) Clone() Payload {
	return &testPayload{stmts: append([]string(nil), p.stmts...)}
}

func (p *testPayload) HasSideEffects() bool {
	for _, s := range p.stmts {
		if strings.HasPrefix(s, "call") {
			return true
		}
	}
	return false
}

func (p *testPayload) last() string {
	if len(p.stmts) == 0 {
		return ""
	}
	return p.stmts[len(p.stmts)-1]
}

func (p *testPayload) DropBranch() {
	if l := p.last(); strings.HasPrefix(l, "if ") || strings.HasPrefix(l, "switch ") {
		p.stmts = p.stmts[:len(p.stmts)-1]
	}
}

func (p *testPayload) ReverseBranch() bool {
	l := p.last()
	if !strings.HasPrefix(l, "if ") {
		return false
	}
	c := strings.TrimPrefix(l, "if ")
	if strings.HasPrefix(c, "!") {
		c = c[1:]
	} else {
		c = "!" + c
	}
	p.stmts[len(p.stmts)-1] = "if " + c
	return true
}

func (p *testPayload) SwitchToCond() bool {
	l := p.last()
	if !strings.HasPrefix(l, "switch ") {
		return false
	}
	p.stmts[len(p.stmts)-1] = "if " + strings.TrimPrefix(l, "switch ") + " == 0"
	return true
}

func (p *testPayload) PeelCase(arm int) (Payload, bool) {
	l := p.last()
	if !strings.HasPrefix(l, "switch ") {
		return nil, false
	}
	v := strings.TrimPrefix(l, "switch ")
	p.stmts[len(p.stmts)-1] = "if " + v + " == " + strconv.Itoa(arm)
	return stmts(l), true
}

func (p *testPayload) SameTail(other Payload) bool {
	l := p.last()
	if l == "" || strings.HasPrefix(l, "if ") || strings.HasPrefix(l, "switch ") {
		return false
	}
	return l == other.(*testPayload).last()
}

func (p *testPayload) CutTail() Payload {
	l := p.last()
	if l == "" {
		return stmts()
	}
	p.stmts = p.stmts[:len(p.stmts)-1]
	return stmts(l)
}

func (p *testPayload) TestedLocal() (int, bool)      { return 0, false }
func (p *testPayload) StoresFavorably(int, int) bool { return false }

// newGraph returns an empty graph named after the test.
func newGraph(t *testing.T) *Graph {
	return New(t.Name(), newTestPayload)
}

// chain creates n blocks; every block but the last falls through.
func chain(g *Graph, n int) []*Block {
	bs := make([]*Block, n)
	for i := range bs {
		bs[i] = g.NewBlock(JumpFallthrough)
	}
	bs[n-1].Kind = JumpReturn
	return bs
}

func jump(b *Block, kind JumpKind, target *Block) {
	b.Kind = kind
	b.Target = target
}
