package flow

import (
	"fmt"
	"strings"
)

// ID is a dense block number. Real blocks are numbered from 1;
// Root is the synthetic super-root used by dominance.
type ID int32

// Root is the ID of the synthetic super-root. No real block carries it.
const Root ID = 0

// JumpKind describes how a basic block terminates.
type JumpKind uint8

const (
	JumpInvalid       JumpKind = iota
	JumpFallthrough            // continues into Next()
	JumpAlways                 // unconditional jump to Target
	JumpCond                   // jump to Target if the test holds, else fall into Next()
	JumpSwitch                 // jump through Switch arms
	JumpReturn                 // method return
	JumpThrow                  // raises; no successors
	JumpCallFinally            // calls the finally at Target, continues into Next()
	JumpFinallyReturn          // returns to the continuation of every caller
	JumpFilterReturn           // filter done; Target is the handler begin
	JumpCatchReturn            // leaves a catch handler for Target
)

var jumpKindNames = [...]string{
	JumpInvalid:       "invalid",
	JumpFallthrough:   "fallthrough",
	JumpAlways:        "always",
	JumpCond:          "cond",
	JumpSwitch:        "switch",
	JumpReturn:        "return",
	JumpThrow:         "throw",
	JumpCallFinally:   "callfinally",
	JumpFinallyReturn: "finallyret",
	JumpFilterReturn:  "filterret",
	JumpCatchReturn:   "catchret",
}

// String returns the string representation of the jump kind.
func (k JumpKind) String() string {
	if int(k) < len(jumpKindNames) {
		return jumpKindNames[k]
	}
	return "unknown"
}

// HasTarget reports whether blocks of kind k use Block.Target.
func (k JumpKind) HasTarget() bool {
	switch k {
	case JumpAlways, JumpCond, JumpCallFinally, JumpFilterReturn, JumpCatchReturn:
		return true
	}
	return false
}

// Flags is a set of block attributes.
type Flags uint32

const (
	FlagDontRemove    Flags = 1 << iota // must survive even if unreachable
	FlagInternal                        // created by the compiler, not imported
	FlagImported                        // carries imported code
	FlagLoopHead                        // target of a back edge
	FlagFinallyTarget                   // continuation of a call-finally
	FlagRunRarely                       // cold
	FlagProfileWeight                   // Weight came from profile data
	FlagRemoved                         // tombstone
	FlagKeepAlways                      // continuation half of a call-finally pair
	FlagRetlessCall                     // call-finally whose finally never returns
	FlagGCSafe                          // every path here passes a GC safe point
	FlagThrowHelper                     // shared throw helper
	FlagDontMove                        // layout must not relocate this block
	FlagPreheader                       // loop preheader
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FlagDontRemove, "dontremove"},
	{FlagInternal, "internal"},
	{FlagImported, "imported"},
	{FlagLoopHead, "loophead"},
	{FlagFinallyTarget, "finallytarget"},
	{FlagRunRarely, "rare"},
	{FlagProfileWeight, "profile"},
	{FlagRemoved, "removed"},
	{FlagKeepAlways, "keepalways"},
	{FlagRetlessCall, "retless"},
	{FlagGCSafe, "gcsafe"},
	{FlagThrowHelper, "throwhelper"},
	{FlagDontMove, "dontmove"},
	{FlagPreheader, "preheader"},
}

func (f Flags) String() string {
	var parts []string
	for _, n := range flagNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// Weight is a block or edge execution weight.
type Weight float64

const (
	WeightZero  Weight = 0
	WeightUnity Weight = 100

	// LoopWeightScale is the assumed trip count of a loop when
	// weights are estimated rather than measured.
	LoopWeightScale Weight = 8
)

// Block is a basic block of a Graph.
// Blocks form a doubly linked list in lexical order; fall-through
// always continues into the lexically next block.
type Block struct {
	// ID is unique within the graph. It is dense only right after Renumber.
	ID ID

	// Kind describes how this block terminates.
	Kind JumpKind

	// Target is the jump destination for kinds with HasTarget.
	Target *Block

	// Switch holds the arms of a JumpSwitch block. Arms may repeat.
	Switch []*Block

	// Stmts is the block's statement list.
	Stmts Payload

	Flags  Flags
	Weight Weight

	// TryIndex and HndIndex are 1-based indices into Graph.EH; 0 means none.
	TryIndex int
	HndIndex int

	// Preds holds one edge per distinct predecessor.
	Preds []*Edge

	graph      *Graph
	next, prev *Block
}

// String returns a short name (e.g., "BB03").
func (b *Block) String() string {
	if b == nil {
		return "<nil>"
	}
	return fmt.Sprintf("BB%02d", b.ID)
}

// Graph returns the graph containing b.
func (b *Block) Graph() *Graph { return b.graph }

// Next returns the lexically next block, or nil.
func (b *Block) Next() *Block { return b.next }

// Prev returns the lexically previous block, or nil.
func (b *Block) Prev() *Block { return b.prev }

// Has reports whether all of f are set on b.
func (b *Block) Has(f Flags) bool { return b.Flags&f == f }

// Set sets f on b.
func (b *Block) Set(f Flags) { b.Flags |= f }

// Clear clears f on b.
func (b *Block) Clear(f Flags) { b.Flags &^= f }

// IsRarelyRun reports whether b is cold.
func (b *Block) IsRarelyRun() bool { return b.Has(FlagRunRarely) }

// HasProfileWeight reports whether b's weight was measured.
func (b *Block) HasProfileWeight() bool { return b.Has(FlagProfileWeight) }

// IsEmpty reports whether b has no statements.
func (b *Block) IsEmpty() bool { return b.Stmts == nil || b.Stmts.Len() == 0 }

// MakeRarelyRun marks b cold and zeroes its weight.
func (b *Block) MakeRarelyRun() {
	b.Weight = WeightZero
	b.Set(FlagRunRarely)
	b.Clear(FlagProfileWeight)
}

// SetWeight sets b's weight, keeping the rarely-run flag in sync.
func (b *Block) SetWeight(w Weight) {
	b.Weight = w
	if w == WeightZero {
		b.Set(FlagRunRarely)
	} else {
		b.Clear(FlagRunRarely)
	}
}

// IsCallFinallyPair reports whether b is a call-finally followed by
// its continuation block.
func (b *Block) IsCallFinallyPair() bool {
	return b.Kind == JumpCallFinally && !b.Has(FlagRetlessCall)
}

// IsPairTail reports whether b is the continuation half of a call-finally pair.
func (b *Block) IsPairTail() bool {
	return b.prev != nil && b.prev.IsCallFinallyPair()
}

// FallsThrough reports whether control can leave b into Next().
func (b *Block) FallsThrough() bool {
	switch b.Kind {
	case JumpFallthrough, JumpCond:
		return true
	case JumpCallFinally:
		return !b.Has(FlagRetlessCall)
	}
	return false
}

// Succs returns b's successor arms in order. A block appears once per arm,
// so duplicates mirror edge multiplicity.
func (b *Block) Succs() []*Block {
	switch b.Kind {
	case JumpFallthrough:
		if b.next == nil {
			return nil
		}
		return []*Block{b.next}
	case JumpCond:
		if b.next == nil {
			return []*Block{b.Target}
		}
		return []*Block{b.next, b.Target}
	case JumpAlways, JumpCallFinally, JumpFilterReturn, JumpCatchReturn:
		return []*Block{b.Target}
	case JumpSwitch:
		return b.Switch
	case JumpFinallyReturn:
		return b.graph.finallyContinuations(b)
	case JumpReturn, JumpThrow:
		return nil
	default:
		b.graph.Fatalf("%s: unexpected jump kind %s", b, b.Kind)
		return nil
	}
}

// UniqueSuccs returns b's distinct successors in arm order.
func (b *Block) UniqueSuccs() []*Block {
	succs := b.Succs()
	out := make([]*Block, 0, len(succs))
	for _, s := range succs {
		if !containsBlock(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// NumSuccs returns the number of successor arms.
func (b *Block) NumSuccs() int { return len(b.Succs()) }

// JumpsTo reports whether any arm of b is s.
func (b *Block) JumpsTo(s *Block) bool {
	return containsBlock(b.Succs(), s)
}

// JumpsToTarget reports whether a jump arm of b, as opposed to its
// fall-through, is s.
func (b *Block) JumpsToTarget(s *Block) bool {
	switch {
	case b.Kind == JumpSwitch:
		return containsBlock(b.Switch, s)
	case b.Kind.HasTarget():
		return b.Target == s
	}
	return false
}

func containsBlock(bs []*Block, b *Block) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}
