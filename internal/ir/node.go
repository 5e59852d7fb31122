// Package ir is a small tree-shaped statement representation used as the
// payload of flow graph blocks.
package ir

import (
	"fmt"
	"strings"
)

// Op is the operator of a Node.
type Op uint8

const (
	OpInvalid Op = iota

	OpConst  // Val
	OpLocal  // local number Val
	OpArrLen // len(Args[0])
	OpCast   // conversion of Args[0]
	OpAdd
	OpSub
	OpMul
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNot    // !Args[0]
	OpCall   // call Name(Args...)
	OpStore  // local Val = Args[0]
	OpJTrue  // branch if Args[0]
	OpSwitch // switch on Args[0]
	OpReturn // return Args...
	OpThrow  // throw Args[0]
	OpNop    // placeholder
	OpOpaque // anything else; Name describes it
)

var opNames = [...]string{
	OpInvalid: "invalid",
	OpConst:   "const",
	OpLocal:   "local",
	OpArrLen:  "len",
	OpCast:    "cast",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpEq:      "==",
	OpNe:      "!=",
	OpLt:      "<",
	OpLe:      "<=",
	OpGt:      ">",
	OpGe:      ">=",
	OpNot:     "!",
	OpCall:    "call",
	OpStore:   "store",
	OpJTrue:   "jtrue",
	OpSwitch:  "switch",
	OpReturn:  "return",
	OpThrow:   "throw",
	OpNop:     "nop",
	OpOpaque:  "opaque",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// IsCompare reports whether op is a relational operator.
func (op Op) IsCompare() bool { return op >= OpEq && op <= OpGe }

// IsBinary reports whether op takes two operands.
func (op Op) IsBinary() bool { return op >= OpAdd && op <= OpGe }

// reversed maps a comparison to its negation.
var reversed = map[Op]Op{
	OpEq: OpNe, OpNe: OpEq,
	OpLt: OpGe, OpGe: OpLt,
	OpLe: OpGt, OpGt: OpLe,
}

// Node is an expression or statement tree.
type Node struct {
	Op   Op
	Val  int64
	Name string
	Args []*Node

	// SideEffects marks an OpOpaque node with observable effects.
	SideEffects bool
}

func Const(v int64) *Node          { return &Node{Op: OpConst, Val: v} }
func Local(n int) *Node            { return &Node{Op: OpLocal, Val: int64(n)} }
func ArrLen(x *Node) *Node         { return &Node{Op: OpArrLen, Args: []*Node{x}} }
func Cast(x *Node) *Node           { return &Node{Op: OpCast, Args: []*Node{x}} }
func Not(x *Node) *Node            { return &Node{Op: OpNot, Args: []*Node{x}} }
func Bin(op Op, x, y *Node) *Node  { return &Node{Op: op, Args: []*Node{x, y}} }
func Store(lcl int, x *Node) *Node { return &Node{Op: OpStore, Val: int64(lcl), Args: []*Node{x}} }
func JTrue(cond *Node) *Node       { return &Node{Op: OpJTrue, Args: []*Node{cond}} }
func Switch(x *Node) *Node         { return &Node{Op: OpSwitch, Args: []*Node{x}} }
func Return(xs ...*Node) *Node     { return &Node{Op: OpReturn, Args: xs} }
func Throw(x *Node) *Node          { return &Node{Op: OpThrow, Args: []*Node{x}} }
func Nop() *Node                   { return &Node{Op: OpNop} }
func Call(name string, args ...*Node) *Node {
	return &Node{Op: OpCall, Name: name, Args: args}
}

// Opaque returns a node the optimizer does not look into.
func Opaque(desc string, sideEffects bool, args ...*Node) *Node {
	return &Node{Op: OpOpaque, Name: desc, Args: args, SideEffects: sideEffects}
}

// HasSideEffects reports whether evaluating n can be observed.
func (n *Node) HasSideEffects() bool {
	switch n.Op {
	case OpCall, OpStore, OpThrow, OpReturn:
		return true
	case OpOpaque:
		if n.SideEffects {
			return true
		}
	}
	for _, a := range n.Args {
		if a.HasSideEffects() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	if n.Args != nil {
		c.Args = make([]*Node, len(n.Args))
		for i, a := range n.Args {
			c.Args[i] = a.Clone()
		}
	}
	return &c
}

// Equal reports whether n and o are the same tree.
func (n *Node) Equal(o *Node) bool {
	if n.Op != o.Op || n.Val != o.Val || n.Name != o.Name ||
		n.SideEffects != o.SideEffects || len(n.Args) != len(o.Args) {
		return false
	}
	for i, a := range n.Args {
		if !a.Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

// Cost estimates the code size of n.
func (n *Node) Cost() int {
	c := 1
	switch n.Op {
	case OpCall:
		c = 5
	case OpNop:
		c = 0
	}
	for _, a := range n.Args {
		c += a.Cost()
	}
	return c
}

// StripCasts returns n with any outer conversions removed.
func StripCasts(n *Node) *Node {
	for n.Op == OpCast {
		n = n.Args[0]
	}
	return n
}

// sideEffects returns the subtrees of n that must still be evaluated
// if n's value is discarded.
func sideEffects(n *Node) []*Node {
	switch n.Op {
	case OpCall, OpStore, OpThrow:
		return []*Node{n}
	case OpOpaque:
		if n.SideEffects {
			return []*Node{n}
		}
	}
	var out []*Node
	for _, a := range n.Args {
		out = append(out, sideEffects(a)...)
	}
	return out
}

func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	switch {
	case n.Op == OpConst:
		fmt.Fprintf(sb, "%d", n.Val)
	case n.Op == OpLocal:
		fmt.Fprintf(sb, "l%d", n.Val)
	case n.Op == OpStore:
		fmt.Fprintf(sb, "l%d = ", n.Val)
		n.Args[0].write(sb)
	case n.Op.IsBinary():
		sb.WriteString("(")
		n.Args[0].write(sb)
		fmt.Fprintf(sb, " %s ", n.Op)
		n.Args[1].write(sb)
		sb.WriteString(")")
	case n.Op == OpNot:
		sb.WriteString("!")
		n.Args[0].write(sb)
	case n.Op == OpNop:
		sb.WriteString("nop")
	default:
		name := n.Op.String()
		if n.Name != "" {
			name += " " + n.Name
		}
		sb.WriteString(name)
		sb.WriteString("(")
		for i, a := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			a.write(sb)
		}
		sb.WriteString(")")
	}
}
