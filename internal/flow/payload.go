package flow

// Payload is a block's statement list. The graph never looks inside
// statements; every rewrite that needs to goes through this interface.
type Payload interface {
	// Len returns the number of statements.
	Len() int

	// Lines renders one line per statement.
	Lines() []string

	// Append moves the statements of other to the end of the list.
	Append(other Payload)

	// Clone returns a deep copy.
	Clone() Payload

	// Clear removes every statement.
	Clear()

	// Cost estimates the code size of the list.
	Cost() int

	// HasSideEffects reports whether any statement has observable effects.
	HasSideEffects() bool

	// DropBranch removes the terminating conditional or switch test,
	// keeping any side effects of its operands as statements.
	DropBranch()

	// ReverseBranch negates the terminating conditional test.
	// It reports false if there is none.
	ReverseBranch() bool

	// SwitchToCond rewrites a terminating switch on v into a
	// conditional test of v == 0. It reports false if there is none.
	SwitchToCond() bool

	// PeelCase rewrites a terminating switch on v into a conditional
	// test of v == arm and returns a new list holding the switch on a
	// copy of v. It reports false if there is no switch or evaluating v
	// twice could be observed.
	PeelCase(arm int) (Payload, bool)

	// SameTail reports whether both lists end in the same statement and
	// that statement is not a branch.
	SameTail(other Payload) bool

	// CutTail removes the last statement and returns it as a new list.
	CutTail() Payload

	// InsertNop appends a no-op so the list is no longer empty.
	InsertNop()

	// TestedLocal returns the local compared by a list consisting of
	// a single conditional test of a local against a constant or local.
	TestedLocal() (lcl int, ok bool)

	// StoresFavorably reports whether one of the last window statements
	// stores a constant, an array length or a comparison into lcl.
	StoresFavorably(lcl, window int) bool
}
