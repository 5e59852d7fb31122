package flow

import (
	"fmt"

	"github.com/nikandfor/errors"
)

// ErrInternal is matched by every internal invariant failure.
// Callers treat it as "retry without this optimization".
var ErrInternal = errors.New("internal compiler error")

// InternalError reports a broken graph invariant.
type InternalError struct {
	Graph string
	Msg   string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInternal, e.Graph, e.Msg)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

// Fatalf aborts the current optimization by panicking with an
// *InternalError. Drivers recover it at the pass boundary.
func (g *Graph) Fatalf(format string, args ...interface{}) {
	panic(&InternalError{Graph: g.Name, Msg: fmt.Sprintf(format, args...)})
}

// Recover converts a panic carrying an *InternalError into an error
// stored in *errp. Other panics are re-raised.
//
//	defer flow.Recover(&err)
func Recover(errp *error) {
	p := recover()
	if p == nil {
		return
	}
	ie, ok := p.(*InternalError)
	if !ok {
		panic(p)
	}
	*errp = ie
}
