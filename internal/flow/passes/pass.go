package passes

import (
	"fmt"

	"github.com/nikandfor/errors"

	"github.com/you-not-fish/flowopt/internal/flow"
)

// Pass describes a single flow graph optimization pass.
// Fn reports whether it changed the graph.
type Pass struct {
	Name string
	Fn   func(c *Context) bool
}

// Run executes the given passes on c.Graph in order and reports whether
// any of them changed it.
func Run(c *Context, passes []Pass) (changed bool, err error) {
	cfg := &c.Config
	g := c.Graph
	w := cfg.dumpWriter()

	for _, p := range passes {
		if shouldDump(cfg.DumpBefore, p.Name) && matchFunc(cfg.DumpFunc, g.Name) {
			fmt.Fprintf(w, "--- before %s (%s) ---\n", p.Name, g.Name)
			flow.Fprint(w, g)
			fmt.Fprintln(w)
		}

		if cfg.Verify {
			if err := flow.Verify(g); err != nil {
				return changed, errors.Wrap(err, "verify before %s", p.Name)
			}
		}

		if p.Fn(c) {
			changed = true
			c.Logf("pass changed graph", "pass", p.Name)
		}

		if cfg.Verify {
			if err := flow.Verify(g); err != nil {
				return changed, errors.Wrap(err, "verify after %s", p.Name)
			}
		}

		if shouldDump(cfg.DumpAfter, p.Name) && matchFunc(cfg.DumpFunc, g.Name) {
			fmt.Fprintf(w, "--- after %s (%s) ---\n", p.Name, g.Name)
			flow.Fprint(w, g)
			fmt.Fprintln(w)
		}
	}
	return changed, nil
}

func shouldDump(pattern, name string) bool {
	return pattern == "*" || pattern == name
}

func matchFunc(filter, name string) bool {
	return filter == "" || filter == name
}
