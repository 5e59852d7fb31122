package passes

import (
	"bytes"
	"strings"
	"testing"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/ir"
)

func returnGraph(t *testing.T) *Context {
	g := newGraph(t)
	block(g, flow.JumpReturn, ir.Return())
	return newContext(t, g, Config{})
}

func TestRunEmpty(t *testing.T) {
	c := returnGraph(t)

	changed, err := Run(c, nil)
	if err != nil {
		t.Fatalf("Run with no passes: %v", err)
	}
	if changed {
		t.Error("no passes reported a change")
	}
}

func TestRunSinglePass(t *testing.T) {
	c := returnGraph(t)

	called := false
	passes := []Pass{
		{Name: "test", Fn: func(*Context) bool { called = true; return true }},
	}

	changed, err := Run(c, passes)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !called {
		t.Error("pass was not called")
	}
	if !changed {
		t.Error("change not reported")
	}
}

func TestRunMultiplePasses(t *testing.T) {
	c := returnGraph(t)

	var order []string
	passes := []Pass{
		{Name: "first", Fn: func(*Context) bool { order = append(order, "first"); return false }},
		{Name: "second", Fn: func(*Context) bool { order = append(order, "second"); return false }},
	}

	changed, err := Run(c, passes)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if changed {
		t.Error("unchanged passes reported a change")
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("pass order = %v, want [first second]", order)
	}
}

func TestRunVerifyAfter(t *testing.T) {
	c := returnGraph(t)
	c.Config.Verify = true

	passes := []Pass{
		{Name: "breaker", Fn: func(c *Context) bool {
			// Leaves a fall-through block at the end of the graph.
			c.Graph.First().Kind = flow.JumpFallthrough
			return true
		}},
	}

	_, err := Run(c, passes)
	if err == nil {
		t.Fatal("Run accepted a broken graph")
	}
	if !strings.Contains(err.Error(), "verify after breaker") {
		t.Errorf("error = %v, want it to name the pass", err)
	}
}

func TestRunDumps(t *testing.T) {
	c := returnGraph(t)
	var buf bytes.Buffer
	c.Config.DumpBefore = "*"
	c.Config.DumpFunc = "TestRunDumps"
	c.Config.DumpWriter = &buf

	noop := func(*Context) bool { return false }
	if _, err := Run(c, []Pass{{Name: "a", Fn: noop}, {Name: "b", Fn: noop}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"--- before a (TestRunDumps) ---", "--- before b (TestRunDumps) ---", "return"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "--- after") {
		t.Errorf("unexpected after dump:\n%s", out)
	}

	buf.Reset()
	c.Config.DumpFunc = "other"
	if _, err := Run(c, []Pass{{Name: "a", Fn: noop}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("dump for filtered graph:\n%s", buf.String())
	}
}
