// Command flowopt runs the flow graph optimizer over the functions of Go
// packages and prints the resulting block layout.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"
	"golang.org/x/tools/go/ssa"
	"gopkg.in/urfave/cli.v1"

	"github.com/you-not-fish/flowopt/internal/flow"
	"github.com/you-not-fish/flowopt/internal/flow/passes"
	"github.com/you-not-fish/flowopt/internal/importer"
)

// Version information
const Version = "0.1.0-dev"

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	funcFlag = cli.StringFlag{
		Name:  "func",
		Usage: "only optimize and dump the named function",
	}
	verifyFlag = cli.BoolFlag{
		Name:  "verify",
		Usage: "verify the graph before and after each pass",
	}
	dumpBeforeFlag = cli.StringFlag{
		Name:  "dump-before",
		Usage: `dump the graph before pass (name or "*")`,
	}
	dumpAfterFlag = cli.StringFlag{
		Name:  "dump-after",
		Usage: `dump the graph after pass (name or "*")`,
	}
	noLayoutFlag = cli.BoolFlag{
		Name:  "no-layout",
		Usage: "skip the layout pass",
	}
	noTailDupFlag = cli.BoolFlag{
		Name:  "no-taildup",
		Usage: "skip conditional tail duplication",
	}
	noTailMergeFlag = cli.BoolFlag{
		Name:  "no-tailmerge",
		Usage: "skip merging common predecessor tails",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "log every rewrite to stderr",
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "flowopt"
	app.Usage = "optimize the flow graphs of Go functions"
	app.ArgsUsage = "<packages>"
	app.Version = Version
	app.ErrWriter = os.Stderr
	app.Flags = []cli.Flag{
		configFlag,
		funcFlag,
		verifyFlag,
		dumpBeforeFlag,
		dumpAfterFlag,
		noLayoutFlag,
		noTailDupFlag,
		noTailMergeFlag,
		verboseFlag,
	}
	app.Action = optimize
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// makeConfig loads the config file, if any, and applies flags over it.
func makeConfig(ctx *cli.Context) (passes.Config, error) {
	cfg := passes.DefaultConfig()
	if file := ctx.String(configFlag.Name); file != "" {
		var err error
		if cfg, err = passes.LoadConfig(file); err != nil {
			return cfg, err
		}
	}

	if ctx.Bool(verifyFlag.Name) {
		cfg.Verify = true
	}
	if ctx.Bool(noLayoutFlag.Name) {
		cfg.Layout = false
	}
	if ctx.Bool(noTailDupFlag.Name) {
		cfg.TailDuplication = false
	}
	if ctx.Bool(noTailMergeFlag.Name) {
		cfg.TailMerge = false
	}
	if ctx.IsSet(dumpBeforeFlag.Name) {
		cfg.DumpBefore = ctx.String(dumpBeforeFlag.Name)
	}
	if ctx.IsSet(dumpAfterFlag.Name) {
		cfg.DumpAfter = ctx.String(dumpAfterFlag.Name)
	}
	if ctx.IsSet(funcFlag.Name) {
		cfg.DumpFunc = ctx.String(funcFlag.Name)
	}
	cfg.DumpWriter = ctx.App.Writer

	return cfg, nil
}

// optimize is the main action.
func optimize(ctx *cli.Context) (err error) {
	if ctx.NArg() == 0 {
		return errors.New("no packages given")
	}

	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}

	c := context.Background()
	if ctx.Bool(verboseFlag.Name) {
		l := tlog.New(tlog.NewConsoleWriter(ctx.App.ErrWriter, tlog.LstdFlags))
		tr := l.Start("flowopt", "packages", []string(ctx.Args()))
		defer tr.Finish("err", &err)

		c = tlog.ContextWithSpan(c, tr)
	}

	fns, err := importer.LoadPackages(ctx.Args()...)
	if err != nil {
		return err
	}

	only := ctx.String(funcFlag.Name)
	var stats summary
	for _, fn := range fns {
		name := importer.Name(fn)
		if only != "" && name != only {
			continue
		}

		g, err := importer.FromSSA(fn)
		if errors.Is(err, importer.ErrNoBody) {
			continue
		}
		if err != nil {
			return err
		}

		stats.funcs++
		if err := optimizeFunc(c, ctx.App.Writer, g, cfg); err != nil {
			if !errors.Is(err, flow.ErrInternal) {
				return errors.Wrap(err, "%s", name)
			}
			fmt.Fprintf(ctx.App.ErrWriter, "%s: not optimized: %v\n", name, err)
			stats.failed++

			// g may be half rewritten; print a fresh import instead.
			if err := printOriginal(ctx.App.Writer, fn); err != nil {
				return err
			}
		}
	}

	if only != "" && stats.funcs == 0 {
		return errors.New("function %s not found", only)
	}

	fmt.Fprintf(ctx.App.Writer, "%d functions, %d not optimized\n", stats.funcs, stats.failed)
	return nil
}

type summary struct {
	funcs  int
	failed int
}

func printOriginal(w io.Writer, fn *ssa.Function) error {
	g, err := importer.FromSSA(fn)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "func %s: not optimized, %d blocks\n", g.Name, g.NumBlocks())
	flow.FprintTable(w, g)
	fmt.Fprintln(w)
	return nil
}

func optimizeFunc(ctx context.Context, w io.Writer, g *flow.Graph, cfg passes.Config) error {
	before := g.NumBlocks()

	res, err := passes.Optimize(ctx, g, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "func %s: %d -> %d blocks, %d rounds\n", g.Name, before, g.NumBlocks(), res.Rounds)
	flow.FprintTable(w, g)
	fmt.Fprintln(w)
	return nil
}
