package passes

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"github.com/nikandfor/errors"
)

// Heuristics are the tunable constants of the layout and duplication passes.
type Heuristics struct {
	// DupCostBase is the statement cost branch straightening may clone.
	DupCostBase int

	// DupCostCrossRegion widens the budget once for each hot/cold
	// mismatch between the branch site, its destination and its next block.
	DupCostCrossRegion int

	// HotColdRatio: with profile data, a block whose weight is below
	// 1/HotColdRatio of a neighbor's counts as cold relative to it.
	HotColdRatio float64

	// TailDupWindow is how many trailing predecessor statements are
	// searched for a favorable store.
	TailDupWindow int

	// LoopWeightScale is the trip count assumed for a loop whose
	// weights were estimated.
	LoopWeightScale float64

	// DominantCasePercent is the share of a switch's profiled executions
	// one arm must take to be tested ahead of the switch.
	DominantCasePercent float64

	// HotJumpRatio: a conditional whose taken edge runs HotJumpRatio
	// times as often as its fall-through gets the target moved next to it.
	HotJumpRatio float64
}

// Config controls the optimizer.
type Config struct {
	TailDuplication   bool // duplicate conditional tails into jumping predecessors
	TailMerge         bool // merge identical trailing statements of a join's predecessors
	Layout            bool // run the profile-guided layout pass
	RootContinuations bool // call-finally continuations are entry blocks

	MaxDeadBlockRounds int
	MaxSimplifyRounds  int
	MaxDriverRounds    int

	Verify     bool   // verify the graph before/after each pass
	DumpBefore string // dump the graph before this pass ("*" for all)
	DumpAfter  string // dump the graph after this pass ("*" for all)
	DumpFunc   string // restrict dumps to this graph name

	// DumpWriter receives dumps; nil means stderr.
	DumpWriter io.Writer `toml:"-"`

	Heuristics Heuristics
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		TailDuplication:    true,
		TailMerge:          true,
		Layout:             true,
		MaxDeadBlockRounds: 10,
		MaxSimplifyRounds:  64,
		MaxDriverRounds:    16,
		Heuristics: Heuristics{
			DupCostBase:        6,
			DupCostCrossRegion: 6,
			HotColdRatio:       100,
			TailDupWindow:      2,
			LoopWeightScale:    8,

			DominantCasePercent: 55,
			HotJumpRatio:        2,
		},
	}
}

func (c *Config) dumpWriter() io.Writer {
	if c.DumpWriter == nil {
		return os.Stderr
	}
	return c.DumpWriter
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// LoadConfig reads a TOML file over DefaultConfig.
func LoadConfig(file string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(file)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()

	if err := DecodeConfig(bufio.NewReader(f), &cfg); err != nil {
		return cfg, errors.Wrap(err, "%s", file)
	}
	return cfg, nil
}

// DecodeConfig decodes TOML from r into cfg, keeping fields r leaves out.
func DecodeConfig(r io.Reader, cfg *Config) error {
	if err := tomlSettings.NewDecoder(r).Decode(cfg); err != nil {
		return err
	}
	return cfg.validate()
}

func (c *Config) validate() error {
	switch {
	case c.MaxDeadBlockRounds <= 0:
		return errors.New("MaxDeadBlockRounds must be positive")
	case c.MaxSimplifyRounds <= 0:
		return errors.New("MaxSimplifyRounds must be positive")
	case c.MaxDriverRounds <= 0:
		return errors.New("MaxDriverRounds must be positive")
	case c.Heuristics.HotColdRatio < 1:
		return errors.New("Heuristics.HotColdRatio must be at least 1")
	case c.Heuristics.TailDupWindow < 1:
		return errors.New("Heuristics.TailDupWindow must be at least 1")
	case c.Heuristics.DominantCasePercent <= 50 || c.Heuristics.DominantCasePercent > 100:
		return errors.New("Heuristics.DominantCasePercent must be in (50, 100]")
	case c.Heuristics.HotJumpRatio <= 1:
		return errors.New("Heuristics.HotJumpRatio must be above 1")
	}
	return nil
}
