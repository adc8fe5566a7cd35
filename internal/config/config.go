// Package config parses the CLI surface (spec §6.2) and, if requested, an
// optional JSON file that can override the numeric pagination/mark/queue
// defaults otherwise set by flags (spec §4.10 ADD).
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/titglob/rtsv/internal/msc"
	"github.com/titglob/rtsv/internal/rtsvlog"
)

// Config is the fully-resolved set of options the driver runs with.
type Config struct {
	VCDPath string
	MSCPath string
	SDLPath string
	Title   string

	LogLevel rtsvlog.Level
	LogDate  bool

	VCDFifo    bool
	MSCUntimed bool
	VCDUntimed bool
	Freq       int64
	Queue      uint32

	MSCOut bool
	VCDOut bool

	MSCPageMaxLevels int64
	MSCLevelHeightMM int
	MSCBoxHeightMM   int
	MSCInstDistMM    int
	MSCMarkGrain     int
	MSCMarkDisp      int

	ConfigFile     string
	ReportInterval time.Duration
	Gops           bool

	Inputs []string // file arguments after "--"; empty means read stdin
}

// fileOverrides is the shape of an optional -config JSON file (spec §4.10);
// every field is a pointer so "absent" is distinguishable from "zero".
type fileOverrides struct {
	Queue            *uint32 `json:"queue"`
	Freq             *int64  `json:"freq"`
	VCDFifo          *bool   `json:"vcd_fifo"`
	MSCUntimed       *bool   `json:"msc_untimed"`
	VCDUntimed       *bool   `json:"vcd_untimed"`
	MSCPageMaxLevels *int64  `json:"msc_page_max_levels"`
	MSCLevelHeightMM *int    `json:"msc_level_height"`
	MSCBoxHeightMM   *int    `json:"msc_box_height"`
	MSCInstDistMM    *int    `json:"msc_inst_dist"`
	MSCMarkGrain     *int    `json:"msc_mark_grain"`
	MSCMarkDisp      *int    `json:"msc_mark_disp"`
}

// ErrHelp is returned by Parse when -h/--help was requested; the caller
// should print usage (already written to stderr by the flag package) and
// exit 0 (spec §6.2).
var ErrHelp = flag.ErrHelp

// Parse parses args (excluding the program name) into a Config. Flags
// explicitly set by the caller always win over anything later loaded from
// -config (spec §4.10).
func Parse(args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet("rtsv", flag.ContinueOnError)

	def := msc.DefaultOptions()
	cfg := &Config{}

	fs.StringVar(&cfg.VCDPath, "vcd", "", "enable VCD output to `path`")
	fs.StringVar(&cfg.MSCPath, "msc", "", "enable MSC (LaTeX) output to `path`")
	fs.StringVar(&cfg.SDLPath, "sdl", "", "enable SDL output (skeleton) to `path`")
	fs.StringVar(&cfg.Title, "title", "", "embedded title string")
	logLevel := fs.Int("log", int(rtsvlog.LevelWarn), "log verbosity 0..4 (none,error,warn,info,debug)")
	fs.BoolVar(&cfg.LogDate, "logdate", false, "prefix log lines with date and time")
	fs.BoolVar(&cfg.VCDFifo, "vcd_fifo", false, "single-file VCD (streaming mode)")
	fs.BoolVar(&cfg.MSCUntimed, "msc_untimed", false, "collapse MSC time to unit levels")
	fs.BoolVar(&cfg.VCDUntimed, "vcd_untimed", false, "collapse VCD time to unit levels")
	fs.Int64Var(&cfg.Freq, "freq", 100000, "VCD timescale basis in `hz`")
	queue := fs.Uint("queue", 1000, "flush horizon in ticks")
	mscOut := fs.Int("msc_out", 0, "auto-start MSC dumping at run start (0|1)")
	vcdOut := fs.Int("vcd_out", 0, "auto-start VCD dumping at run start (0|1)")
	fs.Int64Var(&cfg.MSCPageMaxLevels, "msc_page_max_levels", def.PageMaxLevels, "levels per LaTeX page")
	fs.IntVar(&cfg.MSCLevelHeightMM, "msc_level_height", def.LevelHeightMM, "level height in mm")
	fs.IntVar(&cfg.MSCBoxHeightMM, "msc_box_height", def.BoxHeightMM, "box height in mm")
	fs.IntVar(&cfg.MSCInstDistMM, "msc_inst_dist", def.InstDistMM, "instance distance in mm")
	fs.IntVar(&cfg.MSCMarkGrain, "msc_mark_grain", int(def.MarkGrain), "mark grain 0|1|2 (none|page|level)")
	fs.IntVar(&cfg.MSCMarkDisp, "msc_mark_disp", int(def.MarkDisplay), "mark display 0|1|2|3 (none|real|level|both)")
	fs.StringVar(&cfg.ConfigFile, "config", "", "optional JSON file overriding numeric defaults")
	report := fs.String("report", "10s", "periodic reporter interval (Go duration, 0 disables)")
	fs.BoolVar(&cfg.Gops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg.LogLevel = rtsvlog.Level(*logLevel)
	cfg.Queue = uint32(*queue)
	cfg.MSCOut = *mscOut != 0
	cfg.VCDOut = *vcdOut != 0

	interval, err := time.ParseDuration(*report)
	if err != nil {
		return nil, nil, fmt.Errorf("config: bad -report duration %q: %w", *report, err)
	}
	cfg.ReportInterval = interval

	visited := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { visited[f.Name] = true })

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile, visited); err != nil {
			return nil, nil, err
		}
	}

	cfg.Inputs = fs.Args()
	return cfg, fs.Args(), nil
}

// applyFile loads and schema-validates the -config file and merges in any
// field the user did not explicitly set on the command line (spec §4.10).
func (c *Config) applyFile(path string, visited map[string]bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := Validate(fileSchema, raw); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	var ov fileOverrides
	if err := json.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}

	apply := func(name string, set func()) {
		if !visited[name] {
			set()
		}
	}
	if ov.Queue != nil {
		apply("queue", func() { c.Queue = *ov.Queue })
	}
	if ov.Freq != nil {
		apply("freq", func() { c.Freq = *ov.Freq })
	}
	if ov.VCDFifo != nil {
		apply("vcd_fifo", func() { c.VCDFifo = *ov.VCDFifo })
	}
	if ov.MSCUntimed != nil {
		apply("msc_untimed", func() { c.MSCUntimed = *ov.MSCUntimed })
	}
	if ov.VCDUntimed != nil {
		apply("vcd_untimed", func() { c.VCDUntimed = *ov.VCDUntimed })
	}
	if ov.MSCPageMaxLevels != nil {
		apply("msc_page_max_levels", func() { c.MSCPageMaxLevels = *ov.MSCPageMaxLevels })
	}
	if ov.MSCLevelHeightMM != nil {
		apply("msc_level_height", func() { c.MSCLevelHeightMM = *ov.MSCLevelHeightMM })
	}
	if ov.MSCBoxHeightMM != nil {
		apply("msc_box_height", func() { c.MSCBoxHeightMM = *ov.MSCBoxHeightMM })
	}
	if ov.MSCInstDistMM != nil {
		apply("msc_inst_dist", func() { c.MSCInstDistMM = *ov.MSCInstDistMM })
	}
	if ov.MSCMarkGrain != nil {
		apply("msc_mark_grain", func() { c.MSCMarkGrain = *ov.MSCMarkGrain })
	}
	if ov.MSCMarkDisp != nil {
		apply("msc_mark_disp", func() { c.MSCMarkDisp = *ov.MSCMarkDisp })
	}

	return nil
}

// MSCOptions builds the msc.Options this Config resolves to.
func (c *Config) MSCOptions() msc.Options {
	return msc.Options{
		PageMaxLevels: c.MSCPageMaxLevels,
		LevelHeightMM: c.MSCLevelHeightMM,
		BoxHeightMM:   c.MSCBoxHeightMM,
		InstDistMM:    c.MSCInstDistMM,
		MarkGrain:     msc.MarkGrain(c.MSCMarkGrain),
		MarkDisplay:   msc.MarkDisplay(c.MSCMarkDisp),
	}
}

// Validate compiles schema and validates instance against it, mirroring
// the teacher's internal/config.Validate (spec §4.10).
func Validate(schema string, instance []byte) error {
	sch, err := jsonschema.CompileString("rtsv-config.json", schema)
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: decoding instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: validation: %w", err)
	}
	return nil
}
