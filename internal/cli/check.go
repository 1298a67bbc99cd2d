package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/journal"
	"github.com/zouppen/systemdb/internal/shiperr"
)

// CheckCmd prints the effective setup without starting anything
type CheckCmd struct {
	Sink []string `arg:"" optional:"" passthrough:"" help:"Sink command to check (overrides sink.command)"`
}

// Run executes the check command
func (c *CheckCmd) Run(globals *Globals) error {
	ship := &ShipCmd{Sink: c.Sink}
	cfg := ship.effective(globals.Config)

	src := journal.SourceOptions{
		Command:    cfg.Source.Command,
		CursorFlag: cfg.Source.CursorFlag,
		FollowFlag: cfg.Source.FollowFlag,
		Args:       cfg.Source.Args,
	}
	sample := domain.Position{Cursor: "<cursor>"}

	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Check", "Value", "Status")

	var problems []string
	add := func(name, value, status string) error {
		return table.Append([]string{name, value, status})
	}

	coldArgv := src.Argv(domain.Position{}, false)
	rows := [][3]string{
		{"backfill (cold)", strings.Join(coldArgv, " "), lookStatus(coldArgv, &problems)},
		{"backfill (resume)", strings.Join(src.Argv(sample, false), " "), ""},
		{"follow (resume)", strings.Join(src.Argv(sample, true), " "), ""},
		{"sink", strings.Join(cfg.Sink.Command, " "), lookStatus(cfg.Sink.Command, &problems)},
		{"greeting", cfg.Sink.Greeting, ""},
		{"commit periods", fmt.Sprintf("%s / %s", cfg.Stream.BackfillPeriod, cfg.Stream.FollowPeriod), ""},
		{"resume tolerance", cfg.Stream.ResumeTolerance.String(), ""},
		{"columns", "ts," + strings.Join(cfg.Transform.Fields, ","), ""},
	}
	if cfg.Transform.MaxPriority != "" {
		rows = append(rows, [3]string{"max priority", cfg.Transform.MaxPriority, ""})
	}
	for _, m := range cfg.Transform.Match {
		rows = append(rows, [3]string{"match", m, ""})
	}
	for _, e := range cfg.Transform.Exclude {
		rows = append(rows, [3]string{"exclude", e, ""})
	}
	for _, r := range rows {
		if err := add(r[0], r[1], r[2]); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			problems = append(problems, line)
			if err := add("config", line, "invalid"); err != nil {
				return err
			}
		}
	}

	if err := table.Render(); err != nil {
		return err
	}
	if len(problems) > 0 {
		return shiperr.Processing(fmt.Sprintf("%d problem(s) found", len(problems)), nil)
	}
	return nil
}

// lookStatus resolves argv[0] on PATH
func lookStatus(argv []string, problems *[]string) string {
	if len(argv) == 0 {
		*problems = append(*problems, "empty command")
		return "missing"
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		*problems = append(*problems, argv[0]+" not found")
		return "not found"
	}
	return "ok (" + path + ")"
}
