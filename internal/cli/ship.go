package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zouppen/systemdb/internal/config"
	"github.com/zouppen/systemdb/internal/filter"
	"github.com/zouppen/systemdb/internal/journal"
	"github.com/zouppen/systemdb/internal/shiperr"
	"github.com/zouppen/systemdb/internal/sink"
	"github.com/zouppen/systemdb/internal/stream"
	"github.com/zouppen/systemdb/internal/transform"
	"go.uber.org/zap"
)

// ShipCmd streams the journal into a sink process until the journal reader
// stops, the sink goes away or the process is interrupted
type ShipCmd struct {
	Sink []string `arg:"" optional:"" passthrough:"" help:"Sink command and arguments (overrides sink.command)"`

	BackfillPeriod  time.Duration `name:"backfill-period" help:"Commit interval while reading the backlog"`
	FollowPeriod    time.Duration `name:"follow-period" help:"Commit interval while following new records"`
	ResumeTolerance time.Duration `name:"resume-tolerance" help:"How far back the first record after resume may be before giving up"`
	Field           []string      `short:"F" name:"field" sep:"none" help:"Journal field to ship as a column (repeatable, replaces transform.fields)"`
	Require         []string      `name:"require" sep:"none" help:"Skip records missing this field (repeatable, replaces transform.required)"`
	Priority        string        `short:"p" help:"Ship only records at least this severe (0-7 or emerg..debug)"`
	Match           []string      `sep:"none" help:"Ship only records matching FIELD=regex (repeatable, a bare regex matches MESSAGE)"`
	Exclude         []string      `sep:"none" help:"Drop records matching FIELD=regex (repeatable)"`
	SourceArg       []string      `name:"source-arg" sep:"none" help:"Extra journalctl argument, e.g. --unit=nginx.service (repeatable)"`
	Greeting        string        `help:"Handshake line sent to the sink"`
	NoBackfill      bool          `name:"no-backfill" help:"Follow right away without reading the backlog first"`
	Once            bool          `help:"Read the backlog and exit without following"`
}

// Run executes the ship command
func (c *ShipCmd) Run(globals *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := c.run(ctx, globals)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *ShipCmd) run(ctx context.Context, globals *Globals) error {
	if c.NoBackfill && c.Once {
		return shiperr.Processing("--no-backfill and --once leave nothing to run", nil)
	}
	cfg := c.effective(globals.Config)
	if err := cfg.Validate(); err != nil {
		return shiperr.Processing("invalid configuration", err)
	}
	log := globals.logger()

	rowFunc := transform.Fields(cfg.Transform.Fields, cfg.Transform.Required)
	chain, err := filter.Build(cfg.Transform.FilterOptions())
	if err != nil {
		return shiperr.Processing("invalid filter", err)
	}
	if chain != nil {
		rowFunc = transform.Filtered(chain, rowFunc)
	}

	snk, err := sink.Start(sink.Options{
		Command:      cfg.Sink.Command,
		Greeting:     cfg.Sink.Greeting,
		Marker:       cfg.Sink.Marker,
		ControlChunk: cfg.Sink.ControlChunk,
		Stderr:       globals.Stderr,
	})
	if err != nil {
		return err
	}

	resume, err := snk.Handshake(ctx)
	if err != nil {
		if cerr := snk.Close(); cerr != nil {
			log.Debug("Sink close after failed handshake", zap.Error(cerr))
		}
		return err
	}
	log.Info("Remote position received", zap.Stringer("resume", resume))

	ctrl := &stream.Controller{
		Start: stream.JournalStarter(journal.SourceOptions{
			Command:    cfg.Source.Command,
			CursorFlag: cfg.Source.CursorFlag,
			FollowFlag: cfg.Source.FollowFlag,
			Args:       cfg.Source.Args,
			Stderr:     globals.Stderr,
		}),
		Pipeline: &stream.Pipeline{
			Parser:    journal.NewParser(),
			Transform: rowFunc,
			Writer:    snk.Writer(),
		},
		Checker: &stream.Checker{Tolerance: cfg.Stream.ResumeTolerance},
		Clock:   clock.New(),
		Log:     log,
		Phases:  c.phases(cfg),
	}

	pos, runErr := ctrl.Run(ctx, resume, snk.Control())
	closeErr := snk.Close()

	rows, markers := snk.Writer().Stats()
	log.Info("Shipping stopped",
		zap.Stringer("position", pos),
		zap.Int("rows", rows),
		zap.Int("markers", markers))

	if runErr != nil {
		if closeErr != nil {
			log.Debug("Sink close after failure", zap.Error(closeErr))
		}
		return runErr
	}
	if closeErr != nil {
		return shiperr.Processing("sink failed", closeErr)
	}
	return nil
}

// effective returns a copy of cfg with command-line overrides applied
func (c *ShipCmd) effective(base *config.Config) *config.Config {
	cfg := config.Default()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	if len(c.Sink) > 0 {
		cfg.Sink.Command = c.Sink
	}
	if c.BackfillPeriod > 0 {
		cfg.Stream.BackfillPeriod = c.BackfillPeriod
	}
	if c.FollowPeriod > 0 {
		cfg.Stream.FollowPeriod = c.FollowPeriod
	}
	if c.ResumeTolerance > 0 {
		cfg.Stream.ResumeTolerance = c.ResumeTolerance
	}
	if len(c.Field) > 0 {
		cfg.Transform.Fields = c.Field
	}
	if len(c.Require) > 0 {
		cfg.Transform.Required = c.Require
	}
	if c.Priority != "" {
		cfg.Transform.MaxPriority = c.Priority
	}
	if len(c.Match) > 0 {
		cfg.Transform.Match = append(append([]string{}, cfg.Transform.Match...), c.Match...)
	}
	if len(c.Exclude) > 0 {
		cfg.Transform.Exclude = append(append([]string{}, cfg.Transform.Exclude...), c.Exclude...)
	}
	if len(c.SourceArg) > 0 {
		cfg.Source.Args = append(append([]string{}, cfg.Source.Args...), c.SourceArg...)
	}
	if c.Greeting != "" {
		cfg.Sink.Greeting = c.Greeting
	}
	return cfg
}

func (c *ShipCmd) phases(cfg *config.Config) []stream.PhaseConfig {
	phases := stream.DefaultPhases(cfg.Stream.BackfillPeriod, cfg.Stream.FollowPeriod)
	switch {
	case c.NoBackfill:
		return phases[1:]
	case c.Once:
		return phases[:1]
	}
	return phases
}
