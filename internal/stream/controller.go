package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/journal"
	"github.com/zouppen/systemdb/internal/shiperr"
	"go.uber.org/zap"
)

// Default commit periods
const (
	DefaultBackfillPeriod = 30 * time.Second
	DefaultFollowPeriod   = 5 * time.Second
)

var errNoResumeData = errors.New("journal ended before the resume cursor")

// LineSource is one running source invocation
type LineSource interface {
	Lines() <-chan []byte
	Close() error
}

// SourceStarter launches the source from resume, in follow mode or not
type SourceStarter func(ctx context.Context, resume domain.Position, follow bool) (LineSource, error)

// JournalStarter adapts journal.StartSource to a SourceStarter
func JournalStarter(opts journal.SourceOptions) SourceStarter {
	return func(ctx context.Context, resume domain.Position, follow bool) (LineSource, error) {
		src, err := journal.StartSource(ctx, opts, resume, follow)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// PhaseConfig describes one pass of the source
type PhaseConfig struct {
	Phase  domain.Phase
	Follow bool
	Period time.Duration
}

// DefaultPhases catches up without following, then follows the live journal
func DefaultPhases(backfill, follow time.Duration) []PhaseConfig {
	if backfill <= 0 {
		backfill = DefaultBackfillPeriod
	}
	if follow <= 0 {
		follow = DefaultFollowPeriod
	}
	return []PhaseConfig{
		{Phase: domain.PhaseBackfill, Follow: false, Period: backfill},
		{Phase: domain.PhaseFollow, Follow: true, Period: follow},
	}
}

// Controller runs the source phases in order, chaining the cursor from one
// phase into the next. Following a months-old cursor directly is unreliable
// in journalctl, so the backlog is read first without -f.
type Controller struct {
	Start    SourceStarter
	Pipeline *Pipeline
	Checker  *Checker
	Clock    clock.Clock
	Log      *zap.Logger
	Phases   []PhaseConfig
}

// Run executes every phase starting at resume and returns the last position
func (c *Controller) Run(ctx context.Context, resume domain.Position, control <-chan domain.ControlEvent) (domain.Position, error) {
	phases := c.Phases
	if len(phases) == 0 {
		phases = DefaultPhases(0, 0)
	}

	pos := resume
	for _, ph := range phases {
		next, err := c.RunPhase(ctx, ph, pos, control)
		if err != nil {
			return next, fmt.Errorf("%s phase: %w", ph.Phase, err)
		}
		if err := ctx.Err(); err != nil {
			return next, err
		}
		pos = next
	}
	return pos, nil
}

// RunPhase runs one source invocation. It returns the position of the last
// record seen, or resume when the invocation produced no records.
func (c *Controller) RunPhase(ctx context.Context, ph PhaseConfig, resume domain.Position, control <-chan domain.ControlEvent) (domain.Position, error) {
	log := c.logger().With(zap.String("phase", string(ph.Phase)))
	log.Info("Starting journal reader",
		zap.String("resume", resume.Cursor),
		zap.Bool("follow", ph.Follow),
		zap.Duration("period", ph.Period))

	src, err := c.Start(ctx, resume, ph.Follow)
	if err != nil {
		return resume, err
	}

	sess := NewSession(ph.Phase)
	loop := NewLoop(c.Pipeline, c.Clock, ph.Period, log)

	runErr := c.run(ctx, loop, sess, src, resume, control, log)
	closeErr := src.Close()

	pos := resume
	if p, ok := sess.Position(); ok {
		pos = p
	}

	st := sess.Stats()
	log.Info("Journal reader finished",
		zap.String("cursor", pos.Cursor),
		zap.Int("rows", st.Rows),
		zap.Int("skipped", st.Skips),
		zap.Int("commits", st.Markers),
		zap.Any("recent_skips", st.Recent))

	switch {
	case runErr == nil:
		return pos, closeErr
	case errors.Is(runErr, errNoResumeData) && closeErr != nil:
		return pos, closeErr
	default:
		return pos, runErr
	}
}

func (c *Controller) run(ctx context.Context, loop *Loop, sess *Session, src LineSource, resume domain.Position, control <-chan domain.ControlEvent, log *zap.Logger) error {
	if !resume.IsZero() {
		line, err := c.firstLine(ctx, src)
		if err != nil {
			return err
		}
		rec, err := c.Pipeline.Parser.Parse(line)
		if err != nil {
			return shiperr.Processing("undecodable first record after resume", err)
		}
		verdict, gap, err := c.checker().Check(resume, rec)
		if err != nil {
			return err
		}
		if verdict == ResumeLossy {
			log.Warn("Resumed at a different cursor, records in between are lost",
				zap.String("expected", gap.Expected.Cursor),
				zap.String("got", gap.Got.Cursor),
				zap.Duration("delta", gap.Delta))
		}
		if err := loop.Dispatch(sess, line); err != nil {
			return err
		}
	}
	return loop.Run(ctx, sess, src.Lines(), control)
}

func (c *Controller) firstLine(ctx context.Context, src LineSource) ([]byte, error) {
	select {
	case line, ok := <-src.Lines():
		if !ok {
			return nil, shiperr.Processing("no record after resume", errNoResumeData)
		}
		return line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) checker() *Checker {
	if c.Checker == nil {
		return &Checker{}
	}
	return c.Checker
}

func (c *Controller) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}
