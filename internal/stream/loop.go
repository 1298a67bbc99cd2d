package stream

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/shiperr"
	"go.uber.org/zap"
)

// Handler processes lines and periodic commits for a session
type Handler interface {
	Dispatch(s *Session, line []byte) shiperr.Outcome
	Commit(s *Session) error
}

// Loop multiplexes the source data stream, the sink control stream and the
// commit deadline. Everything it dispatches runs to completion in the calling
// goroutine before the next wait.
type Loop struct {
	handler Handler
	sched   *schedule
	log     *zap.Logger
}

// NewLoop creates a loop committing every period after data was seen
func NewLoop(h Handler, clk clock.Clock, period time.Duration, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		handler: h,
		sched:   newSchedule(clk, period),
		log:     log,
	}
}

// Run consumes data until it is closed, then writes a final commit marker.
// A closed control stream ends the run with a remote-closed error after the
// last marker has been flushed.
func (l *Loop) Run(ctx context.Context, s *Session, data <-chan []byte, control <-chan domain.ControlEvent) error {
	for {
		left, armed := l.sched.remaining()
		if armed && left <= 0 {
			// Deadline already passed: only check the sink, then tick.
			if err := l.pollControl(s, control); err != nil {
				return err
			}
			if err := l.tick(s); err != nil {
				return err
			}
			continue
		}

		var timer *clock.Timer
		var timeout <-chan time.Time
		if armed {
			timer = l.sched.clk.Timer(left)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			l.flush(s)
			return ctx.Err()

		case line, ok := <-data:
			stopTimer(timer)
			if !ok {
				return l.handler.Commit(s)
			}
			if err := l.Dispatch(s, line); err != nil {
				return err
			}

		case ev, ok := <-control:
			stopTimer(timer)
			if err := l.onControl(s, ev, ok); err != nil {
				return err
			}

		case <-timeout:
			if err := l.tick(s); err != nil {
				return err
			}
		}
	}
}

// Dispatch handles one data line and arms the commit deadline. Recoverable
// outcomes are logged here; only fatal ones are returned.
func (l *Loop) Dispatch(s *Session, line []byte) error {
	l.sched.arm()
	out := l.handler.Dispatch(s, line)
	s.note(out)

	switch out.Kind {
	case shiperr.KindSkip:
		l.log.Warn("Skipping a log message",
			zap.String("reason", out.Reason),
			zap.String("cursor", out.Cursor),
			zap.String("phase", string(s.Phase)))
	case shiperr.KindWarning:
		l.warn(s, out)
	case shiperr.KindFatal:
		return out.Err
	}
	return nil
}

func (l *Loop) onControl(s *Session, ev domain.ControlEvent, ok bool) error {
	if !ok || ev.EOF {
		l.flush(s)
		return shiperr.RemoteClosed(nil)
	}
	l.warn(s, shiperr.Warning("unexpected data from remote", ev.Data))
	return nil
}

func (l *Loop) pollControl(s *Session, control <-chan domain.ControlEvent) error {
	select {
	case ev, ok := <-control:
		return l.onControl(s, ev, ok)
	default:
		return nil
	}
}

func (l *Loop) tick(s *Session) error {
	l.sched.disarm()
	return l.handler.Commit(s)
}

// flush writes a last marker on the way out; the run is already ending so a
// failure is only logged.
func (l *Loop) flush(s *Session) {
	if err := l.handler.Commit(s); err != nil {
		l.log.Warn("Final commit failed", zap.Error(err), zap.String("cursor", s.LastCursor()))
	}
}

func (l *Loop) warn(s *Session, out shiperr.Outcome) {
	l.log.Warn("Protocol warning",
		zap.String("reason", out.Reason),
		zap.ByteString("payload", out.Payload),
		zap.String("cursor", s.LastCursor()))
}

func stopTimer(t *clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
