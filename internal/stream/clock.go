package stream

import (
	"time"

	"github.com/benbjohnson/clock"
)

// schedule tracks the next periodic-commit deadline. It is armed lazily by
// incoming lines and disarmed each time it fires, so a tick never fires
// without data having been seen since the previous one.
type schedule struct {
	clk      clock.Clock
	period   time.Duration
	deadline time.Time
	armed    bool
}

func newSchedule(clk clock.Clock, period time.Duration) *schedule {
	if clk == nil {
		clk = clock.New()
	}
	return &schedule{clk: clk, period: period}
}

// arm sets the deadline one period from now unless already armed
func (s *schedule) arm() {
	if s.armed {
		return
	}
	s.deadline = s.clk.Now().Add(s.period)
	s.armed = true
}

func (s *schedule) disarm() {
	s.armed = false
}

// remaining returns the time left until the deadline, clamped at zero, and
// whether a deadline is armed at all.
func (s *schedule) remaining() (time.Duration, bool) {
	if !s.armed {
		return 0, false
	}
	left := s.deadline.Sub(s.clk.Now())
	if left < 0 {
		left = 0
	}
	return left, true
}
