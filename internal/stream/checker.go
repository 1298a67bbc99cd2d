package stream

import (
	"fmt"
	"time"

	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/shiperr"
)

// DefaultTolerance bounds how far back in time the first record after a
// resume may lie before the mismatch is treated as corruption.
const DefaultTolerance = time.Hour

// Verdict is the result of a resume check
type Verdict int

const (
	// ResumeExact means the first record is the one we resumed from
	ResumeExact Verdict = iota
	// ResumeLossy means the cursor moved; records in between are lost
	ResumeLossy
)

// Checker validates the first record read after resuming from a cursor
type Checker struct {
	Tolerance time.Duration
}

// Gap describes a resume mismatch that was accepted
type Gap struct {
	Expected domain.Position
	Got      domain.Position
	Delta    time.Duration // expected minus got; positive when the journal went backwards
}

// Check compares the first record after resume with the expected position
func (c *Checker) Check(expected domain.Position, first *domain.Record) (Verdict, Gap, error) {
	got := first.Position()
	if got.Cursor == expected.Cursor {
		return ResumeExact, Gap{}, nil
	}

	tolerance := c.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	gap := Gap{
		Expected: expected,
		Got:      got,
		Delta:    time.Duration(expected.Timestamp-got.Timestamp) * time.Microsecond,
	}
	if gap.Delta > tolerance {
		return ResumeLossy, gap, shiperr.Processing("unexpected cursor after resume",
			fmt.Errorf("expected %s, got %s, %s backwards exceeds %s", expected, got, gap.Delta, tolerance))
	}
	return ResumeLossy, gap, nil
}
