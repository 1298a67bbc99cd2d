package stream

import (
	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/journal"
	"github.com/zouppen/systemdb/internal/shiperr"
	"github.com/zouppen/systemdb/internal/transform"
)

const recentSkips = 8

// RowWriter is the wire side of the pipeline
type RowWriter interface {
	WriteRow(fields []string) error
	WriteMarker(pos domain.Position) error
}

// SkipEvent is one dropped line kept for the phase summary
type SkipEvent struct {
	Reason string
	Cursor string
}

// Session is the state of one source invocation: the tracked cursor and the
// counters reported when the phase ends. It belongs to the loop driving that
// invocation; only its final position is handed on.
type Session struct {
	Phase domain.Phase

	pos   domain.Position
	seen  bool
	dirty bool

	rows    int
	skips   int
	markers int
	recent  *ring[SkipEvent]
}

// NewSession starts an empty session
func NewSession(phase domain.Phase) *Session {
	return &Session{
		Phase:  phase,
		recent: newRing[SkipEvent](recentSkips),
	}
}

// Record moves the tracked cursor. It is called for every decoded record,
// including ones the transform later declines.
func (s *Session) Record(pos domain.Position) {
	s.pos = pos
	s.seen = true
	s.dirty = true
}

// Position returns the tracked position and whether any record was seen
func (s *Session) Position() (domain.Position, bool) {
	return s.pos, s.seen
}

// LastCursor is the best known cursor for diagnostics, empty before the first record
func (s *Session) LastCursor() string {
	return s.pos.Cursor
}

func (s *Session) note(out shiperr.Outcome) {
	switch out.Kind {
	case shiperr.KindRow:
		s.rows++
	case shiperr.KindSkip:
		s.skips++
		s.recent.push(SkipEvent{Reason: out.Reason, Cursor: out.Cursor})
	}
}

// Stats summarises a session
type Stats struct {
	Rows    int
	Skips   int
	Markers int
	Recent  []SkipEvent
}

// Stats returns the session counters
func (s *Session) Stats() Stats {
	return Stats{
		Rows:    s.rows,
		Skips:   s.skips,
		Markers: s.markers,
		Recent:  s.recent.snapshot(),
	}
}

// Pipeline turns source lines into wire rows and commit markers
type Pipeline struct {
	Parser    *journal.Parser
	Transform transform.Func
	Writer    RowWriter
}

// Dispatch handles one source line for session s
func (p *Pipeline) Dispatch(s *Session, line []byte) shiperr.Outcome {
	rec, err := p.Parser.Parse(line)
	if err != nil {
		return shiperr.Skip(shiperr.ReasonGarbage, s.LastCursor())
	}
	s.Record(rec.Position())

	row := p.Transform(rec, rec.Millis)
	if row == nil {
		return shiperr.Skip(shiperr.ReasonDeclined, rec.Cursor)
	}
	if err := p.Writer.WriteRow(row); err != nil {
		return shiperr.Fail(shiperr.RemoteClosed(err))
	}
	return shiperr.Row(row)
}

// Commit writes a commit marker when the tracked cursor moved since the last
// one. Before the first record it writes nothing.
func (p *Pipeline) Commit(s *Session) error {
	if !s.seen || !s.dirty {
		return nil
	}
	if err := p.Writer.WriteMarker(s.pos); err != nil {
		return shiperr.RemoteClosed(err)
	}
	s.dirty = false
	s.markers++
	return nil
}
