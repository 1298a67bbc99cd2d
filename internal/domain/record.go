package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Journal export fields the shipper depends on.
const (
	FieldCursor   = "__CURSOR"
	FieldRealtime = "__REALTIME_TIMESTAMP"
)

// DefaultMarker is the leading value of a commit marker row.
const DefaultMarker = "__CURSOR"

// Phase identifies which pass of the source is running
type Phase string

const (
	PhaseBackfill Phase = "backfill"
	PhaseFollow   Phase = "follow"
)

// Position is an exact point in the journal: the opaque cursor plus the
// realtime timestamp (microseconds since epoch) of the record it belongs to.
// The zero value means "no cursor", i.e. a cold start.
type Position struct {
	Cursor    string `json:"cursor"`
	Timestamp int64  `json:"timestamp"`
}

// IsZero reports whether the position carries no cursor
func (p Position) IsZero() bool {
	return p.Cursor == ""
}

// TimestampString renders the timestamp the way it travels on the wire
func (p Position) TimestampString() string {
	return strconv.FormatInt(p.Timestamp, 10)
}

func (p Position) String() string {
	if p.IsZero() {
		return "<none>"
	}
	return p.Cursor + "@" + p.TimestampString()
}

// ParsePosition builds a Position from the cursor/timestamp text pair the
// sink reports during the handshake. An empty cursor is a cold start and the
// timestamp is ignored; a cursor without a timestamp is an error.
func ParsePosition(cursor, timestamp string) (Position, error) {
	cursor = strings.TrimSpace(cursor)
	timestamp = strings.TrimSpace(timestamp)
	if cursor == "" {
		return Position{}, nil
	}
	if timestamp == "" {
		return Position{}, fmt.Errorf("cursor %q has no timestamp", cursor)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
	}
	return Position{Cursor: cursor, Timestamp: ts}, nil
}

// Record is one decoded journal entry
type Record struct {
	Fields   map[string]string
	Cursor   string
	Realtime int64 // microseconds, as exported by the journal
	Millis   int64 // Realtime truncated to milliseconds
}

// Position returns the record's stream position
func (r *Record) Position() Position {
	return Position{Cursor: r.Cursor, Timestamp: r.Realtime}
}

// Get returns a field value and whether the field was present
func (r *Record) Get(field string) (string, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// CommitMarker reports the latest confirmed position to the sink
type CommitMarker struct {
	Discriminator string
	Position      Position
}

// Row renders the marker as a wire row
func (m CommitMarker) Row() []string {
	d := m.Discriminator
	if d == "" {
		d = DefaultMarker
	}
	return []string{d, m.Position.Cursor, m.Position.TimestampString()}
}

// ControlEvent is one read from the sink's control stream. EOF is set when
// the stream has closed; Data is empty in that case.
type ControlEvent struct {
	Data []byte
	EOF  bool
}
