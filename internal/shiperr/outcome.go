package shiperr

// Kind tags the result of dispatching one line
type Kind int

const (
	KindRow Kind = iota
	KindSkip
	KindWarning
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindRow:
		return "row"
	case KindSkip:
		return "skip"
	case KindWarning:
		return "warning"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a dispatch step. Only KindFatal escapes
// the loop; every other kind is logged and the loop continues.
type Outcome struct {
	Kind    Kind
	Row     []string
	Reason  string
	Cursor  string
	Payload []byte
	Err     error
}

// Row is a record that was transformed and written
func Row(row []string) Outcome {
	return Outcome{Kind: KindRow, Row: row}
}

// Skip drops one record. cursor is the best known position for context.
func Skip(reason, cursor string) Outcome {
	return Outcome{Kind: KindSkip, Reason: reason, Cursor: cursor}
}

// Warning reports unexpected data that does not stop the session
func Warning(reason string, payload []byte) Outcome {
	return Outcome{Kind: KindWarning, Reason: reason, Payload: payload}
}

// Fail wraps a session-fatal error
func Fail(err error) Outcome {
	return Outcome{Kind: KindFatal, Err: err}
}
