// Package shiperr classifies shipper failures. Recoverable conditions are
// values (Outcome) handled where they occur; session-fatal conditions are
// *Fatal errors carrying the process exit status.
package shiperr

import (
	"errors"
)

// Process exit statuses
const (
	ExitOK           = 0
	ExitProcessing   = 1
	ExitRemoteClosed = 2
	ExitSourceFailed = 3
)

// Skip reasons
const (
	ReasonGarbage  = "garbage line"
	ReasonDeclined = "transform declined"
)

// Fatal ends the whole run with Code as exit status.
type Fatal struct {
	Code    int
	Message string
	Err     error
}

func (e *Fatal) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Fatal) Unwrap() error {
	return e.Err
}

// Processing is a generic session-fatal failure (exit 1)
func Processing(message string, err error) *Fatal {
	return &Fatal{Code: ExitProcessing, Message: message, Err: err}
}

// RemoteClosed reports that the sink went away (exit 2)
func RemoteClosed(err error) *Fatal {
	return &Fatal{Code: ExitRemoteClosed, Message: "remote stream closed", Err: err}
}

// SourceFailed reports a non-zero exit of the source subprocess (exit 3)
func SourceFailed(err error) *Fatal {
	return &Fatal{Code: ExitSourceFailed, Message: "journal reader failed", Err: err}
}

// ExitCode maps an error returned by a run to the process exit status.
// Unclassified errors exit with ExitProcessing.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var f *Fatal
	if errors.As(err, &f) {
		return f.Code
	}
	return ExitProcessing
}

// IsFatal reports whether err carries a Fatal classification
func IsFatal(err error) bool {
	var f *Fatal
	return errors.As(err, &f)
}
