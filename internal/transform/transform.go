// Package transform turns journal records into wire rows.
package transform

import (
	"strconv"

	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/filter"
)

// Func converts a record into a wire row. ts is the record's realtime
// timestamp in milliseconds. A nil row means the record is not shipped.
type Func func(rec *domain.Record, ts int64) []string

// DefaultFields are emitted when no field list is configured
var DefaultFields = []string{"_HOSTNAME", "SYSLOG_IDENTIFIER", "PRIORITY", "MESSAGE"}

// Fields returns a Func emitting the timestamp followed by the listed fields.
// Absent fields become empty columns; a record lacking any of the required
// fields is declined.
func Fields(fields, required []string) Func {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return func(rec *domain.Record, ts int64) []string {
		for _, f := range required {
			if _, ok := rec.Get(f); !ok {
				return nil
			}
		}
		row := make([]string, 0, len(fields)+1)
		row = append(row, strconv.FormatInt(ts, 10))
		for _, f := range fields {
			v, _ := rec.Get(f)
			row = append(row, v)
		}
		return row
	}
}

// Filtered declines records rejected by f before handing the rest to next
func Filtered(f filter.Filter, next Func) Func {
	return func(rec *domain.Record, ts int64) []string {
		if !f.Match(rec) {
			return nil
		}
		return next(rec, ts)
	}
}
