package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zouppen/systemdb/internal/domain"
)

// FieldPriority is the journal field holding the syslog priority
const FieldPriority = "PRIORITY"

var priorityNames = map[string]int{
	"emerg":   0,
	"alert":   1,
	"crit":    2,
	"err":     3,
	"error":   3,
	"warning": 4,
	"warn":    4,
	"notice":  5,
	"info":    6,
	"debug":   7,
}

// ParsePriority accepts a syslog priority name or a number 0-7
func ParsePriority(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if p, ok := priorityNames[s]; ok {
		return p, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 7 {
		return 0, fmt.Errorf("invalid priority %q (want 0-7 or emerg..debug)", s)
	}
	return p, nil
}

// PriorityFilter passes records at least as severe as max. Lower numbers are
// more severe. Records without a priority pass.
type PriorityFilter struct {
	max int
}

// NewPriorityFilter creates a priority filter
func NewPriorityFilter(max int) *PriorityFilter {
	return &PriorityFilter{max: max}
}

// Match returns true if the record priority is <= max
func (f *PriorityFilter) Match(rec *domain.Record) bool {
	v, ok := rec.Get(FieldPriority)
	if !ok {
		return true
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return true
	}
	return p <= f.max
}
