package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zouppen/systemdb/internal/domain"
)

// DefaultField is matched when a pattern names no field
const DefaultField = "MESSAGE"

// FieldPattern is a regex applied to one journal field
type FieldPattern struct {
	Field   string
	Pattern *regexp.Regexp
}

// ParseFieldPattern parses "FIELD=regex". A bare regex applies to MESSAGE.
func ParseFieldPattern(s string) (FieldPattern, error) {
	field, expr := DefaultField, s
	if i := strings.Index(s, "="); i > 0 && isFieldName(s[:i]) {
		field, expr = s[:i], s[i+1:]
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return FieldPattern{}, fmt.Errorf("invalid pattern %q: %w", s, err)
	}
	return FieldPattern{Field: field, Pattern: re}, nil
}

// isFieldName reports whether s looks like a journal field name
func isFieldName(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return s != ""
}

func (p FieldPattern) matches(rec *domain.Record) bool {
	v, ok := rec.Get(p.Field)
	return ok && p.Pattern.MatchString(v)
}

// MatchFilter passes records whose field matches the pattern
type MatchFilter struct {
	pattern FieldPattern
}

// NewMatchFilter creates a match filter
func NewMatchFilter(p FieldPattern) *MatchFilter {
	return &MatchFilter{pattern: p}
}

// Match returns true if the field is present and matches
func (f *MatchFilter) Match(rec *domain.Record) bool {
	return f.pattern.matches(rec)
}

// ExcludeFilter drops records whose field matches the pattern
type ExcludeFilter struct {
	pattern FieldPattern
}

// NewExcludeFilter creates an exclusion filter
func NewExcludeFilter(p FieldPattern) *ExcludeFilter {
	return &ExcludeFilter{pattern: p}
}

// Match returns true if the record does NOT match the exclusion pattern
func (f *ExcludeFilter) Match(rec *domain.Record) bool {
	return !f.pattern.matches(rec)
}
