package logquery

import "strings"

// Severity is the ordered log-level scale used by level and level-range
// filters, from least to most severe.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

// severityNames maps ordinals to canonical lowercase names. The slice order
// is the range-comparison order; never reorder it.
var severityNames = [...]string{"trace", "debug", "info", "warn", "error", "fatal"}

func (s Severity) String() string {
	if s < SeverityTrace || s > SeverityFatal {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity resolves a severity name case-insensitively.
// Returns false for anything outside the fixed scale.
func ParseSeverity(name string) (Severity, bool) {
	folded := strings.ToLower(name)
	for i, n := range severityNames {
		if n == folded {
			return Severity(i), true
		}
	}
	return 0, false
}

// severityRange returns every severity between lo and hi inclusive.
// A reversed range (lo > hi) yields an empty set, not an error; a level
// filter over an empty set simply never matches.
func severityRange(lo, hi Severity) []Severity {
	if lo > hi {
		return nil
	}
	levels := make([]Severity, 0, hi-lo+1)
	for s := lo; s <= hi; s++ {
		levels = append(levels, s)
	}
	return levels
}
