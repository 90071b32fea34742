package logquery

import (
	"regexp"
	"strconv"
	"strings"
)

// Record is the read-only view of one log line that the matcher evaluates.
// Level is the empty string when the record has no severity. The matcher
// never mutates Fields.
type Record struct {
	Raw    string
	Level  string
	Fields map[string]string
}

// Matches reports whether the record satisfies every token of the query.
// An empty query matches everything. The method is a pure function and is
// safe to call concurrently from any number of goroutines.
func (q *Query) Matches(rec Record) bool {
	for _, tok := range q.Tokens {
		if !matchToken(tok, rec) {
			return false
		}
	}
	return true
}

// matchToken evaluates a single token, applying negation last.
func matchToken(tok Token, rec Record) bool {
	var ok bool
	switch t := tok.(type) {
	case LevelToken:
		ok = matchLevel(t, rec)
	case FieldToken:
		ok = matchField(t, rec)
	case RangeToken:
		ok = matchRange(t, rec)
	case RegexToken:
		ok = matchRegex(t, rec)
	case TextToken:
		ok = containsFold(rec.Raw, t.Value)
	}
	return ok != tok.IsNegated()
}

func matchLevel(t LevelToken, rec Record) bool {
	if rec.Level == "" {
		return false
	}
	s, known := ParseSeverity(rec.Level)
	return known && t.contains(s)
}

func matchField(t FieldToken, rec Record) bool {
	v, ok := rec.Fields[t.Key]
	return ok && containsFold(v, t.Value)
}

// matchRange compares the field value numerically when the value and both
// bounds all parse as numbers, and falls back to plain string ordering on
// the unparsed value otherwise. A missing field never matches.
func matchRange(t RangeToken, rec Record) bool {
	v, ok := rec.Fields[t.Key]
	if !ok {
		return false
	}

	num, errV := strconv.ParseFloat(v, 64)
	lo, errLo := strconv.ParseFloat(t.Start, 64)
	hi, errHi := strconv.ParseFloat(t.End, 64)
	if errV == nil && errLo == nil && errHi == nil {
		return lo <= num && num <= hi
	}
	return t.Start <= v && v <= t.End
}

// matchRegex tests the pattern against the raw text. Matching is
// case-insensitive unless flags say otherwise. A pattern that fails to
// compile degrades to a case-insensitive substring test of its literal text;
// compile errors never surface to the caller.
func matchRegex(t RegexToken, rec Record) bool {
	re, err := compilePattern(t.Pattern, t.Flags)
	if err != nil {
		return containsFold(rec.Raw, t.Pattern)
	}
	return re.MatchString(rec.Raw)
}

// compilePattern translates the single-letter flag convention onto Go's
// inline flag groups. The g, u and y flags describe iteration behavior that
// has no equivalent here and are ignored.
func compilePattern(pattern, flags string) (*regexp.Regexp, error) {
	if flags == "" {
		flags = "i"
	}
	var inline strings.Builder
	for _, f := range "ims" {
		if strings.ContainsRune(flags, f) {
			inline.WriteRune(f)
		}
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

// containsFold is a case-insensitive substring test.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
