// Package logquery implements the dashboard's log search mini-language: a
// tokenizer, a token classifier, and a matcher that evaluates a parsed query
// against a single log record.
//
// A query is a whitespace-separated list of tokens combined with implicit
// AND. Each token is one of free text, "quoted phrase", key:value,
// key:start..end, level:warn..error, or /regex/flags, and any token can be
// negated with a leading dash.
//
// This package is a pure parsing and matching layer. It MUST NOT:
//   - Do I/O or logging
//   - Hold state between calls
//   - Return errors: malformed input degrades to free-text matching
package logquery

import (
	"fmt"
	"strings"
)

// Token is the interface for classified query tokens.
// The marker method keeps the set of implementations closed so the matcher's
// type switch stays exhaustive.
type Token interface {
	token()
	// Kind returns the token's type name for display and serialization.
	Kind() string
	// IsNegated reports whether the token's result is inverted.
	IsNegated() bool
	// Label returns short human-readable badge text for the UI breakdown.
	Label() string
}

// FieldToken is a case-insensitive substring filter on a named field.
type FieldToken struct {
	Key     string
	Value   string
	Negated bool
}

func (FieldToken) token() {}

func (t FieldToken) Kind() string    { return "field" }
func (t FieldToken) IsNegated() bool { return t.Negated }

func (t FieldToken) Label() string {
	return t.Key + ":" + t.Value
}

// RangeToken is an inclusive range filter on a named field. Bounds compare
// numerically when the field value and both bounds parse as numbers, and
// lexically otherwise.
type RangeToken struct {
	Key     string
	Start   string
	End     string
	Negated bool
}

func (RangeToken) token() {}

func (t RangeToken) Kind() string    { return "range" }
func (t RangeToken) IsNegated() bool { return t.Negated }

func (t RangeToken) Label() string {
	return fmt.Sprintf("%s:%s..%s", t.Key, t.Start, t.End)
}

// LevelToken matches records whose severity is in Levels. A reversed range
// produces an empty set, which matches nothing.
type LevelToken struct {
	Levels  []Severity
	Negated bool
}

func (LevelToken) token() {}

func (t LevelToken) Kind() string    { return "level" }
func (t LevelToken) IsNegated() bool { return t.Negated }

func (t LevelToken) Label() string {
	names := make([]string, len(t.Levels))
	for i, s := range t.Levels {
		names[i] = s.String()
	}
	return "level:" + strings.Join(names, ",")
}

// contains reports set membership.
func (t LevelToken) contains(s Severity) bool {
	for _, l := range t.Levels {
		if l == s {
			return true
		}
	}
	return false
}

// RegexToken matches the record's raw text against Pattern. Flags follow the
// source language's single-letter convention; matching defaults to
// case-insensitive when no flags are given.
type RegexToken struct {
	Pattern string
	Flags   string
	Negated bool
}

func (RegexToken) token() {}

func (t RegexToken) Kind() string    { return "regex" }
func (t RegexToken) IsNegated() bool { return t.Negated }

func (t RegexToken) Label() string {
	return "/" + t.Pattern + "/" + t.Flags
}

// TextToken is a case-insensitive substring filter on the raw text.
type TextToken struct {
	Value   string
	Negated bool
}

func (TextToken) token() {}

func (t TextToken) Kind() string    { return "text" }
func (t TextToken) IsNegated() bool { return t.Negated }

func (t TextToken) Label() string {
	return t.Value
}

// Query is a parsed search query: the original string plus its classified
// tokens in input order. Order matters only for display; matching is a
// commutative conjunction. A query with no tokens matches every record.
type Query struct {
	Raw    string
	Tokens []Token
}

// IsEmpty reports whether the query has no tokens and therefore matches all
// records.
func (q *Query) IsEmpty() bool {
	return len(q.Tokens) == 0
}

func (q *Query) String() string {
	if q.IsEmpty() {
		return "(match all)"
	}
	parts := make([]string, len(q.Tokens))
	for i, t := range q.Tokens {
		neg := ""
		if t.IsNegated() {
			neg = "-"
		}
		parts[i] = neg + t.Kind() + "(" + t.Label() + ")"
	}
	return strings.Join(parts, " AND ")
}
