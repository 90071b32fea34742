package logquery

import (
	"regexp"
	"strings"
)

var (
	rangeRe = regexp.MustCompile(`^(\w+):(.+)\.\.(.+)$`)
	fieldRe = regexp.MustCompile(`^(\w+):(.+)$`)
)

// levelKey is the reserved field key that selects severity filtering.
const levelKey = "level"

// Parse tokenizes and classifies a raw query string. It never fails: in the
// worst case every lexical token classifies as free text.
func Parse(raw string) *Query {
	q := &Query{Raw: raw}
	for _, lex := range Tokenize(raw) {
		if tok := classify(lex); tok != nil {
			q.Tokens = append(q.Tokens, tok)
		}
	}
	return q
}

// classify turns one lexical token into a typed query token. The branch
// order is significant: each earlier form is strictly more specific than the
// ones after it. Returns nil only for an empty input token, which the
// tokenizer's trimming already rules out.
func classify(lex string) Token {
	if lex == "" {
		return nil
	}

	negated := false
	rem := lex
	// A lone dash stays a literal dash; anything longer strips the prefix.
	if strings.HasPrefix(rem, "-") && len(rem) > 1 {
		negated = true
		rem = rem[1:]
	}

	// Regex literal: /pattern/flags. The last slash closes the pattern, so
	// unescaped slashes inside the pattern are allowed as long as the text
	// after them still ends in the final delimiter. That greedy rule can
	// misread a pattern whose tail looks like flags; it is a known ambiguity
	// of the language, kept for compatibility.
	if strings.HasPrefix(rem, "/") {
		if last := strings.LastIndex(rem, "/"); last > 0 {
			return RegexToken{
				Pattern: rem[1:last],
				Flags:   rem[last+1:],
				Negated: negated,
			}
		}
	}

	// Range: key:start..end. Checked before the field form so the ".."
	// separator is not swallowed into a field value.
	if m := rangeRe.FindStringSubmatch(rem); m != nil {
		key, start, end := m[1], m[2], m[3]
		if strings.EqualFold(key, levelKey) {
			lo, okLo := ParseSeverity(start)
			hi, okHi := ParseSeverity(end)
			if okLo && okHi {
				return LevelToken{Levels: severityRange(lo, hi), Negated: negated}
			}
		}
		return RangeToken{Key: key, Start: start, End: end, Negated: negated}
	}

	// Field: key:value, value optionally quoted.
	if m := fieldRe.FindStringSubmatch(rem); m != nil {
		key, value := m[1], m[2]
		if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = value[1 : len(value)-1]
		}
		if strings.EqualFold(key, levelKey) {
			if s, ok := ParseSeverity(value); ok {
				return LevelToken{Levels: []Severity{s}, Negated: negated}
			}
		}
		return FieldToken{Key: key, Value: value, Negated: negated}
	}

	// Quoted phrase.
	if len(rem) > 2 && strings.HasPrefix(rem, `"`) && strings.HasSuffix(rem, `"`) {
		return TextToken{Value: rem[1 : len(rem)-1], Negated: negated}
	}

	return TextToken{Value: rem, Negated: negated}
}
