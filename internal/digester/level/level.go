// Package level provides a digester that derives a normalized severity for
// records whose source did not supply one.
package level

import (
	"strings"

	"containeryard/internal/record"
)

// Digester fills in Record.Level from the raw text. It recognizes, in order:
//   - a level/severity entry already present in the record's fields
//   - syslog <priority> prefixes, mapping priority % 8 onto the scale
//   - a leading level word: [ERROR], WARN:, or a fully uppercase FATAL
//   - KV and JSON forms anywhere in the line: level=error, "severity":"warn"
//
// Values normalize onto the six-step scale trace, debug, info, warn, error,
// fatal. A record that already carries a level is left unchanged.
type Digester struct{}

// New creates a level digester.
func New() *Digester { return &Digester{} }

func (d *Digester) Digest(rec *record.Record) {
	if rec.Level != "" {
		return
	}

	for _, key := range []string{"level", "severity"} {
		if v, ok := rec.Fields[key]; ok {
			if lvl := normalize(v); lvl != "" {
				rec.Level = lvl
			}
			return
		}
	}

	if lvl := fromSyslogPriority(rec.Raw); lvl != "" {
		rec.Level = lvl
		return
	}
	if lvl := fromLeadingWord(rec.Raw); lvl != "" {
		rec.Level = lvl
		return
	}
	if lvl := fromKVOrJSON(rec.Raw); lvl != "" {
		rec.Level = lvl
	}
}

// fromSyslogPriority parses <priority> at the start of a message and maps
// severity = priority % 8 onto the scale.
func fromSyslogPriority(raw string) string {
	if len(raw) < 3 || raw[0] != '<' {
		return ""
	}

	i := 1
	for i < len(raw) && i < 5 && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	if i == 1 || i >= len(raw) || raw[i] != '>' {
		return ""
	}

	priority := 0
	for _, b := range []byte(raw[1:i]) {
		priority = priority*10 + int(b-'0')
	}

	switch priority % 8 {
	case 0, 1, 2: // emerg, alert, crit
		return "fatal"
	case 3: // err
		return "error"
	case 4: // warning
		return "warn"
	case 5, 6: // notice, info
		return "info"
	default: // debug
		return "debug"
	}
}

// maxLeadingWords bounds how far into a line the leading-word scan looks,
// so timestamps and PIDs ahead of the level word don't defeat it.
const maxLeadingWords = 4

// fromLeadingWord looks for a level word near the start of the line. To keep
// false positives rare the word must be marked up in some way: bracketed
// ([ERROR]), ending in a colon (warn:), or fully uppercase (FATAL). A bare
// lowercase "info" in running text never counts.
func fromLeadingWord(raw string) string {
	words := strings.Fields(raw)
	if len(words) > maxLeadingWords {
		words = words[:maxLeadingWords]
	}

	for _, w := range words {
		marked := false
		if strings.HasPrefix(w, "[") && strings.HasSuffix(w, "]") && len(w) > 2 {
			w = w[1 : len(w)-1]
			marked = true
		}
		if strings.HasSuffix(w, ":") && len(w) > 1 {
			w = w[:len(w)-1]
			marked = true
		}
		if !marked && w != strings.ToUpper(w) {
			continue
		}
		if lvl := normalize(w); lvl != "" {
			return lvl
		}
	}
	return ""
}

// fromKVOrJSON searches for level=value, level="value", "level":"value" and
// severity variants anywhere in the line.
func fromKVOrJSON(raw string) string {
	for _, key := range []string{"level", "severity"} {
		if lvl := findKeyValue(raw, key); lvl != "" {
			return lvl
		}
	}
	return ""
}

// findKeyValue searches for key=value or "key":"value" patterns, requiring a
// word boundary before the key so "sublevel=" doesn't match "level".
func findKeyValue(raw, key string) string {
	pos := 0
	for pos < len(raw) {
		idx := strings.Index(raw[pos:], key)
		if idx < 0 {
			return ""
		}
		idx += pos
		keyEnd := idx + len(key)

		if idx > 0 && isWordChar(raw[idx-1]) {
			pos = keyEnd
			continue
		}

		rest := raw[keyEnd:]
		var val string
		switch {
		case strings.HasPrefix(rest, "="):
			val = valueAfterEquals(rest[1:])
		case strings.HasPrefix(rest, `":`):
			val = valueAfterColon(rest[2:])
		case strings.HasPrefix(rest, ":"):
			val = valueAfterColon(rest[1:])
		default:
			pos = keyEnd
			continue
		}

		if lvl := normalize(val); lvl != "" {
			return lvl
		}
		pos = keyEnd
	}
	return ""
}

// valueAfterEquals reads an optionally quoted value after '='.
func valueAfterEquals(rest string) string {
	if rest == "" {
		return ""
	}
	if rest[0] == '"' || rest[0] == '\'' {
		end := strings.IndexByte(rest[1:], rest[0])
		if end < 0 {
			return ""
		}
		return rest[1 : 1+end]
	}
	end := 0
	for end < len(rest) && !isDelimiter(rest[end]) {
		end++
	}
	return rest[:end]
}

// valueAfterColon reads a JSON- or YAML-style value after ':'.
func valueAfterColon(rest string) string {
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	if i >= len(rest) {
		return ""
	}
	if rest[i] == '"' || rest[i] == '\'' {
		end := strings.IndexByte(rest[i+1:], rest[i])
		if end < 0 {
			return ""
		}
		return rest[i+1 : i+1+end]
	}
	start := i
	for i < len(rest) && !isDelimiter(rest[i]) {
		i++
	}
	return rest[start:i]
}

// normalize maps a raw level word onto the canonical six-step scale.
func normalize(val string) string {
	switch strings.ToLower(val) {
	case "fatal", "critical", "crit", "alert", "emerg", "emergency", "panic":
		return "fatal"
	case "error", "err":
		return "error"
	case "warn", "warning":
		return "warn"
	case "info", "notice", "informational":
		return "info"
	case "debug":
		return "debug"
	case "trace":
		return "trace"
	default:
		return ""
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}

func isDelimiter(b byte) bool {
	return b == ' ' || b == '\t' || b == ',' || b == ';' || b == '}' || b == ']' || b == '\n' || b == '\r'
}
