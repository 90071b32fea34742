// Package fields provides a digester that extracts key/value pairs from raw
// log text so field and range queries have data to match against.
package fields

import (
	"encoding/json"
	"strconv"
	"strings"

	"containeryard/internal/record"
)

// Extraction limits. Oversized keys or values are skipped rather than
// truncated, so a match never fires on a mangled value.
const (
	maxKeyLen   = 64
	maxValueLen = 256
	maxFields   = 32
)

// maxJSONDepth bounds nested-object flattening so pathological structures
// don't consume unbounded time.
const maxJSONDepth = 3

// Digester extracts fields from the raw text. Lines that parse as a JSON
// object are flattened into dot-separated paths; everything else goes
// through a conservative key=value scan. Keys normalize to lowercase; values
// keep their case (the matcher folds at comparison time). Fields already
// present on the record always win over extracted ones.
type Digester struct{}

// New creates a fields digester.
func New() *Digester { return &Digester{} }

func (d *Digester) Digest(rec *record.Record) {
	var pairs map[string]string
	if trimmed := strings.TrimSpace(rec.Raw); strings.HasPrefix(trimmed, "{") {
		pairs = extractJSON(trimmed)
	}
	if pairs == nil {
		pairs = extractKV(rec.Raw)
	}

	for k, v := range pairs {
		if _, exists := rec.Fields[k]; exists {
			continue
		}
		rec.SetField(k, v)
	}
}

// extractKV scans the line for key=value pairs.
//
// Key grammar: segment ( "." segment )*, segment = [A-Za-z_][A-Za-z0-9_]*.
// Values run until whitespace or a closing delimiter, or between quotes.
// The scan is conservative: false negatives are fine, false positives are
// what it avoids.
func extractKV(raw string) map[string]string {
	var pairs map[string]string

	i := 0
	for i < len(raw) && (pairs == nil || len(pairs) < maxFields) {
		eq := strings.IndexByte(raw[i:], '=')
		if eq < 0 {
			break
		}
		eq += i

		keyStart := keyStartBefore(raw, eq)
		if keyStart < 0 {
			i = eq + 1
			continue
		}
		key := strings.ToLower(raw[keyStart:eq])

		value, next := valueAfter(raw, eq+1)
		if value == "" || len(value) > maxValueLen {
			i = next
			continue
		}

		if pairs == nil {
			pairs = make(map[string]string)
		}
		if _, dup := pairs[key]; !dup {
			pairs[key] = value
		}
		i = next
	}

	return pairs
}

// keyStartBefore walks backwards from the '=' at eq and returns the start of
// a valid key, or -1 if the preceding text is not one.
func keyStartBefore(raw string, eq int) int {
	end := eq
	if end == 0 {
		return -1
	}

	start := end
	for start > 0 && isKeyChar(raw[start-1]) {
		start--
	}
	if start == end || end-start > maxKeyLen {
		return -1
	}
	// Key must not be glued to other word characters and each segment must
	// start with a letter or underscore.
	first := raw[start]
	if first >= '0' && first <= '9' {
		return -1
	}
	for _, seg := range strings.Split(raw[start:end], ".") {
		if seg == "" || (seg[0] >= '0' && seg[0] <= '9') {
			return -1
		}
	}
	return start
}

// valueAfter reads the value starting at pos and returns it together with
// the scan position after it. Quoted values may contain spaces.
func valueAfter(raw string, pos int) (string, int) {
	if pos >= len(raw) {
		return "", pos
	}

	if raw[pos] == '"' || raw[pos] == '\'' {
		quote := raw[pos]
		end := strings.IndexByte(raw[pos+1:], quote)
		if end < 0 {
			return "", len(raw)
		}
		return raw[pos+1 : pos+1+end], pos + end + 2
	}

	end := pos
	for end < len(raw) && !isValueDelim(raw[end]) {
		end++
	}
	return raw[pos:end], end
}

// extractJSON flattens a JSON object into dot-path scalar fields. Returns
// nil when the text is not a JSON object.
func extractJSON(raw string) map[string]string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}

	pairs := make(map[string]string)
	flatten("", obj, 1, pairs)
	if len(pairs) == 0 {
		return nil
	}
	return pairs
}

func flatten(prefix string, obj map[string]any, depth int, out map[string]string) {
	for k, v := range obj {
		if len(out) >= maxFields {
			return
		}
		key := strings.ToLower(k)
		if len(key) > maxKeyLen || key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		switch val := v.(type) {
		case string:
			if len(val) > 0 && len(val) <= maxValueLen {
				out[key] = val
			}
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(val)
		case map[string]any:
			if depth < maxJSONDepth {
				flatten(key, val, depth+1, out)
			}
		}
	}
}

func isKeyChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9') || b == '_' || b == '.'
}

func isValueDelim(b byte) bool {
	return b == ' ' || b == '\t' || b == ',' || b == ';' || b == '\n' || b == '\r'
}
