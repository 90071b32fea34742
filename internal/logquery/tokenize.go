package logquery

import "strings"

// regexFlags are the flag letters accepted after a closing regex slash.
const regexFlags = "igmsuy"

// scanState tracks the tokenizer's position-independent scan modes.
// A single struct beats loose booleans here: every transition that touches
// one mode is visible next to the others.
type scanState struct {
	buf      strings.Builder
	inQuotes bool
	inRegex  bool
	escaped  bool
}

// flush appends the trimmed buffer contents to toks and resets the buffer.
func (st *scanState) flush(toks []string) []string {
	tok := strings.TrimSpace(st.buf.String())
	st.buf.Reset()
	if tok == "" {
		return toks
	}
	return append(toks, tok)
}

// Tokenize splits a raw query string into lexical tokens. Quoted phrases and
// regex literals (with trailing flags) survive as single tokens; unescaped
// whitespace outside them separates tokens. Quotes and slashes are kept in
// the token text so classification can still see them.
//
// Unterminated quotes or regex literals are not an error: the scan runs to
// the end of input and flushes whatever accumulated. Malformed syntax
// degrades to a plain text token at classification time.
func Tokenize(raw string) []string {
	var toks []string
	var st scanState

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if st.escaped {
			st.buf.WriteRune(r)
			st.escaped = false
			continue
		}

		switch {
		case r == '\\':
			// Escapes are preserved verbatim; interpretation is left to
			// the regex engine or the classifier.
			st.escaped = true
			st.buf.WriteRune(r)

		case r == '"':
			st.inQuotes = !st.inQuotes
			st.buf.WriteRune(r)

		case r == '/' && !st.inQuotes:
			st.buf.WriteRune(r)
			if !st.inRegex {
				st.inRegex = true
				continue
			}
			st.inRegex = false
			// Consume trailing flag letters.
			for i+1 < len(runes) && strings.ContainsRune(regexFlags, runes[i+1]) {
				i++
				st.buf.WriteRune(runes[i])
			}
			// A regex literal ends the token on its own once the flags are
			// consumed; waiting for the whitespace rule would split the
			// flags off into the next token.
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\t' {
				toks = st.flush(toks)
			}

		case (r == ' ' || r == '\t') && !st.inQuotes && !st.inRegex:
			toks = st.flush(toks)

		default:
			st.buf.WriteRune(r)
		}
	}

	return st.flush(toks)
}
