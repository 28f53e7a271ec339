package protocol

import "strings"

// sanitizeJSON applies a best-effort cleanup to almost-JSON the model tends
// to produce: raw control characters, single-quoted strings, unquoted
// object keys, and trailing commas. The result is attempted exactly once;
// callers fall back to a nil payload if it still does not parse.
func sanitizeJSON(s string) string {
	s = collapseControlChars(s)
	s = normalizeQuotes(s)
	s = quoteBareKeys(s)
	s = stripTrailingCommas(s)
	return strings.TrimSpace(s)
}

// collapseControlChars replaces raw control characters with spaces. Inside
// a JSON string they are illegal; outside they are insignificant.
func collapseControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// normalizeQuotes converts single-quoted strings to double-quoted ones.
// Escaped single quotes inside them become literal apostrophes; double
// quotes inside them are escaped. Text inside existing double-quoted
// strings is left alone.
func normalizeQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			if quote == '\'' && c == '\'' {
				// \' has no meaning in JSON; emit a bare apostrophe.
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(c)
			}
			escaped = false
		case c == '\\' && quote != 0:
			escaped = true
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
			b.WriteByte('"')
		case quote == c:
			quote = 0
			b.WriteByte('"')
		case quote == '\'' && c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// quoteBareKeys wraps unquoted object keys in double quotes. A bare key is
// an identifier run that follows '{' or ',' (ignoring whitespace) and is
// followed by ':'.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	escaped := false
	expectKey := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			expectKey = false
			b.WriteByte(c)
		case c == '{' || c == ',':
			expectKey = true
			b.WriteByte(c)
		case expectKey && isIdentChar(c):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
			} else {
				b.WriteString(s[i:j])
			}
			i = j - 1
			expectKey = false
		case c == ' ' || c == '\t':
			b.WriteByte(c)
		default:
			expectKey = false
			b.WriteByte(c)
		}
	}
	return b.String()
}

// stripTrailingCommas removes commas directly preceding a closing brace or
// bracket, outside strings.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
