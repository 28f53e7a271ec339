// Package protocol implements the inline response protocol the upstream
// model is prompted to emit: a [format:<kind>] directive selecting a
// presentation format, an optional [data:<json>] token carrying a
// structured payload, and an optional closing [/format] marker.
//
// Tokens are located with an explicit scanner rather than regular
// expressions so precedence is a defined rule: the first directive with a
// recognized kind wins, and a data payload extends to the first ']' that is
// outside a JSON string and not balanced by a '[' inside the payload.
package protocol

import (
	"fmt"
	"log/slog"
	"strings"

	"portfolio-chat/internal/domain"
)

const (
	directivePrefix = "[format:"
	dataPrefix      = "[data:"
	closingMarker   = "[/format]"
)

// Decode extracts the format directive and data payload from raw model
// output. It never fails: unparseable payloads degrade to a nil Data, and
// text without a directive comes back unchanged (modulo trimming) with
// FormatText.
func Decode(raw string) domain.Envelope {
	env := domain.Envelope{Text: strings.TrimSpace(raw), Format: domain.FormatText}

	text := raw
	if start, end, format, ok := findDirective(raw); ok {
		env.Format = format
		text = text[:start] + text[end:]
	}

	// The data token is located in the original text, independent of the
	// directive position.
	if start, end, payload, ok := findData(text); ok {
		v, err := parsePayload(payload)
		if err != nil {
			slog.Warn("protocol: unparseable data payload", "err", err)
		} else {
			env.Data = v
		}
		text = text[:start] + text[end:]
	}

	text = removeFold(text, closingMarker)
	env.Text = strings.TrimSpace(text)
	return env
}

// EncodeContact appends a contact directive and payload block after the
// model's natural-language answer. Decoding the result yields
// FormatContact with a Data that deep-equals channels.
func EncodeContact(text string, channels *domain.Value) string {
	raw, err := channels.MarshalJSON()
	if err != nil {
		// Hand-built contact values marshal unconditionally; keep the
		// text usable if a caller ever feeds something that does not.
		slog.Warn("protocol: marshal contact payload", "err", err)
		return text
	}
	return strings.TrimSpace(text) + "\n\n[format:contact]\n[data:" + string(raw) + "]"
}

// HasDirective reports whether the text carries a recognized format
// directive of the given kind.
func HasDirective(text string, format domain.Format) bool {
	_, _, found, ok := findDirective(text)
	return ok && found == format
}

// findDirective returns the bounds and format of the first directive whose
// kind is in the recognized set. Directives with unrecognized kinds are
// skipped and left in the visible text.
func findDirective(s string) (start, end int, format domain.Format, ok bool) {
	lower := strings.ToLower(s)
	from := 0
	for {
		i := strings.Index(lower[from:], directivePrefix)
		if i < 0 {
			return 0, 0, domain.FormatText, false
		}
		i += from
		j := strings.IndexByte(s[i+len(directivePrefix):], ']')
		if j < 0 {
			return 0, 0, domain.FormatText, false
		}
		kind := s[i+len(directivePrefix) : i+len(directivePrefix)+j]
		if f, recognized := domain.ParseFormat(kind); recognized {
			return i, i + len(directivePrefix) + j + 1, f, true
		}
		from = i + len(directivePrefix)
	}
}

// findData returns the bounds of the first data token and its raw payload.
// The payload may span newlines. It ends at the first ']' at bracket depth
// zero outside a quoted string, so JSON arrays inside the payload do not
// terminate the token early.
func findData(s string) (start, end int, payload string, ok bool) {
	i := strings.Index(strings.ToLower(s), dataPrefix)
	if i < 0 {
		return 0, 0, "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for j := i + len(dataPrefix); j < len(s); j++ {
		c := s[j]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return i, j + 1, s[i+len(dataPrefix) : j], true
			}
			depth--
		}
	}
	// Unterminated token: leave it in the visible text.
	return 0, 0, "", false
}

func parsePayload(payload string) (*domain.Value, error) {
	v, err := domain.ParseValue(strings.TrimSpace(payload))
	if err == nil {
		return v, nil
	}
	v, retryErr := domain.ParseValue(sanitizeJSON(payload))
	if retryErr != nil {
		return nil, fmt.Errorf("after sanitize: %w (original: %v)", retryErr, err)
	}
	return v, nil
}

// removeFold deletes every case-insensitive occurrence of marker.
func removeFold(s, marker string) string {
	lower := strings.ToLower(s)
	marker = strings.ToLower(marker)
	var b strings.Builder
	for {
		i := strings.Index(lower, marker)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s = s[i+len(marker):]
		lower = lower[i+len(marker):]
	}
}
