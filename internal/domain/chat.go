package domain

import "strings"

// Chat roles used for stored turns and upstream prompt assembly.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is a single conversation turn. Turns are append-only and
// immutable once written to the store.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Format identifies how the presentation layer should render a response.
type Format string

const (
	FormatText    Format = "text"
	FormatTable   Format = "table"
	FormatContact Format = "contact"
	FormatPDF     Format = "pdf"
)

// ParseFormat maps a directive kind to a Format, case-insensitively.
// The second return reports whether the kind is one of the recognized set.
func ParseFormat(kind string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(kind))) {
	case FormatText:
		return FormatText, true
	case FormatTable:
		return FormatTable, true
	case FormatContact:
		return FormatContact, true
	case FormatPDF:
		return FormatPDF, true
	}
	return FormatText, false
}

// Envelope is the structured result of one model interaction: the visible
// answer text, a presentation format, and an optional structured payload.
// Format defaults to FormatText; Data is nil unless a data directive was
// present and successfully parsed.
type Envelope struct {
	Text   string
	Format Format
	Data   *Value
}
