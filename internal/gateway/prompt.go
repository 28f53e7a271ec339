package gateway

import (
	"fmt"
	"strings"

	"portfolio-chat/internal/domain"
)

// Response styles selectable by the caller. Unknown styles fall back to
// StyleNormal's conversational tone.
const (
	StyleNormal      = "NORMAL"
	StyleFormal      = "FORMAL"
	StyleExplanatory = "EXPLANATORY"
	StyleMinimalist  = "MINIMALIST"
	StyleHR          = "HR"
)

var styleDirectives = map[string]string{
	StyleNormal:      "Answer in a friendly, conversational tone.",
	StyleFormal:      "Answer in a formal, professional register. No slang, no emoji.",
	StyleExplanatory: "Answer thoroughly, explaining background and reasoning step by step.",
	StyleMinimalist:  "Answer in as few words as possible. One or two sentences, no filler.",
	StyleHR:          "Answer as if speaking to a recruiter: emphasize skills, impact and availability.",
}

func styleDirective(style string) string {
	if d, ok := styleDirectives[strings.ToUpper(strings.TrimSpace(style))]; ok {
		return d
	}
	return styleDirectives[StyleNormal]
}

// Request is one gateway invocation: the raw user message plus the context
// the orchestrator gathered for it.
type Request struct {
	Message    string
	Enrichment string
	History    []domain.ChatTurn
	Style      string
}

func buildPrompt(cfg Config, req Request, wantContact bool) string {
	var sections []string

	sections = append(sections, strings.TrimSpace(cfg.Persona))
	if facts := strings.TrimSpace(cfg.ContactFacts); facts != "" {
		sections = append(sections, "Contact information:\n"+facts)
	}
	sections = append(sections, "Style:\n"+styleDirective(req.Style))
	sections = append(sections, protocolInstructions(wantContact))

	if history := serializeHistory(req.History); history != "" {
		sections = append(sections, "Conversation so far:\n"+history)
	}
	if enrichment := strings.TrimSpace(req.Enrichment); enrichment != "" {
		sections = append(sections, "Relevant background:\n"+enrichment)
	}
	sections = append(sections, "Current message:\n"+strings.TrimSpace(req.Message))

	return strings.Join(sections, "\n\n")
}

// protocolInstructions tells the model about the inline format protocol the
// codec decodes on the way back.
func protocolInstructions(wantContact bool) string {
	lines := []string{
		"Response protocol:",
		"When an answer is best rendered as a table, a contact card or a document link,",
		"include a directive [format:table], [format:contact] or [format:pdf] and a",
		"[data:<json>] block with the structured payload. Plain answers need no directive.",
	}
	if wantContact {
		lines = append(lines,
			"The visitor is asking how to get in touch: include a [format:contact]",
			"directive and a [data:...] payload listing the contact channels above.")
	}
	return strings.Join(lines, "\n")
}

func serializeHistory(history []domain.ChatTurn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, turn := range history {
		label := "User"
		if turn.Role == domain.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, strings.TrimSpace(turn.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

// contactChannels builds the synthesized contact payload from configured
// channels. At least the email entry is present whenever one is configured.
func contactChannels(cfg Config) *domain.Value {
	var entries []*domain.Value
	add := func(kind, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		entry := domain.Object()
		entry.Set("type", domain.String(kind))
		entry.Set("value", domain.String(value))
		entries = append(entries, entry)
	}
	add("email", cfg.ContactEmail)
	add("linkedin", cfg.ContactLinkedIn)
	add("github", cfg.ContactGitHub)

	payload := domain.Object()
	payload.Set("channels", domain.Array(entries...))
	return payload
}
