package gateway

import (
	"strings"
	"time"
)

const (
	defaultMaxAttempts   = 5
	defaultBaseDelay     = 1 * time.Second
	defaultBaseTimeout   = 10 * time.Second
	defaultTimeoutStep   = 5 * time.Second
	defaultFragmentSize  = 25
	defaultFragmentPause = 120 * time.Millisecond

	jitterFloor = 100 * time.Millisecond
	jitterSpan  = 400 * time.Millisecond
)

// Config carries everything the gateway needs to build prompts and run the
// retry loop. It is fixed at construction so backoff and prompt assembly
// stay deterministic under test.
type Config struct {
	// Model is the upstream model identifier passed on every call.
	Model string

	// Persona is the role preamble placed at the top of every prompt.
	Persona string
	// ContactFacts are the owner's contact details stated to the model.
	ContactFacts string
	// ContactEmail, ContactLinkedIn and ContactGitHub feed synthesized
	// contact payloads. ContactEmail doubles as the fallback channel
	// mentioned when retries are exhausted.
	ContactEmail    string
	ContactLinkedIn string
	ContactGitHub   string

	// MaxAttempts bounds the retry loop, including the first attempt.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
	// BaseTimeout is the first attempt's deadline; each retry adds
	// TimeoutStep on top.
	BaseTimeout time.Duration
	TimeoutStep time.Duration

	// FragmentSize is the number of characters emitted per stream
	// fragment; FragmentPause is the delay between fragments.
	FragmentSize  int
	FragmentPause time.Duration

	// ContactKeywords override the built-in contact-intent keyword set.
	ContactKeywords []string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = defaultBaseTimeout
	}
	if c.TimeoutStep <= 0 {
		c.TimeoutStep = defaultTimeoutStep
	}
	if c.FragmentSize <= 0 {
		c.FragmentSize = defaultFragmentSize
	}
	if c.FragmentPause <= 0 {
		c.FragmentPause = defaultFragmentPause
	}
	if len(c.ContactKeywords) == 0 {
		c.ContactKeywords = defaultContactKeywords
	}
	return c
}

var defaultContactKeywords = []string{
	"contact", "reach", "email", "e-mail", "hire", "hiring",
	"get in touch", "connect", "linkedin", "phone", "call you",
}

// wantsContact runs a case-insensitive substring scan of the raw user
// message, not the enriched prompt.
func wantsContact(message string, keywords []string) bool {
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
