// Package gateway orchestrates calls to the upstream model: prompt
// assembly, bounded retries with exponential backoff, response-protocol
// decoding and simulated incremental delivery.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/integrations/gemini"
	"portfolio-chat/internal/protocol"
)

// Generator is the upstream model call consumed by the gateway.
// *gemini.Client satisfies this interface.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Gateway turns a user message plus gathered context into a response
// envelope. Every terminal outcome is a normal-shaped envelope: upstream
// trouble is absorbed, never surfaced as an error.
type Gateway struct {
	llm Generator
	cfg Config

	// Injection points for deterministic retry and streaming tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

func New(llm Generator, cfg Config) (*Gateway, error) {
	if llm == nil {
		return nil, errors.New("gateway: generator must not be nil")
	}
	if cfg.Model == "" {
		return nil, errors.New("gateway: model must not be empty")
	}
	return &Gateway{
		llm:    llm,
		cfg:    cfg.withDefaults(),
		sleep:  sleepCtx,
		jitter: func() time.Duration { return jitterFloor + time.Duration(rand.Int63n(int64(jitterSpan))) },
	}, nil
}

// attemptOutcome is the terminal state of the per-call retry machine.
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeExhausted
	outcomeFatal
	outcomeNoContent
	outcomeCancelled
)

// Complete builds the prompt, calls upstream with retries and decodes the
// reply into an envelope. It never returns an error: failures degrade to
// apology envelopes carrying a fallback contact channel.
func (g *Gateway) Complete(ctx context.Context, req Request) domain.Envelope {
	wantContact := wantsContact(req.Message, g.cfg.ContactKeywords)
	prompt := buildPrompt(g.cfg, req, wantContact)

	raw, outcome := g.generate(ctx, prompt)
	switch outcome {
	case outcomeSuccess:
		env := protocol.Decode(cleanupLinks(raw))
		if wantContact && env.Format != domain.FormatContact {
			env = protocol.Decode(protocol.EncodeContact(env.Text, contactChannels(g.cfg)))
		}
		return env
	case outcomeFatal:
		return g.textEnvelope("I couldn't process that message. Could you rephrase it?")
	case outcomeNoContent:
		return g.textEnvelope("Sorry, I couldn't come up with an answer just now. Please try again.")
	default: // exhausted or cancelled
		return g.textEnvelope(fmt.Sprintf(
			"Sorry, I'm having trouble answering right now. Please try again in a moment, or reach me directly at %s.",
			g.cfg.ContactEmail))
	}
}

// Stream produces the answer with the same retry logic, then hands it to
// onFragment in fixed-size pieces with a short pause in between. The
// cancellation signal is checked before every fragment; once observed, no
// further fragments are emitted and the text delivered so far is returned.
func (g *Gateway) Stream(ctx context.Context, req Request, onFragment func(string)) string {
	env := g.Complete(ctx, req)

	seq := newFragmentSeq(env.Text, g.cfg.FragmentSize)
	var delivered string
	first := true
	for {
		if !first {
			if err := g.sleep(ctx, g.cfg.FragmentPause); err != nil {
				return delivered
			}
		}
		frag, ok := seq.next(ctx)
		if !ok {
			return delivered
		}
		delivered += frag
		onFragment(frag)
		first = false
	}
}

// generate runs the retry state machine: Attempting -> {Success, Retryable,
// Fatal}. Retryable covers rate-limited and service-unavailable statuses
// plus per-attempt timeouts; each wait is baseDelay*2^attempt plus jitter.
func (g *Gateway) generate(ctx context.Context, prompt string) (string, attemptOutcome) {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", outcomeCancelled
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.BaseTimeout+time.Duration(attempt)*g.cfg.TimeoutStep)
		raw, err := g.llm.Generate(attemptCtx, g.cfg.Model, prompt)
		cancel()

		if err == nil {
			return raw, outcomeSuccess
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", outcomeCancelled
		}
		if errors.Is(err, gemini.ErrNoContent) {
			// The call itself succeeded; retrying would not help.
			return "", outcomeNoContent
		}
		if !retryable(err) {
			slog.Warn("gateway: fatal upstream error", "attempt", attempt+1, "err", err)
			return "", outcomeFatal
		}

		if attempt == g.cfg.MaxAttempts-1 {
			break
		}
		delay := g.cfg.BaseDelay<<uint(attempt) + g.jitter()
		slog.Info("gateway: retrying upstream call", "attempt", attempt+1, "delay", delay, "err", err)
		if g.sleep(ctx, delay) != nil {
			return "", outcomeCancelled
		}
	}
	slog.Warn("gateway: retries exhausted", "attempts", g.cfg.MaxAttempts, "err", lastErr)
	return "", outcomeExhausted
}

// retryable classifies upstream failures: service-unavailable and
// rate-limited statuses, and attempt timeouts.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		return code == 429 || code == 503
	}
	return false
}

func (g *Gateway) textEnvelope(text string) domain.Envelope {
	return domain.Envelope{Text: text, Format: domain.FormatText}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
