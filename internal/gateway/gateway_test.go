package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/integrations/gemini"
)

type genResponse struct {
	text string
	err  error
}

type fakeLLM struct {
	responses []genResponse
	calls     int
	prompts   []string
}

func (f *fakeLLM) Generate(_ context.Context, _ string, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx].text, f.responses[idx].err
}

func ok(text string) genResponse { return genResponse{text: text} }

func status(code int) genResponse {
	return genResponse{err: &gemini.HTTPStatusError{StatusCode: code, URL: "http://upstream"}}
}

func testConfig() Config {
	return Config{
		Model:           "gemini-2.0-flash",
		Persona:         "You are answering as the portfolio owner in first person.",
		ContactFacts:    "Email: me@example.com",
		ContactEmail:    "me@example.com",
		ContactLinkedIn: "linkedin.com/in/owner",
	}
}

// newTestGateway builds a gateway whose sleeps are recorded instead of
// waited out.
func newTestGateway(t *testing.T, llm Generator, cfg Config) (*Gateway, *[]time.Duration) {
	t.Helper()
	g, err := New(llm, cfg)
	require.NoError(t, err)
	delays := &[]time.Duration{}
	g.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return g, delays
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(nil, testConfig())
	require.Error(t, err)

	cfg := testConfig()
	cfg.Model = ""
	_, err = New(&fakeLLM{}, cfg)
	require.Error(t, err)
}

func TestComplete_HappyPath(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{ok("I build backend systems in Go.")}}
	g, delays := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "What do you do?"})
	require.Equal(t, domain.FormatText, env.Format)
	require.Equal(t, "I build backend systems in Go.", env.Text)
	require.Nil(t, env.Data)
	require.Equal(t, 1, llm.calls)
	require.Empty(t, *delays)
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{
		status(503), status(503), status(503), ok("Recovered answer."),
	}}
	g, delays := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "What do you do?"})
	require.Equal(t, "Recovered answer.", env.Text)
	require.Equal(t, 4, llm.calls)

	require.Len(t, *delays, 3)
	for i := 1; i < len(*delays); i++ {
		require.Greater(t, (*delays)[i], (*delays)[i-1])
	}
}

func TestComplete_RateLimitedIsRetryable(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{status(429), ok("fine")}}
	g, _ := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "What do you do?"})
	require.Equal(t, "fine", env.Text)
	require.Equal(t, 2, llm.calls)
}

func TestComplete_TimeoutIsRetryable(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{
		{err: context.DeadlineExceeded}, ok("slow but fine"),
	}}
	g, _ := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "What do you do?"})
	require.Equal(t, "slow but fine", env.Text)
	require.Equal(t, 2, llm.calls)
}

func TestComplete_ExhaustedRetries(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{status(503)}}
	g, delays := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "What do you do?"})
	require.Equal(t, defaultMaxAttempts, llm.calls)
	require.Len(t, *delays, defaultMaxAttempts-1)
	require.Equal(t, domain.FormatText, env.Format)
	// The apology still offers a working contact channel.
	require.Contains(t, env.Text, "me@example.com")
}

func TestComplete_FatalStatusDoesNotRetry(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{status(400)}}
	g, delays := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "What do you do?"})
	require.Equal(t, 1, llm.calls)
	require.Empty(t, *delays)
	require.Equal(t, domain.FormatText, env.Format)
	require.NotEmpty(t, env.Text)
}

func TestComplete_NoContentIsSoftFailure(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{{err: gemini.ErrNoContent}}}
	g, delays := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "What do you do?"})
	require.Equal(t, 1, llm.calls)
	require.Empty(t, *delays)
	require.Equal(t, domain.FormatText, env.Format)
	require.NotEmpty(t, env.Text)
}

func TestComplete_CancelledBeforeCall(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{ok("never used")}}
	g, _ := newTestGateway(t, llm, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env := g.Complete(ctx, Request{Message: "What do you do?"})
	require.Zero(t, llm.calls)
	require.NotEmpty(t, env.Text)
}

func TestComplete_DecodesDirective(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{
		ok("My main skills.\n[format:table]\n[data:{\"headers\":[\"Skill\"],\"rows\":[[\"Go\"]]}]"),
	}}
	g, _ := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "List your skills"})
	require.Equal(t, domain.FormatTable, env.Format)
	require.Equal(t, "My main skills.", env.Text)
	require.NotNil(t, env.Data)
}

func TestComplete_ContactIntentSynthesizesDirective(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{ok("Feel free to drop me a line any time.")}}
	g, _ := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "How can I reach you?"})
	require.Equal(t, domain.FormatContact, env.Format)
	require.Equal(t, "Feel free to drop me a line any time.", env.Text)
	require.NotNil(t, env.Data)

	channels, found := env.Data.Get("channels")
	require.True(t, found)
	require.GreaterOrEqual(t, channels.Len(), 1)
}

func TestComplete_ContactIntentKeepsModelDirective(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{
		ok("Write to me.\n[format:contact]\n[data:{\"channels\":[{\"type\":\"email\",\"value\":\"model@example.com\"}]}]"),
	}}
	g, _ := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "How do I contact you?"})
	require.Equal(t, domain.FormatContact, env.Format)

	channels, found := env.Data.Get("channels")
	require.True(t, found)
	require.Equal(t, 1, channels.Len())
	value, found := channels.Items()[0].Get("value")
	require.True(t, found)
	require.Equal(t, "model@example.com", value.StringValue())
}

func TestComplete_CleansLinkArtifacts(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{ok("See [my site](https://example.com))")}}
	g, _ := newTestGateway(t, llm, testConfig())

	env := g.Complete(context.Background(), Request{Message: "Where is your site?"})
	require.Equal(t, "See [my site](https://example.com)", env.Text)
}

func TestStream_EmitsFixedSizeFragmentsInOrder(t *testing.T) {
	text := strings.Repeat("abcde", 12) // 60 chars
	llm := &fakeLLM{responses: []genResponse{ok(text)}}
	g, delays := newTestGateway(t, llm, testConfig())

	var fragments []string
	delivered := g.Stream(context.Background(), Request{Message: "Tell me everything"}, func(frag string) {
		fragments = append(fragments, frag)
	})

	require.Equal(t, []string{text[:25], text[25:50], text[50:]}, fragments)
	require.Equal(t, text, delivered)
	// One pause between each pair of fragments, none before the first.
	require.Len(t, *delays, 2)
}

func TestStream_CancellationStopsFragments(t *testing.T) {
	llm := &fakeLLM{responses: []genResponse{ok(strings.Repeat("x", 200))}}
	g, _ := newTestGateway(t, llm, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	var fragments []string
	delivered := g.Stream(ctx, Request{Message: "Tell me everything"}, func(frag string) {
		fragments = append(fragments, frag)
		if len(fragments) == 2 {
			cancel()
		}
	})

	require.Len(t, fragments, 2)
	require.Equal(t, strings.Repeat("x", 50), delivered)
	require.Equal(t, 1, llm.calls)
}

func TestFragmentSeq_RuneBoundaries(t *testing.T) {
	seq := newFragmentSeq(strings.Repeat("ä", 30), 25)
	first, more := seq.next(context.Background())
	require.True(t, more)
	require.Equal(t, strings.Repeat("ä", 25), first)

	second, more := seq.next(context.Background())
	require.True(t, more)
	require.Equal(t, strings.Repeat("ä", 5), second)

	_, more = seq.next(context.Background())
	require.False(t, more)
}

func TestBuildPrompt_Sections(t *testing.T) {
	cfg := testConfig().withDefaults()
	prompt := buildPrompt(cfg, Request{
		Message:    "What have you built?",
		Enrichment: "Recent projects:\n- chatd (Go)",
		History: []domain.ChatTurn{
			{Role: domain.RoleUser, Text: "Hi"},
			{Role: domain.RoleAssistant, Text: "Hello!"},
		},
		Style: "formal",
	}, false)

	require.Contains(t, prompt, cfg.Persona)
	require.Contains(t, prompt, "Contact information:")
	require.Contains(t, prompt, styleDirectives[StyleFormal])
	require.Contains(t, prompt, "Conversation so far:\nUser: Hi\nAssistant: Hello!")
	require.Contains(t, prompt, "Relevant background:\nRecent projects:")
	require.Contains(t, prompt, "Current message:\nWhat have you built?")
	require.NotContains(t, prompt, "asking how to get in touch")
}

func TestBuildPrompt_ContactIntentInstruction(t *testing.T) {
	prompt := buildPrompt(testConfig().withDefaults(), Request{Message: "How can I reach you?"}, true)
	require.Contains(t, prompt, "asking how to get in touch")
}

func TestStyleDirective_UnknownFallsBackToNormal(t *testing.T) {
	require.Equal(t, styleDirectives[StyleNormal], styleDirective("PIRATE"))
	require.Equal(t, styleDirectives[StyleNormal], styleDirective(""))
	require.Equal(t, styleDirectives[StyleHR], styleDirective("hr"))
}

func TestWantsContact(t *testing.T) {
	keywords := testConfig().withDefaults().ContactKeywords
	require.True(t, wantsContact("How can I REACH you?", keywords))
	require.True(t, wantsContact("what's your email address", keywords))
	require.False(t, wantsContact("What do you do for a living?", keywords))
}
