package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/gateway"
)

type mockGateway struct {
	env     domain.Envelope
	calls   int
	lastReq gateway.Request
}

func (m *mockGateway) Complete(_ context.Context, req gateway.Request) domain.Envelope {
	m.calls++
	m.lastReq = req
	return m.env
}

func (m *mockGateway) Stream(_ context.Context, req gateway.Request, onFragment func(string)) string {
	m.calls++
	m.lastReq = req
	var delivered string
	for _, frag := range []string{"part one, ", "part two"} {
		delivered += frag
		onFragment(frag)
	}
	return delivered
}

type appendRecord struct {
	sessionID, user, assistant string
}

type mockHistory struct {
	turns        []domain.ChatTurn
	appended     []appendRecord
	existed      bool
	historyCalls int
	clearCalls   int
}

func (m *mockHistory) History(_ context.Context, _ string) []domain.ChatTurn {
	m.historyCalls++
	return m.turns
}

func (m *mockHistory) Append(_ context.Context, sessionID, userText, assistantText string) {
	m.appended = append(m.appended, appendRecord{sessionID, userText, assistantText})
}

func (m *mockHistory) Clear(_ context.Context, _ string) bool {
	m.clearCalls++
	return m.existed
}

type mockLimiter struct {
	admit      bool
	remaining  int
	max        int
	admitCalls int
	commits    int
}

func (m *mockLimiter) Admit(_ context.Context, _ string) bool {
	m.admitCalls++
	return m.admit
}

func (m *mockLimiter) Commit(_ context.Context, _ string) { m.commits++ }

func (m *mockLimiter) Remaining(_ context.Context, _ string) int { return m.remaining }

func (m *mockLimiter) Max() int { return m.max }

type mockEnricher struct {
	text  string
	calls int
}

func (m *mockEnricher) Enrich(_ context.Context, _ string) string {
	m.calls++
	return m.text
}

func openLimiter() *mockLimiter {
	return &mockLimiter{admit: true, remaining: 14, max: 15}
}

func newTestService(t *testing.T, gw ModelGateway, history HistoryStore, limiter Limiter, enricher Enricher) *ChatService {
	t.Helper()
	svc, err := NewChatService(gw, history, limiter, enricher, 4000)
	require.NoError(t, err)
	return svc
}

func expectChatError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, code, ucErr.Code)
	require.Equal(t, reason, ucErr.Reason)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	gw := &mockGateway{}
	history := &mockHistory{}
	limiter := openLimiter()
	enricher := &mockEnricher{}

	_, err := NewChatService(nil, history, limiter, enricher, 4000)
	require.Error(t, err)
	_, err = NewChatService(gw, nil, limiter, enricher, 4000)
	require.Error(t, err)
	_, err = NewChatService(gw, history, nil, enricher, 4000)
	require.Error(t, err)
	_, err = NewChatService(gw, history, limiter, nil, 4000)
	require.Error(t, err)
}

func TestChat_HappyPath(t *testing.T) {
	gw := &mockGateway{env: domain.Envelope{Text: "I build backends.", Format: domain.FormatText}}
	history := &mockHistory{}
	limiter := openLimiter()
	svc := newTestService(t, gw, history, limiter, &mockEnricher{})

	out, err := svc.Chat(context.Background(), ChatInput{
		Message:   "What do you do?",
		Identity:  "1.2.3.4",
		SessionID: "sess-1",
	})
	require.NoError(t, err)
	require.Equal(t, "I build backends.", out.Envelope.Text)
	require.Equal(t, "sess-1", out.SessionID)
	require.Equal(t, 14, out.Remaining)

	require.Equal(t, []appendRecord{{"sess-1", "What do you do?", "I build backends."}}, history.appended)
	require.Equal(t, 1, limiter.commits)
}

func TestChat_GeneratesSessionID(t *testing.T) {
	gw := &mockGateway{env: domain.Envelope{Text: "ok", Format: domain.FormatText}}
	svc := newTestService(t, gw, &mockHistory{}, openLimiter(), &mockEnricher{})

	out, err := svc.Chat(context.Background(), ChatInput{Message: "Hello", Identity: "1.2.3.4"})
	require.NoError(t, err)
	require.NotEmpty(t, out.SessionID)
}

func TestChat_RejectsBeforeAnyCollaborator(t *testing.T) {
	gw := &mockGateway{}
	history := &mockHistory{}
	limiter := openLimiter()
	enricher := &mockEnricher{}
	svc := newTestService(t, gw, history, limiter, enricher)

	_, err := svc.Chat(context.Background(), ChatInput{Message: "  "})
	expectChatError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Chat(context.Background(), ChatInput{Message: strings.Repeat("a", 4001)})
	expectChatError(t, err, ErrorInvalidInput, "message_too_long")

	require.Zero(t, limiter.admitCalls)
	require.Zero(t, gw.calls)
	require.Zero(t, history.historyCalls)
	require.Zero(t, enricher.calls)
}

func TestChat_QuotaExhausted(t *testing.T) {
	gw := &mockGateway{}
	limiter := &mockLimiter{admit: false, max: 15}
	history := &mockHistory{}
	svc := newTestService(t, gw, history, limiter, &mockEnricher{})

	_, err := svc.Chat(context.Background(), ChatInput{Message: "Hello", Identity: "1.2.3.4"})
	expectChatError(t, err, ErrorRateLimited, "quota_exhausted")
	require.Zero(t, gw.calls)
	require.Zero(t, limiter.commits)
	require.Empty(t, history.appended)
}

func TestChat_PassesGatheredContextToGateway(t *testing.T) {
	gw := &mockGateway{env: domain.Envelope{Text: "ok", Format: domain.FormatText}}
	history := &mockHistory{turns: []domain.ChatTurn{
		{Role: domain.RoleUser, Text: "Hi"},
		{Role: domain.RoleAssistant, Text: "Hello!"},
	}}
	svc := newTestService(t, gw, history, openLimiter(), &mockEnricher{text: "Background blurb"})

	_, err := svc.Chat(context.Background(), ChatInput{
		Message:   " What have you built? ",
		Style:     "FORMAL",
		Identity:  "1.2.3.4",
		SessionID: "sess-1",
	})
	require.NoError(t, err)
	require.Equal(t, gateway.Request{
		Message:    "What have you built?",
		Enrichment: "Background blurb",
		History:    history.turns,
		Style:      "FORMAL",
	}, gw.lastReq)
}

func TestStreamChat_RecordsDeliveredText(t *testing.T) {
	gw := &mockGateway{}
	history := &mockHistory{}
	limiter := openLimiter()
	svc := newTestService(t, gw, history, limiter, &mockEnricher{})

	var fragments []string
	out, err := svc.StreamChat(context.Background(), ChatInput{
		Message:   "Tell me more",
		Identity:  "1.2.3.4",
		SessionID: "sess-1",
	}, func(frag string) { fragments = append(fragments, frag) })
	require.NoError(t, err)
	require.Equal(t, []string{"part one, ", "part two"}, fragments)
	require.Equal(t, "part one, part two", out.Envelope.Text)

	// The stored assistant turn is what was actually delivered.
	require.Equal(t, []appendRecord{{"sess-1", "Tell me more", "part one, part two"}}, history.appended)
	require.Equal(t, 1, limiter.commits)
}

func TestLimit(t *testing.T) {
	svc := newTestService(t, &mockGateway{}, &mockHistory{}, &mockLimiter{remaining: 7, max: 15}, &mockEnricher{})
	out := svc.Limit(context.Background(), "1.2.3.4")
	require.Equal(t, LimitOutput{Remaining: 7, Total: 15}, out)
}

func TestClearSession(t *testing.T) {
	history := &mockHistory{existed: true}
	svc := newTestService(t, &mockGateway{}, history, openLimiter(), &mockEnricher{})

	require.True(t, svc.ClearSession(context.Background(), "sess-1"))
	require.Equal(t, 1, history.clearCalls)

	// Blank session ids never reach the store.
	require.False(t, svc.ClearSession(context.Background(), "  "))
	require.Equal(t, 1, history.clearCalls)
}
