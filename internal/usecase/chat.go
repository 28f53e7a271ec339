package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/gateway"
)

const defaultMaxMessageLen = 4000

// ModelGateway produces response envelopes; it absorbs upstream failures
// itself and never returns an error.
type ModelGateway interface {
	Complete(ctx context.Context, req gateway.Request) domain.Envelope
	Stream(ctx context.Context, req gateway.Request, onFragment func(string)) string
}

// HistoryStore is the bounded per-session conversation log. All methods
// are best-effort and never fail the caller.
type HistoryStore interface {
	History(ctx context.Context, sessionID string) []domain.ChatTurn
	Append(ctx context.Context, sessionID, userText, assistantText string)
	Clear(ctx context.Context, sessionID string) bool
}

// Limiter is the per-identity admission counter.
type Limiter interface {
	Admit(ctx context.Context, identity string) bool
	Commit(ctx context.Context, identity string)
	Remaining(ctx context.Context, identity string) int
	Max() int
}

// Enricher returns background text for a message, or "" when none applies.
type Enricher interface {
	Enrich(ctx context.Context, message string) string
}

// ChatService validates input, consults the limiter, store and enricher,
// and invokes the model gateway. Only input and admission problems surface
// as errors; everything downstream degrades into normal-shaped envelopes.
type ChatService struct {
	gw            ModelGateway
	history       HistoryStore
	limiter       Limiter
	enricher      Enricher
	maxMessageLen int
}

type ChatInput struct {
	Message   string
	Style     string
	Identity  string
	SessionID string
}

type ChatOutput struct {
	Envelope  domain.Envelope
	SessionID string
	Remaining int
}

type LimitOutput struct {
	Remaining int
	Total     int
}

func NewChatService(gw ModelGateway, history HistoryStore, limiter Limiter, enricher Enricher, maxMessageLen int) (*ChatService, error) {
	if gw == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if history == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: limiter must not be nil")
	}
	if enricher == nil {
		return nil, errors.New("usecase: enricher must not be nil")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &ChatService{
		gw:            gw,
		history:       history,
		limiter:       limiter,
		enricher:      enricher,
		maxMessageLen: maxMessageLen,
	}, nil
}

// Chat answers one message. Validation and admission run before any
// collaborator does real work.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	req, sessionID, err := s.prepare(ctx, in)
	if err != nil {
		return ChatOutput{}, err
	}

	env := s.gw.Complete(ctx, req)
	return s.finish(ctx, in.Identity, sessionID, req.Message, env), nil
}

// StreamChat is Chat with incremental delivery: fragments of the answer go
// to onFragment as they are produced. The returned envelope carries the
// text actually delivered, so a cancelled stream yields a partial record.
func (s *ChatService) StreamChat(ctx context.Context, in ChatInput, onFragment func(string)) (ChatOutput, error) {
	req, sessionID, err := s.prepare(ctx, in)
	if err != nil {
		return ChatOutput{}, err
	}

	delivered := s.gw.Stream(ctx, req, onFragment)
	env := domain.Envelope{Text: delivered, Format: domain.FormatText}
	return s.finish(ctx, in.Identity, sessionID, req.Message, env), nil
}

// Limit reports the identity's remaining quota.
func (s *ChatService) Limit(ctx context.Context, identity string) LimitOutput {
	return LimitOutput{
		Remaining: s.limiter.Remaining(ctx, identity),
		Total:     s.limiter.Max(),
	}
}

// ClearSession deletes the session's conversation; it reports whether a
// record existed and is safe to repeat.
func (s *ChatService) ClearSession(ctx context.Context, sessionID string) bool {
	if strings.TrimSpace(sessionID) == "" {
		return false
	}
	return s.history.Clear(ctx, sessionID)
}

func (s *ChatService) prepare(ctx context.Context, in ChatInput) (gateway.Request, string, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return gateway.Request{}, "", newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.maxMessageLen {
		return gateway.Request{}, "", newError(ErrorInvalidInput, "message_too_long", nil)
	}

	if !s.limiter.Admit(ctx, in.Identity) {
		return gateway.Request{}, "", newError(ErrorRateLimited, "quota_exhausted", nil)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	return gateway.Request{
		Message:    message,
		Enrichment: s.enricher.Enrich(ctx, message),
		History:    s.history.History(ctx, sessionID),
		Style:      in.Style,
	}, sessionID, nil
}

func (s *ChatService) finish(ctx context.Context, identity, sessionID, message string, env domain.Envelope) ChatOutput {
	s.history.Append(ctx, sessionID, message, env.Text)
	s.limiter.Commit(ctx, identity)
	return ChatOutput{
		Envelope:  env,
		SessionID: sessionID,
		Remaining: s.limiter.Remaining(ctx, identity),
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
