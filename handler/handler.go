// Package handler adapts API Gateway proxy events to the chat use case.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/usecase"
)

// ChatUseCase is the orchestrator surface the handler depends on.
type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	StreamChat(ctx context.Context, in usecase.ChatInput, onFragment func(string)) (usecase.ChatOutput, error)
	Limit(ctx context.Context, identity string) usecase.LimitOutput
	ClearSession(ctx context.Context, sessionID string) bool
}

type Handler struct {
	uc ChatUseCase
}

func NewHandler(uc ChatUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

type chatRequest struct {
	Message   string `json:"message"`
	Style     string `json:"style,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type chatResponse struct {
	Response   string        `json:"response"`
	Format     domain.Format `json:"format"`
	FormatData *domain.Value `json:"formatData"`
	SessionID  string        `json:"sessionId"`
	Remaining  int           `json:"remaining"`
}

type limitResponse struct {
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

type clearResponse struct {
	Cleared bool `json:"cleared"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle routes one proxy event. Every response carries a correlation id,
// echoing the caller's when one was provided.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(event.Headers, "X-Correlation-Id")
	if corrID == "" {
		corrID = uuid.NewString()
	}

	resp := h.route(ctx, event)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers["X-Correlation-Id"] = corrID
	return resp, nil
}

func (h *Handler) route(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	switch {
	case event.HTTPMethod == http.MethodPost && event.Path == "/chat":
		return h.chat(ctx, event)
	case event.HTTPMethod == http.MethodPost && event.Path == "/chat/stream":
		return h.chatStream(ctx, event)
	case event.HTTPMethod == http.MethodGet && event.Path == "/chat/limit":
		out := h.uc.Limit(ctx, identity(event))
		return jsonResponse(http.StatusOK, limitResponse{Remaining: out.Remaining, Total: out.Total})
	case event.HTTPMethod == http.MethodDelete && event.Path == "/chat/session":
		sessionID := event.QueryStringParameters["sessionId"]
		return jsonResponse(http.StatusOK, clearResponse{Cleared: h.uc.ClearSession(ctx, sessionID)})
	}
	return jsonResponse(http.StatusNotFound, errorResponse{Error: "NOT_FOUND"})
}

func (h *Handler) chat(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	in, errResp := parseChatRequest(event)
	if errResp != nil {
		return *errResp
	}

	out, err := h.uc.Chat(ctx, in)
	if err != nil {
		return errorResponseFor(err)
	}
	return jsonResponse(http.StatusOK, chatResponse{
		Response:   out.Envelope.Text,
		Format:     out.Envelope.Format,
		FormatData: out.Envelope.Data,
		SessionID:  out.SessionID,
		Remaining:  out.Remaining,
	})
}

// chatStream drains the gateway's fragment sequence into a server-sent
// events body. The proxy transport itself cannot stream, so this is
// presentation: fragment pacing and cancellation live in the gateway.
func (h *Handler) chatStream(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	in, errResp := parseChatRequest(event)
	if errResp != nil {
		return *errResp
	}

	var body strings.Builder
	out, err := h.uc.StreamChat(ctx, in, func(fragment string) {
		fmt.Fprintf(&body, "data: %s\n\n", fragment)
	})
	if err != nil {
		return errorResponseFor(err)
	}

	meta, _ := json.Marshal(chatResponse{
		Response:  out.Envelope.Text,
		Format:    out.Envelope.Format,
		SessionID: out.SessionID,
		Remaining: out.Remaining,
	})
	fmt.Fprintf(&body, "event: done\ndata: %s\n\n", meta)

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/event-stream"},
		Body:       body.String(),
	}
}

func parseChatRequest(event events.APIGatewayProxyRequest) (usecase.ChatInput, *events.APIGatewayProxyResponse) {
	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		resp := jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "malformed_body"})
		return usecase.ChatInput{}, &resp
	}
	return usecase.ChatInput{
		Message:   req.Message,
		Style:     req.Style,
		Identity:  identity(event),
		SessionID: req.SessionID,
	}, nil
}

func errorResponseFor(err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		status := http.StatusInternalServerError
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			status = http.StatusBadRequest
		case usecase.ErrorRateLimited:
			status = http.StatusTooManyRequests
		}
		return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
	}
	return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
}

// identity derives the quota key: the first entry of the forwarded-address
// header when present, otherwise the raw connection address.
func identity(event events.APIGatewayProxyRequest) string {
	if fwd := headerValue(event.Headers, "X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	return event.RequestContext.Identity.SourceIP
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"INTERNAL_ERROR"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
