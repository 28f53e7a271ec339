package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"portfolio-chat/internal/domain"
)

const (
	skHistory = "HISTORY#"

	// MaxTurns bounds the stored history to the most recent ten exchanges.
	MaxTurns = 20

	conversationTTL = 24 * time.Hour
)

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// ConversationStore keeps one bounded, TTL-expiring history item per
// session. Every operation degrades to a no-op or empty result on storage
// trouble: conversation state is best-effort, never a user-facing failure.
type ConversationStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewConversationStore(api dynamodbAPI, tableName string) (*ConversationStore, error) {
	if err := validate(api, tableName); err != nil {
		return nil, err
	}
	return &ConversationStore{api: api, tableName: tableName, now: time.Now}, nil
}

// History returns the stored turns in order, or an empty slice when the
// session is absent, expired or the read fails.
func (s *ConversationStore) History(ctx context.Context, sessionID string) []domain.ChatTurn {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(sessionID),
	})
	if err != nil {
		slog.Warn("repository: conversation read failed, treating history as empty", "err", err)
		return nil
	}
	if out == nil || len(out.Item) == 0 || s.expired(out.Item) {
		return nil
	}
	turns, err := itemToTurns(out.Item)
	if err != nil {
		slog.Warn("repository: conversation item malformed, treating history as empty", "err", err)
		return nil
	}
	return turns
}

// Append loads the existing turns, appends the user turn then the
// assistant turn, truncates to the most recent MaxTurns keeping newest, and
// writes the item back with a refreshed 24-hour expiry. Concurrent appends
// to one session are last-write-wins.
func (s *ConversationStore) Append(ctx context.Context, sessionID, userText, assistantText string) {
	turns := s.History(ctx, sessionID)
	turns = append(turns,
		domain.ChatTurn{Role: domain.RoleUser, Text: userText},
		domain.ChatTurn{Role: domain.RoleAssistant, Text: assistantText},
	)
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      s.historyItem(sessionID, turns),
	})
	if err != nil {
		slog.Warn("repository: conversation write dropped", "err", err)
	}
}

// Clear deletes the stored conversation and reports whether one existed.
func (s *ConversationStore) Clear(ctx context.Context, sessionID string) bool {
	out, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          s.key(sessionID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		slog.Warn("repository: conversation clear failed", "err", err)
		return false
	}
	return out != nil && len(out.Attributes) > 0
}

func (s *ConversationStore) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skHistory},
	}
}

func (s *ConversationStore) expired(item map[string]types.AttributeValue) bool {
	ttl, err := intAttr(item, "ttl")
	if err != nil {
		return false
	}
	return ttl <= s.now().Unix()
}

func (s *ConversationStore) historyItem(sessionID string, turns []domain.ChatTurn) map[string]types.AttributeValue {
	list := make([]types.AttributeValue, 0, len(turns))
	for _, turn := range turns {
		list = append(list, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role": &types.AttributeValueMemberS{Value: turn.Role},
			"text": &types.AttributeValueMemberS{Value: turn.Text},
		}})
	}
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":        &types.AttributeValueMemberS{Value: skHistory},
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		"turns":     &types.AttributeValueMemberL{Value: list},
		"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.now().Add(conversationTTL).Unix())},
	}
}

func itemToTurns(item map[string]types.AttributeValue) ([]domain.ChatTurn, error) {
	v, ok := item["turns"]
	if !ok {
		return nil, nil
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute \"turns\" is not a list")
	}
	turns := make([]domain.ChatTurn, 0, len(list.Value))
	for _, entry := range list.Value {
		m, ok := entry.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: turn entry is not a map")
		}
		role, err := strAttr(m.Value, "role")
		if err != nil {
			return nil, err
		}
		text, err := strAttr(m.Value, "text")
		if err != nil {
			return nil, err
		}
		turns = append(turns, domain.ChatTurn{Role: role, Text: text})
	}
	return turns, nil
}
