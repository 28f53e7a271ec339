package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skCounter = "COUNTER#"

	// rateWindow is the fixed span a counter accumulates over, measured
	// from the identity's first committed request.
	rateWindow = 24 * time.Hour
)

func ratePK(identity string) string {
	return "RATE#" + identity
}

// RateLimiter is a per-identity request counter with a fixed window
// anchored at the identity's first committed request.
// Enforcement is advisory: on any storage failure it fails open, preferring
// availability over strict quota accounting.
type RateLimiter struct {
	api       dynamodbAPI
	tableName string
	max       int
	now       func() time.Time
}

func NewRateLimiter(api dynamodbAPI, tableName string, max int) (*RateLimiter, error) {
	if err := validate(api, tableName); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, fmt.Errorf("repository: rate limit max must be positive, got %d", max)
	}
	return &RateLimiter{api: api, tableName: tableName, max: max, now: time.Now}, nil
}

// Max returns the configured per-window request cap.
func (l *RateLimiter) Max() int { return l.max }

// Admit reports whether the identity may make another request. Absent and
// expired counters mean a fresh window. Never blocks; fails open.
func (l *RateLimiter) Admit(ctx context.Context, identity string) bool {
	count, ok := l.count(ctx, identity)
	if !ok {
		return true
	}
	return count < int64(l.max)
}

// Commit records one completed request. The counter is created with a
// 24-hour expiry on first commit; later commits only increment, leaving the
// window anchored at the first request. The increment is a single atomic
// update, safe under concurrent requests from the same identity.
func (l *RateLimiter) Commit(ctx context.Context, identity string) {
	_, err := l.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(l.tableName),
		Key:              l.key(identity),
		UpdateExpression: aws.String("SET #ttl = if_not_exists(#ttl, :exp) ADD #c :one"),
		ExpressionAttributeNames: map[string]string{
			"#c":   "count",
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":exp": &types.AttributeValueMemberN{Value: strconv.FormatInt(l.now().Add(rateWindow).Unix(), 10)},
		},
	})
	if err != nil {
		slog.Warn("repository: rate counter commit dropped", "err", err)
	}
}

// Remaining returns how many requests the identity has left this window,
// floored at zero. Absent or unreadable counters count as zero used.
func (l *RateLimiter) Remaining(ctx context.Context, identity string) int {
	count, ok := l.count(ctx, identity)
	if !ok {
		return l.max
	}
	remaining := l.max - int(count)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// count returns the live counter value; ok is false when the counter is
// absent, expired, unreadable or the read fails.
func (l *RateLimiter) count(ctx context.Context, identity string) (int64, bool) {
	out, err := l.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.tableName),
		Key:            l.key(identity),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		slog.Warn("repository: rate counter read failed, failing open", "err", err)
		return 0, false
	}
	if out == nil || len(out.Item) == 0 {
		return 0, false
	}
	// A counter past its ttl is a fresh window even if DynamoDB has not
	// swept it yet.
	if ttl, err := intAttr(out.Item, "ttl"); err == nil && ttl <= l.now().Unix() {
		return 0, false
	}
	count, err := intAttr(out.Item, "count")
	if err != nil {
		slog.Warn("repository: rate counter unparseable, failing open", "err", err)
		return 0, false
	}
	return count, true
}

func (l *RateLimiter) key(identity string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ratePK(identity)},
		"SK": &types.AttributeValueMemberS{Value: skCounter},
	}
}
