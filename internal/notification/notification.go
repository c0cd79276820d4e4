package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KindDepositApproved  = "deposit_approved"
	KindDepositRejected  = "deposit_rejected"
	KindPrizeWon         = "prize_won"
	KindCommissionEarned = "commission_earned"
)

// channelPrefix is the Redis pub/sub channel prefix; the account id is appended.
const channelPrefix = "notifications:"

// Message describes a notification payload.
type Message struct {
	Kind   string         `json:"kind"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

// Dispatcher delivers notifications to an account. Delivery is best effort; callers log
// failures and carry on.
type Dispatcher interface {
	Notify(ctx context.Context, accountID string, message Message) error
}

// LoggerDispatcher writes notifications to the structured logger.
type LoggerDispatcher struct {
	logger *slog.Logger
}

// NewLoggerDispatcher constructs a logging dispatcher.
func NewLoggerDispatcher(logger *slog.Logger) *LoggerDispatcher {
	return &LoggerDispatcher{logger: logger}
}

// Notify writes the message to the structured logger.
func (n *LoggerDispatcher) Notify(_ context.Context, accountID string, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "account_id", accountID, "title", message.Title, "body", message.Body)
	return nil
}

// RedisDispatcher publishes JSON messages on notifications:<account id> for the realtime
// gateway to fan out to connected clients.
type RedisDispatcher struct {
	client *redis.Client
}

func NewRedisDispatcher(client *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{client: client}
}

func (n *RedisDispatcher) Notify(ctx context.Context, accountID string, message Message) error {
	if message.SentAt.IsZero() {
		message.SentAt = time.Now().UTC()
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, Channel(accountID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Channel names the pub/sub channel for an account.
func Channel(accountID string) string { return channelPrefix + accountID }

// Fanout sends every message to all dispatchers and returns the first error.
type Fanout []Dispatcher

func (f Fanout) Notify(ctx context.Context, accountID string, message Message) error {
	var first error
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Notify(ctx, accountID, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}
