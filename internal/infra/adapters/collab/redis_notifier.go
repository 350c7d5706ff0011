package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/infra/redis"
)

var _ adapter.Notifier = (*RedisNotifier)(nil)

// RedisNotifier publishes notification events on a Redis channel for the
// notification service to fan out. Publish failures are logged and dropped;
// notifications never block or fail the settlement that triggered them.
type RedisNotifier struct {
	client  redis.RedisClient
	channel string
	log     *zerolog.Logger
}

func NewRedisNotifier(client redis.RedisClient, channel string, logger *zerolog.Logger) *RedisNotifier {
	nl := logger.With().Str("component", "RedisNotifier").Logger()
	return &RedisNotifier{client: client, channel: channel, log: &nl}
}

type notifyEvent struct {
	Type      string                 `json:"type"`
	UserID    string                 `json:"userId"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (n *RedisNotifier) publish(ctx context.Context, ev notifyEvent) {
	ev.Timestamp = time.Now().UTC()
	b, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Str("type", ev.Type).Msg("marshal notification")
		return
	}
	if err := n.client.Publish(ctx, n.channel, b); err != nil {
		n.log.Warn().Err(err).Str("type", ev.Type).Msg("publish notification failed")
	}
}

func (n *RedisNotifier) CoinsPurchased(ctx context.Context, userID string, coins int64, packageLabel string) {
	n.publish(ctx, notifyEvent{
		Type:   "coins_purchased",
		UserID: userID,
		Data:   map[string]interface{}{"coins": coins, "package": packageLabel},
	})
}

func (n *RedisNotifier) TipReceived(ctx context.Context, creatorID, fromUserID string, coins int64) {
	n.publish(ctx, notifyEvent{
		Type:   "tip_received",
		UserID: creatorID,
		Data:   map[string]interface{}{"from": fromUserID, "coins": coins},
	})
}

func (n *RedisNotifier) PayoutDecided(ctx context.Context, creatorID, payoutID string, approved bool, reason string) {
	data := map[string]interface{}{"payoutId": payoutID, "approved": approved}
	if reason != "" {
		data["reason"] = reason
	}
	n.publish(ctx, notifyEvent{Type: "payout_decided", UserID: creatorID, Data: data})
}
