package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/models"
)

// BroadcastEvent names the realtime event pushed for each delivery.
const BroadcastEvent = "notification.created"

// RecipientChannel is the pub/sub channel a recipient's clients listen on.
func RecipientChannel(userID string) string {
	return "user." + userID
}

type BroadcastMessage struct {
	Event          string                  `json:"event"`
	RecipientID    string                  `json:"recipient_id"`
	NotificationID string                  `json:"notification_id"`
	Kind           models.NotificationKind `json:"kind"`
	Title          string                  `json:"title"`
	Message        string                  `json:"message"`
	Link           string                  `json:"link"`
	Timestamp      time.Time               `json:"timestamp"`
}

// RedisBroadcaster publishes each delivery on the recipient's channel so open
// sessions can refresh their unread badge.
type RedisBroadcaster struct {
	rdb    redis.UniversalClient
	logger zerolog.Logger
}

func NewRedisBroadcaster(rdb redis.UniversalClient, logger zerolog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		rdb:    rdb,
		logger: logger.With().Str("notifier", "redis").Logger(),
	}
}

func (b *RedisBroadcaster) Notify(ctx context.Context, d Delivery) error {
	msg := BroadcastMessage{
		Event:          BroadcastEvent,
		RecipientID:    d.Recipient.ID,
		NotificationID: d.Notification.ID,
		Kind:           d.Notification.Kind,
		Title:          d.Notification.Title,
		Message:        d.Notification.Message,
		Link:           d.Notification.Link,
		Timestamp:      time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}

	channel := RecipientChannel(d.Recipient.ID)
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}

	b.logger.Debug().Str("channel", channel).Str("notification_id", d.Notification.ID).Msg("broadcast published")
	return nil
}

func (b *RedisBroadcaster) String() string {
	return "RedisBroadcaster"
}
