package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/models"
)

// Delivery is one notification delivered to one recipient.
type Delivery struct {
	Recipient        models.User
	Notification     models.Notification
	UserNotification models.UserNotification
}

// Notifier pushes a delivery through an out-of-band channel. The in-app
// delivery row is already committed when Notify runs.
type Notifier interface {
	Notify(ctx context.Context, delivery Delivery) error
}

func logNotifyError(logger zerolog.Logger, err error, channel string, d Delivery) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", d.Notification.ID).
		Str("kind", string(d.Notification.Kind)).
		Str("recipient_id", d.Recipient.ID).
		Str("channel", channel).
		Msg("failed to deliver notification")
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
