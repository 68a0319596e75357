package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/notification"
	"github.com/takaful/backoffice-api/internal/temporal"
)

// ErrTypeInvalidEvent marks events the activities can never process.
const ErrTypeInvalidEvent = "InvalidEvent"

type Activities struct {
	Notifications notification.Service
}

// DispatchCertificateActivity delivers the notification for a certificate
// state change. It is safe to retry: the dispatcher upserts every row it writes.
func (a *Activities) DispatchCertificateActivity(ctx context.Context, params temporal.NotificationParams) (notification.DispatchResult, error) {
	logger := activity.GetLogger(ctx)
	if params.Status == nil {
		return notification.DispatchResult{}, sdktemporal.NewNonRetryableApplicationError(
			fmt.Sprintf("event %s has no certificate status", params.EventID), ErrTypeInvalidEvent, nil)
	}
	status := models.CertificateStatus(*params.Status)
	if !status.IsValid() {
		return notification.DispatchResult{}, sdktemporal.NewNonRetryableApplicationError(
			fmt.Sprintf("event %s has unknown certificate status %d", params.EventID, *params.Status), ErrTypeInvalidEvent, nil)
	}

	logger.Info("Dispatching certificate notification", "eventID", params.EventID, "certificateID", params.AggregateID, "status", int(status))
	res, err := a.Notifications.Dispatch(ctx, models.StateReached{
		EventID:       params.EventID,
		CertificateID: params.AggregateID,
		Status:        status,
		ActorID:       params.ActorID,
	})
	if err != nil {
		logger.Error("Certificate notification failed", "eventID", params.EventID, "error", err)
		return notification.DispatchResult{}, err
	}
	return res, nil
}

func (a *Activities) NotifyUserRegisteredActivity(ctx context.Context, params temporal.NotificationParams) (notification.DispatchResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Dispatching registration notification", "eventID", params.EventID, "userID", params.AggregateID)

	res, err := a.Notifications.NotifyUserRegistered(ctx, params.AggregateID)
	if err != nil {
		logger.Error("Registration notification failed", "eventID", params.EventID, "error", err)
		return notification.DispatchResult{}, err
	}
	return res, nil
}
