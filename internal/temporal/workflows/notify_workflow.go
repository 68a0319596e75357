package workflows

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/notification"
	"github.com/takaful/backoffice-api/internal/temporal"
	"github.com/takaful/backoffice-api/internal/temporal/activities"
)

// NotificationWorkflow delivers the notification described by one outbox
// event. Activities are retried until they succeed or hit a non-retryable
// error, which gives at-least-once delivery.
func NotificationWorkflow(ctx workflow.Context, params temporal.NotificationParams) (notification.DispatchResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        0, // unlimited
			NonRetryableErrorTypes: []string{activities.ErrTypeInvalidEvent},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting notification workflow", "EventID", params.EventID, "Type", string(params.Type))

	var a *activities.Activities
	var result notification.DispatchResult

	var err error
	switch params.Type {
	case models.EventCertificateStateReached:
		err = workflow.ExecuteActivity(ctx, a.DispatchCertificateActivity, params).Get(ctx, &result)
	case models.EventUserRegistered:
		err = workflow.ExecuteActivity(ctx, a.NotifyUserRegisteredActivity, params).Get(ctx, &result)
	default:
		return result, sdktemporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unsupported event type %q", params.Type), activities.ErrTypeInvalidEvent, nil)
	}
	if err != nil {
		logger.Error("Notification workflow failed.", "EventID", params.EventID, "error", err)
		return result, err
	}

	logger.Info("Notification workflow completed.", "EventID", params.EventID, "NotificationID", result.NotificationID, "Recipients", len(result.Recipients))
	return result, nil
}
