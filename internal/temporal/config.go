package temporal

import (
	"time"

	"github.com/takaful/backoffice-api/internal/models"
)

// TaskQueueName is the default task queue for notification workflows.
const TaskQueueName = "BACKOFFICE_NOTIFICATIONS"

// NotificationWorkflowIDPrefix prefixes the ID of every notification workflow.
// The rest of the ID is the outbox event ID, so relaying an event twice
// never starts a second run.
const NotificationWorkflowIDPrefix = "backoffice-notify-"

// DefaultActivityTimeout bounds a single dispatch attempt.
const DefaultActivityTimeout = 30 * time.Second

// NotificationParams is the input of NotificationWorkflow, built from one
// outbox event.
type NotificationParams struct {
	EventID     string
	Type        models.EventType
	AggregateID string
	Status      *int
	ActorID     string
}

func NotificationWorkflowID(eventID string) string {
	return NotificationWorkflowIDPrefix + eventID
}

// ParamsFromEvent converts an outbox event into workflow input.
func ParamsFromEvent(evt models.Event) NotificationParams {
	params := NotificationParams{
		EventID:     evt.ID,
		Type:        evt.Type,
		AggregateID: evt.AggregateID,
		Status:      evt.State,
	}
	if evt.ActorID != nil {
		params.ActorID = *evt.ActorID
	}
	return params
}
