package models

import "time"

type EventType string

const (
	EventCertificateStateReached EventType = "certificate.state_reached"
	EventUserRegistered          EventType = "user.registered"
)

type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusDispatched EventStatus = "dispatched"
)

// Event is an outbox row written in the same transaction as the change it
// describes and relayed to the notification workflow afterwards.
type Event struct {
	ID            string      `json:"id" db:"id"`
	Type          EventType   `json:"event_type" db:"event_type"`
	AggregateID   string      `json:"aggregate_id" db:"aggregate_id"`
	State         *int        `json:"state,omitempty" db:"state"`
	ActorID       *string     `json:"actor_id,omitempty" db:"actor_id"`
	Status        EventStatus `json:"status" db:"status"`
	Attempts      int         `json:"attempts" db:"attempts"`
	LastError     *string     `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt time.Time   `json:"next_attempt_at" db:"next_attempt_at"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	DispatchedAt  *time.Time  `json:"dispatched_at,omitempty" db:"dispatched_at"`
}
