package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/takaful/backoffice-api/internal/models"
)

// EventRepository is the outbox of state-change facts waiting to be relayed.
type EventRepository interface {
	// ClaimPending locks up to limit pending events that are due, skipping rows
	// claimed by another relay, and hands each to handle. Events handled
	// without error are marked dispatched. A failure bumps the attempt counter
	// and keeps the event pending until retryDelay(attempts) has passed.
	ClaimPending(ctx context.Context, limit int, retryDelay RetryDelayFunc, handle func(context.Context, models.Event) error) (int, error)
}

// RetryDelayFunc returns how long an event waits after its n-th failed relay.
type RetryDelayFunc func(attempts int) time.Duration

type eventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

const eventColumns = `id, event_type, aggregate_id, state, actor_id, status, attempts, last_error, next_attempt_at, created_at, dispatched_at`

// insertEvent records an outbox row on the caller's transaction.
func insertEvent(ctx context.Context, tx DBTX, eventType models.EventType, aggregateID string, state *int, actorID *string) (models.Event, error) {
	const query = `
		INSERT INTO membership.events (event_type, aggregate_id, state, actor_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + eventColumns

	var st interface{}
	if state != nil {
		st = *state
	}
	evt, err := scanEvent(tx.QueryRowContext(ctx, query, eventType, aggregateID, st, nullString(actorID)))
	if err != nil {
		return models.Event{}, errors.Wrapf(err, "failed to record %s event", eventType)
	}
	return evt, nil
}

func (r *eventRepository) ClaimPending(ctx context.Context, limit int, retryDelay RetryDelayFunc, handle func(context.Context, models.Event) error) (int, error) {
	if limit <= 0 {
		limit = 10
	}
	if retryDelay == nil {
		retryDelay = func(int) time.Duration { return 0 }
	}

	dispatched := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const query = `
			SELECT ` + eventColumns + `
			FROM membership.events
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`
		rows, err := tx.QueryContext(ctx, query, limit)
		if err != nil {
			return errors.Wrap(err, "failed to fetch pending events")
		}
		var events []models.Event
		for rows.Next() {
			evt, err := scanEvent(rows)
			if err != nil {
				rows.Close()
				return errors.Wrap(err, "failed to scan event")
			}
			events = append(events, evt)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, evt := range events {
			if handleErr := handle(ctx, evt); handleErr != nil {
				delay := retryDelay(evt.Attempts + 1)
				_, err := tx.ExecContext(ctx, `
					UPDATE membership.events
					SET attempts = attempts + 1, last_error = $2, next_attempt_at = NOW() + make_interval(secs => $3)
					WHERE id = $1
				`, evt.ID, handleErr.Error(), delay.Seconds())
				if err != nil {
					return errors.Wrap(err, "failed to record event failure")
				}
				continue
			}

			_, err := tx.ExecContext(ctx, `
				UPDATE membership.events
				SET status = 'dispatched', attempts = attempts + 1, last_error = NULL, dispatched_at = NOW()
				WHERE id = $1
			`, evt.ID)
			if err != nil {
				return errors.Wrap(err, "failed to mark event dispatched")
			}
			dispatched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return dispatched, nil
}

func scanEvent(scanner rowScanner) (models.Event, error) {
	var (
		evt       models.Event
		state     sql.NullInt64
		actorID   sql.NullString
		lastError sql.NullString
		sentAt    sql.NullTime
	)
	if err := scanner.Scan(
		&evt.ID,
		&evt.Type,
		&evt.AggregateID,
		&state,
		&actorID,
		&evt.Status,
		&evt.Attempts,
		&lastError,
		&evt.NextAttemptAt,
		&evt.CreatedAt,
		&sentAt,
	); err != nil {
		return models.Event{}, err
	}
	if state.Valid {
		v := int(state.Int64)
		evt.State = &v
	}
	evt.ActorID = stringPtr(actorID)
	evt.LastError = stringPtr(lastError)
	if sentAt.Valid {
		t := sentAt.Time
		evt.DispatchedAt = &t
	}
	return evt, nil
}
