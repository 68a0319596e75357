package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/takaful/backoffice-api/internal/models"
)

type NotificationRepository interface {
	// FindOrCreate returns the notification identified by (kind, link),
	// inserting it when absent. Content of an existing row is left untouched.
	FindOrCreate(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	// UpsertDelivery inserts an unread delivery for (userID, notificationID)
	// or resets an existing one to unread.
	UpsertDelivery(ctx context.Context, userID, notificationID string) (models.UserNotification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.FeedItem, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) (models.UserNotification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type notificationRepository struct {
	db *sql.DB
}

type CreateNotificationParams struct {
	Kind      models.NotificationKind
	Title     string
	Message   string
	Link      string
	Data      map[string]interface{}
	CreatedBy *string
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const (
	notificationColumns = `id, kind, title, message, link, data, created_by, created_at`
	deliveryColumns     = `id, user_id, notification_id, read, read_at, created_at, updated_at`
)

func (r *notificationRepository) FindOrCreate(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	const query = `
		INSERT INTO membership.notifications (kind, title, message, link, data, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, link) DO UPDATE SET kind = EXCLUDED.kind
		RETURNING ` + notificationColumns

	var data interface{}
	if len(params.Data) > 0 {
		bytes, err := json.Marshal(params.Data)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal data: %w", err)
		}
		data = bytes
	}

	row := r.db.QueryRowContext(ctx, query,
		params.Kind,
		strings.TrimSpace(params.Title),
		strings.TrimSpace(params.Message),
		strings.TrimSpace(params.Link),
		data,
		nullString(params.CreatedBy),
	)
	return scanNotification(row)
}

func (r *notificationRepository) UpsertDelivery(ctx context.Context, userID, notificationID string) (models.UserNotification, error) {
	const query = `
		INSERT INTO membership.user_notifications (user_id, notification_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, notification_id)
		DO UPDATE SET read = FALSE, read_at = NULL, updated_at = NOW()
		RETURNING ` + deliveryColumns
	return scanDelivery(r.db.QueryRowContext(ctx, query, userID, notificationID))
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.FeedItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	const query = `
		SELECT un.id, un.user_id, un.notification_id, un.read, un.read_at, un.created_at, un.updated_at,
		       n.id, n.kind, n.title, n.message, n.link, n.data, n.created_by, n.created_at
		FROM membership.user_notifications un
		JOIN membership.notifications n ON n.id = un.notification_id
		WHERE un.user_id = $1
		ORDER BY un.updated_at DESC, un.id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.FeedItem{}
	for rows.Next() {
		var (
			item      models.FeedItem
			readAt    sql.NullTime
			data      []byte
			createdBy sql.NullString
		)
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.NotificationID,
			&item.Read,
			&readAt,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Notification.ID,
			&item.Notification.Kind,
			&item.Notification.Title,
			&item.Notification.Message,
			&item.Notification.Link,
			&data,
			&createdBy,
			&item.Notification.CreatedAt,
		); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t := readAt.Time
			item.ReadAt = &t
		}
		if len(data) > 0 {
			item.Notification.Data = data
		}
		item.Notification.CreatedBy = stringPtr(createdBy)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM membership.user_notifications WHERE user_id = $1 AND read = FALSE`
	var n int
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)).Scan(&n)
	return n, err
}

// MarkRead keeps the first read_at when the delivery was already read.
func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID string) (models.UserNotification, error) {
	const query = `
		UPDATE membership.user_notifications
		SET read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE user_id = $1 AND notification_id = $2
		RETURNING ` + deliveryColumns
	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID), strings.TrimSpace(notificationID))
	return scanDelivery(row)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `
		UPDATE membership.user_notifications
		SET read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND read = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, strings.TrimSpace(userID))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanNotification(scanner rowScanner) (models.Notification, error) {
	var (
		notif     models.Notification
		dataRaw   []byte
		createdBy sql.NullString
	)

	if err := scanner.Scan(
		&notif.ID,
		&notif.Kind,
		&notif.Title,
		&notif.Message,
		&notif.Link,
		&dataRaw,
		&createdBy,
		&notif.CreatedAt,
	); err != nil {
		return models.Notification{}, err
	}

	if len(dataRaw) > 0 {
		notif.Data = dataRaw
	}
	notif.CreatedBy = stringPtr(createdBy)

	return notif, nil
}

func scanDelivery(scanner rowScanner) (models.UserNotification, error) {
	var (
		un     models.UserNotification
		readAt sql.NullTime
	)
	if err := scanner.Scan(
		&un.ID,
		&un.UserID,
		&un.NotificationID,
		&un.Read,
		&readAt,
		&un.CreatedAt,
		&un.UpdatedAt,
	); err != nil {
		return models.UserNotification{}, err
	}
	if readAt.Valid {
		t := readAt.Time
		un.ReadAt = &t
	}
	return un, nil
}
