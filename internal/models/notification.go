package models

import (
	"encoding/json"
	"time"
)

type NotificationKind string

const (
	NotificationKindCertificateRequest  NotificationKind = "certificate_request"
	NotificationKindCertificateApproval NotificationKind = "certificate_approval"
	NotificationKindUserRegistered      NotificationKind = "user_registered"
)

type Notification struct {
	ID        string           `json:"id" db:"id"`
	Kind      NotificationKind `json:"kind" db:"kind"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Link      string           `json:"link" db:"link"`
	Data      json.RawMessage  `json:"data,omitempty" db:"data"`
	CreatedBy *string          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// UserNotification is the delivery of a Notification to one recipient.
type UserNotification struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	NotificationID string     `json:"notification_id" db:"notification_id"`
	Read           bool       `json:"read" db:"read"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

type FeedItem struct {
	UserNotification
	Notification Notification `json:"notification"`
}

type Feed struct {
	UnreadCount   int        `json:"unread_count"`
	Notifications []FeedItem `json:"notifications"`
}
