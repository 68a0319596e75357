package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/authz"
	"github.com/takaful/backoffice-api/internal/models"
)

const defaultFeedLimit = 25

// NotificationFeed is the read side of the notification service.
type NotificationFeed interface {
	ListForRecipient(ctx context.Context, recipientID string, limit int) (models.Feed, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) (models.UserNotification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

type NotificationHandler struct {
	service NotificationFeed
	logger  zerolog.Logger
}

func NewNotificationHandler(service NotificationFeed, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	limit := defaultFeedLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	feed, err := h.service.ListForRecipient(r.Context(), user.ID, limit)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list notifications")
		return
	}
	if feed.Notifications == nil {
		feed.Notifications = []models.FeedItem{}
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	notifID := strings.TrimSpace(mux.Vars(r)["notificationID"])
	if notifID == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return
	}
	if !validID(notifID) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	un, err := h.service.MarkRead(r.Context(), user.ID, notifID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update notification")
		return
	}
	writeJSON(w, http.StatusOK, un)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
