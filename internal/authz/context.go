package authz

import (
	"context"
	"net/http"

	"github.com/takaful/backoffice-api/internal/models"
)

type contextKey string

const (
	userIDKey     contextKey = "user_id"
	userStatusKey contextKey = "user_status"
	userKey       contextKey = "user"
)

// WithIdentity stores the token subject and its status claim on the context.
func WithIdentity(ctx context.Context, userID string, status models.UserStatus) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	if status != "" {
		ctx = context.WithValue(ctx, userStatusKey, status)
	}
	return ctx
}

// WithUser stores the loaded acting user on the context.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func StatusFromRequest(r *http.Request) (models.UserStatus, bool) {
	status, ok := r.Context().Value(userStatusKey).(models.UserStatus)
	if !ok || !models.IsValidUserStatus(status) {
		return "", false
	}
	return status, true
}

// UserFromRequest returns the acting user loaded by RequireUser.
func UserFromRequest(r *http.Request) (models.User, bool) {
	user, ok := r.Context().Value(userKey).(models.User)
	if !ok || user.ID == "" {
		return models.User{}, false
	}
	return user, true
}
