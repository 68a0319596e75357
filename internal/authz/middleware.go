package authz

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/models"
)

// Directory loads users by ID.
type Directory interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
}

// RequireUser loads the token subject from the directory and rejects users
// that may no longer sign in. The token's status claim is not trusted for
// authorization: approval decisions always see the current record.
func RequireUser(dir Directory, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromRequest(r)
			if !ok {
				http.Error(w, "Missing user context", http.StatusUnauthorized)
				return
			}
			user, err := dir.GetUserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					http.Error(w, "Unknown user", http.StatusUnauthorized)
					return
				}
				logger.Error().Err(err).Str("user_id", userID).Msg("failed to load acting user")
				http.Error(w, "Failed to load user", http.StatusInternalServerError)
				return
			}
			if claimed, ok := StatusFromRequest(r); ok && claimed != user.Status {
				logger.Debug().Str("user_id", user.ID).Str("token_status", string(claimed)).Str("status", string(user.Status)).Msg("user status changed since token was issued")
			}
			if !user.Status.CanSignIn() {
				http.Error(w, "Account disabled", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
