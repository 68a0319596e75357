package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/apperr"
)

var validate = validator.New()

// validationMessage names the first failing field of a validator error.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return strings.ToLower(fe.Field()) + " failed " + fe.Tag()
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps an apperr kind to its HTTP status. Errors without a kind
// are logged and reported as a generic failure.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error, fallback string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindUnknown {
		writeJSON(w, appErr.Kind.HTTPStatus(), errorResponse{Error: appErr.Message, Kind: appErr.Kind.String()})
		return
	}
	logger.Error().Err(err).Msg(fallback)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fallback})
}

// validID rejects path IDs that cannot name a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
