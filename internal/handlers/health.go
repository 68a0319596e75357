package handlers

import (
	"context"
	"net/http"
	"time"
)

const serviceName = "backoffice-api"

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthCheck reports liveness and whether the database answers. An
// unreachable database turns the response into a 503.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		response := map[string]string{"service": serviceName, "status": "ok", "database": "up"}
		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			response["status"] = "degraded"
			response["database"] = "down"
		}
		writeJSON(w, status, response)
	}
}
