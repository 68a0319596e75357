package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/takaful/backoffice-api/internal/handlers"
)

// NewRouter sets up the API routes. requireUser runs after the JWT check and
// loads the acting user for every protected route.
func NewRouter(
	health http.HandlerFunc,
	auth *handlers.AuthHandler,
	requireUser func(http.Handler) http.Handler,
	certificates *handlers.CertificateHandler,
	notifications *handlers.NotificationHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", health).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)
	api.Use(requireUser)

	api.HandleFunc("/certificates", certificates.Submit).Methods(http.MethodPost)
	api.HandleFunc("/certificates", certificates.ListMine).Methods(http.MethodGet)
	api.HandleFunc("/certificates/active", certificates.HasActive).Methods(http.MethodGet)
	api.HandleFunc("/certificates/{certificateID}", certificates.Get).Methods(http.MethodGet)
	api.HandleFunc("/certificates/{certificateID}/approve", certificates.Approve).Methods(http.MethodPost)

	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", notifications.MarkAllRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{notificationID}/read", notifications.MarkRead).Methods(http.MethodPost)

	return router
}
