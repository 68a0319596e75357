package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/authz"
	"github.com/takaful/backoffice-api/internal/certificate"
	"github.com/takaful/backoffice-api/internal/config"
	"github.com/takaful/backoffice-api/internal/handlers"
	"github.com/takaful/backoffice-api/internal/middleware"
	"github.com/takaful/backoffice-api/internal/migration"
	"github.com/takaful/backoffice-api/internal/notification"
	"github.com/takaful/backoffice-api/internal/repository"
	"github.com/takaful/backoffice-api/internal/routes"
	"github.com/takaful/backoffice-api/internal/temporal"
	"github.com/takaful/backoffice-api/internal/temporal/activities"
	"github.com/takaful/backoffice-api/internal/temporal/workflows"
	outbox "github.com/takaful/backoffice-api/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	redisClient    *redis.Client
	logger         zerolog.Logger

	users         repository.UserRepository
	offices       repository.OfficeRepository
	certs         repository.CertificateRepository
	events        repository.EventRepository
	certificates  certificate.Service
	notifications notification.Service
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.RunMigrations(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewTemporalAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
	}

	if cfg.Redis.Enabled {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer app.redisClient.Close()
		if err := app.redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable; realtime broadcasts will fail until it recovers")
		}
	}

	app.initServices()

	// Start the Temporal worker and the outbox relay.
	temporalWorker := app.startTemporalWorker()
	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := app.startRelay(relayCtx)

	// Initialize the HTTP router and middleware.
	router := app.initRouter()
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler)

	logger.Info().Msg("Stopping outbox relay...")
	stopRelay()
	<-relayDone

	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Application terminated.")
}

func (app *application) initServices() {
	app.users = repository.NewUserRepository(app.db)
	app.offices = repository.NewOfficeRepository(app.db)
	app.certs = repository.NewCertificateRepository(app.db)
	app.events = repository.NewEventRepository(app.db)

	officeID := app.config.Workflow.MembershipOfficeID

	app.certificates = certificate.NewService(app.certs, app.users, app.offices, certificate.Options{
		MembershipOfficeID: officeID,
	}, app.logger)

	var notifiers []notification.Notifier
	if app.redisClient != nil {
		notifiers = append(notifiers, notification.NewRedisBroadcaster(app.redisClient, app.logger))
	}
	if app.config.Email.Enabled {
		emailNotifier, err := notification.NewEmailNotifier(app.config.Email, app.logger)
		if err != nil {
			app.logger.Fatal().Err(err).Msg("failed to configure email notifier")
		}
		notifiers = append(notifiers, emailNotifier)
	}

	app.notifications = notification.NewService(
		repository.NewNotificationRepository(app.db),
		app.users,
		app.offices,
		app.certs,
		notification.Options{MembershipOfficeID: officeID, AppURL: app.config.Workflow.AppURL},
		app.logger,
		notifiers...,
	)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter() http.Handler {
	authHandler := handlers.NewAuthHandler(app.users, app.config, app.logger)
	certificateHandler := handlers.NewCertificateHandler(app.certificates, app.logger)
	notificationHandler := handlers.NewNotificationHandler(app.notifications, app.logger)

	return routes.NewRouter(handlers.HealthCheck(app.db), authHandler, authz.RequireUser(app.users, app.logger), certificateHandler, notificationHandler)
}

func (app *application) startTemporalWorker() worker.Worker {
	w := worker.New(app.temporalClient, app.config.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.NotificationWorkflow)
	w.RegisterActivity(&activities.Activities{Notifications: app.notifications})

	if err := w.Start(); err != nil {
		app.logger.Fatal().Err(err).Msg("Unable to start Temporal worker")
	}
	app.logger.Info().Str("task_queue", app.config.Temporal.TaskQueue).Msg("Temporal worker started")
	return w
}

func (app *application) startRelay(ctx context.Context) <-chan struct{} {
	relay := outbox.NewWorker(outbox.WorkerConfig{
		Events:       app.events,
		Starter:      app.temporalClient,
		TaskQueue:    app.config.Temporal.TaskQueue,
		PollInterval: app.config.Relay.PollInterval,
		BatchSize:    app.config.Relay.BatchSize,
		MaxBackoff:   app.config.Relay.MaxBackoff,
		Logger:       app.logger,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error().Err(err).Msg("outbox relay stopped unexpectedly")
		}
	}()
	return done
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler) {
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		app.logger.Error().Err(err).Msg("Server error occurred")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		app.logger.Info().Msg("HTTP server shutdown complete.")
	}
}
