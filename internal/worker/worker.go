package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
	"github.com/takaful/backoffice-api/internal/temporal"
	"github.com/takaful/backoffice-api/internal/temporal/workflows"
)

// WorkflowStarter is the part of client.Client the relay uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

type WorkerConfig struct {
	Events       repository.EventRepository
	Starter      WorkflowStarter
	TaskQueue    string
	PollInterval time.Duration
	BatchSize    int
	// MaxBackoff caps the wait between relay attempts of a failing event.
	MaxBackoff   time.Duration
	Logger       zerolog.Logger
}

// Worker relays outbox events to the notification workflow. Events are
// claimed with SKIP LOCKED, so several API replicas can run a Worker each.
type Worker struct {
	cfg    WorkerConfig
	logger zerolog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = temporal.TaskQueueName
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return &Worker{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "outbox_relay").Logger(),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Msg("relay started, polling for events")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("error relaying events")
			}
		}
	}
}

// RunOnce relays one batch of pending events and returns how many were handed
// to Temporal.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	n, err := w.cfg.Events.ClaimPending(ctx, w.cfg.BatchSize, w.RetryDelay, w.relay)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Debug().Int("events", n).Msg("events relayed")
	}
	return n, nil
}

// RetryDelay doubles the poll interval for every failed attempt, up to
// MaxBackoff. Events are never given up on.
func (w *Worker) RetryDelay(attempts int) time.Duration {
	delay := w.cfg.PollInterval
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return delay
}

func (w *Worker) relay(ctx context.Context, evt models.Event) error {
	opts := client.StartWorkflowOptions{
		ID:                    temporal.NotificationWorkflowID(evt.ID),
		TaskQueue:             w.cfg.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}

	run, err := w.cfg.Starter.ExecuteWorkflow(ctx, opts, workflows.NotificationWorkflow, temporal.ParamsFromEvent(evt))
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			w.logger.Debug().Str("event_id", evt.ID).Msg("workflow already started for event")
			return nil
		}
		w.logger.Warn().Err(err).Str("event_id", evt.ID).Int("attempts", evt.Attempts+1).Msg("failed to start notification workflow")
		return err
	}

	w.logger.Info().
		Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Msg("notification workflow started")
	return nil
}
