package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
	"github.com/takaful/backoffice-api/internal/temporal"
)

// memEvents follows the status bookkeeping of the SQL outbox. now stands in
// for the database clock.
type memEvents struct {
	mu     sync.Mutex
	now    time.Time
	events []models.Event
}

func (m *memEvents) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *memEvents) ClaimPending(ctx context.Context, limit int, retryDelay repository.RetryDelayFunc, handle func(context.Context, models.Event) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.events {
		if n >= limit {
			break
		}
		evt := &m.events[i]
		if evt.Status != models.EventStatusPending || evt.NextAttemptAt.After(m.now) {
			continue
		}
		evt.Attempts++
		if err := handle(ctx, *evt); err != nil {
			msg := err.Error()
			evt.LastError = &msg
			evt.NextAttemptAt = m.now.Add(retryDelay(evt.Attempts))
			continue
		}
		evt.Status = models.EventStatusDispatched
		evt.LastError = nil
		n++
	}
	return n, nil
}

func pendingEvent(id string, state int) models.Event {
	actor := "u-actor"
	return models.Event{
		ID:          id,
		Type:        models.EventCertificateStateReached,
		AggregateID: "cert-1",
		State:       &state,
		ActorID:     &actor,
		Status:      models.EventStatusPending,
	}
}

func newRun(id string) *mocks.WorkflowRun {
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(id).Maybe()
	run.On("GetRunID").Return("run-" + id).Maybe()
	return run
}

func newTestWorker(events *memEvents, starter WorkflowStarter) *Worker {
	return NewWorker(WorkerConfig{
		Events:       events,
		Starter:      starter,
		BatchSize:    10,
		PollInterval: time.Second,
		MaxBackoff:   time.Minute,
		Logger:       zerolog.Nop(),
	})
}

func TestRunOnceStartsOneWorkflowPerEvent(t *testing.T) {
	events := &memEvents{events: []models.Event{pendingEvent("evt-1", 0), pendingEvent("evt-2", 1)}}
	starter := &mocks.Client{}

	var started []client.StartWorkflowOptions
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			started = append(started, args.Get(1).(client.StartWorkflowOptions))
		}).
		Return(newRun("wf"), nil)

	n, err := newTestWorker(events, starter).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, started, 2)
	assert.Equal(t, "backoffice-notify-evt-1", started[0].ID)
	assert.Equal(t, temporal.TaskQueueName, started[0].TaskQueue)
	assert.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE, started[0].WorkflowIDReusePolicy)
	assert.Equal(t, "backoffice-notify-evt-2", started[1].ID)

	for _, evt := range events.events {
		assert.Equal(t, models.EventStatusDispatched, evt.Status)
	}
	starter.AssertExpectations(t)
}

func TestRunOncePassesEventAsWorkflowInput(t *testing.T) {
	events := &memEvents{events: []models.Event{pendingEvent("evt-1", 2)}}
	starter := &mocks.Client{}

	var params temporal.NotificationParams
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			params = args.Get(3).(temporal.NotificationParams)
		}).
		Return(newRun("wf"), nil)

	_, err := newTestWorker(events, starter).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "evt-1", params.EventID)
	assert.Equal(t, "cert-1", params.AggregateID)
	require.NotNil(t, params.Status)
	assert.Equal(t, 2, *params.Status)
	assert.Equal(t, "u-actor", params.ActorID)
}

func TestRunOnceTreatsAlreadyStartedAsRelayed(t *testing.T) {
	events := &memEvents{events: []models.Event{pendingEvent("evt-1", 0)}}
	starter := &mocks.Client{}
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-1"))

	n, err := newTestWorker(events, starter).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.EventStatusDispatched, events.events[0].Status)
}

func TestRunOnceBacksOffFailedEvents(t *testing.T) {
	events := &memEvents{events: []models.Event{pendingEvent("evt-1", 0)}}
	starter := &mocks.Client{}
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("temporal unavailable"))

	w := newTestWorker(events, starter)

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.EventStatusPending, events.events[0].Status)
	require.NotNil(t, events.events[0].LastError)
	assert.Equal(t, "temporal unavailable", *events.events[0].LastError)

	// Not due yet.
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	starter.AssertNumberOfCalls(t, "ExecuteWorkflow", 1)

	events.advance(time.Second)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	starter.AssertNumberOfCalls(t, "ExecuteWorkflow", 2)
	assert.Equal(t, 2, events.events[0].Attempts)
	assert.Equal(t, events.now.Add(2*time.Second), events.events[0].NextAttemptAt)
}

func TestRunOnceRelaysAfterLongOutage(t *testing.T) {
	events := &memEvents{events: []models.Event{pendingEvent("evt-1", 0)}}
	failing := &mocks.Client{}
	failing.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("temporal unavailable"))

	down := newTestWorker(events, failing)
	for i := 0; i < 50; i++ {
		_, err := down.RunOnce(context.Background())
		require.NoError(t, err)
		events.advance(time.Minute)
	}
	failing.AssertNumberOfCalls(t, "ExecuteWorkflow", 50)
	assert.Equal(t, models.EventStatusPending, events.events[0].Status)

	working := &mocks.Client{}
	working.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(newRun("wf"), nil)

	n, err := newTestWorker(events, working).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.EventStatusDispatched, events.events[0].Status)
	assert.Equal(t, 51, events.events[0].Attempts)
}

func TestRetryDelayDoublesUpToMaxBackoff(t *testing.T) {
	w := newTestWorker(&memEvents{}, &mocks.Client{})

	assert.Equal(t, time.Second, w.RetryDelay(1))
	assert.Equal(t, 2*time.Second, w.RetryDelay(2))
	assert.Equal(t, 32*time.Second, w.RetryDelay(6))
	assert.Equal(t, time.Minute, w.RetryDelay(7))
	assert.Equal(t, time.Minute, w.RetryDelay(1000))
}

func TestStartStopsWithContext(t *testing.T) {
	events := &memEvents{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestWorker(events, &mocks.Client{}).Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
