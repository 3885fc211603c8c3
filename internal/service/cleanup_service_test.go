package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magiclink-auth/internal/queue"
)

type fakeCleanupQueue struct {
	handlers  map[string]queue.Handler
	schedules map[string]string // singleton key -> cron expression

	registerErr error
	scheduleErr error
}

func newFakeCleanupQueue() *fakeCleanupQueue {
	return &fakeCleanupQueue{
		handlers:  make(map[string]queue.Handler),
		schedules: make(map[string]string),
	}
}

func (f *fakeCleanupQueue) RegisterWorker(queueName string, handler queue.Handler) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	f.handlers[queueName] = handler
	return nil
}

func (f *fakeCleanupQueue) Schedule(_ context.Context, _ string, cronExpression string, _ string, singletonKey string, _ int) error {
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.schedules[singletonKey] = cronExpression
	return nil
}

type fakeTokenDeleter struct {
	deleted int64
	calls   int
	err     error
}

func (f *fakeTokenDeleter) DeleteExpired(_ context.Context) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

func TestCleanupService_StartRegistersWorkerAndSchedule(t *testing.T) {
	q := newFakeCleanupQueue()
	svc := NewCleanupService(q, &fakeTokenDeleter{}, "0 3 * * *", "UTC")

	require.NoError(t, svc.Start(context.Background()))

	assert.Contains(t, q.handlers, CleanupQueue)
	assert.Equal(t, "0 3 * * *", q.schedules["cleanup-tokens"])
}

func TestCleanupService_StartSurfacesScheduleError(t *testing.T) {
	q := newFakeCleanupQueue()
	q.scheduleErr = errors.New("bad cron expression")
	svc := NewCleanupService(q, &fakeTokenDeleter{}, "0 3 * * *", "UTC")

	assert.Error(t, svc.Start(context.Background()))
}

func TestCleanupService_RunDeletesExpiredTokens(t *testing.T) {
	q := newFakeCleanupQueue()
	tokens := &fakeTokenDeleter{deleted: 42}
	svc := NewCleanupService(q, tokens, "", "")

	require.NoError(t, svc.Start(context.Background()))

	handler := q.handlers[CleanupQueue]
	require.NotNil(t, handler)

	assert.NoError(t, handler(context.Background(), []queue.Job{{ID: "run-1"}}))
	assert.Equal(t, 1, tokens.calls)
}

func TestCleanupService_RunWithNothingToDeleteSucceeds(t *testing.T) {
	q := newFakeCleanupQueue()
	tokens := &fakeTokenDeleter{deleted: 0}
	svc := NewCleanupService(q, tokens, "", "")

	require.NoError(t, svc.Start(context.Background()))

	assert.NoError(t, q.handlers[CleanupQueue](context.Background(), []queue.Job{{ID: "run-1"}}))
}

func TestCleanupService_RunReturnsStorageErrorForRetry(t *testing.T) {
	q := newFakeCleanupQueue()
	tokens := &fakeTokenDeleter{err: errors.New("connection refused")}
	svc := NewCleanupService(q, tokens, "", "")

	require.NoError(t, svc.Start(context.Background()))

	assert.Error(t, q.handlers[CleanupQueue](context.Background(), []queue.Job{{ID: "run-1"}}))
}
