package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notePayload struct {
	Attempts int `json:"attempts"`
}

func TestClient_EnqueuePlainJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	mock.ExpectExec("INSERT INTO queue_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := c.Enqueue(context.Background(), "audit-logs", notePayload{Attempts: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestClient_EnqueueSingletonConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	// A singleton enqueue first retires any lapsed row for the key, then
	// inserts; zero rows inserted means a live singleton won the conflict.
	mock.ExpectExec("DELETE FROM queue_jobs").
		WithArgs("auth/rate-limit", "ip-user@example.com").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO queue_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err = c.Enqueue(context.Background(), "auth/rate-limit", notePayload{Attempts: 1},
		WithSingleton("ip-user@example.com", time.Hour))
	assert.ErrorIs(t, err, ErrJobExists)
}

func TestClient_EnqueueSingletonFreshWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	mock.ExpectExec("DELETE FROM queue_jobs").
		WithArgs("auth/rate-limit", "ip").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO queue_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := c.Enqueue(context.Background(), "auth/rate-limit", notePayload{Attempts: 1},
		WithSingleton("ip", time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestClient_IncrementCounter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)
	windowEnd := time.Now().Add(30 * time.Minute)

	t.Run("returns new count and window end", func(t *testing.T) {
		mock.ExpectQuery("UPDATE queue_jobs").
			WithArgs("auth/rate-limit", "ip", "attempts").
			WillReturnRows(pgxmock.NewRows([]string{"count", "singleton_until"}).
				AddRow(4, windowEnd))

		count, until, err := c.IncrementCounter(context.Background(), "auth/rate-limit", "ip", "attempts")
		require.NoError(t, err)
		assert.Equal(t, 4, count)
		assert.WithinDuration(t, windowEnd, until, time.Second)
	})

	t.Run("lapsed window", func(t *testing.T) {
		mock.ExpectQuery("UPDATE queue_jobs").
			WithArgs("auth/rate-limit", "ip", "attempts").
			WillReturnError(pgx.ErrNoRows)

		_, _, err := c.IncrementCounter(context.Background(), "auth/rate-limit", "ip", "attempts")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestClient_GetJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	t.Run("live singleton", func(t *testing.T) {
		until := time.Now().Add(time.Hour)
		mock.ExpectQuery("SELECT id, queue_name, payload").
			WithArgs("auth/rate-limit", "ip").
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "queue_name", "payload", "state", "singleton_key",
				"singleton_until", "retry_count", "retry_limit", "created_at",
			}).AddRow("job-1", "auth/rate-limit", []byte(`{"attempts":2}`), StateCreated,
				"ip", &until, 0, 3, time.Now()))

		job, err := c.GetJob(context.Background(), "auth/rate-limit", "ip")
		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, "ip", job.SingletonKey)
		assert.False(t, job.SingletonUntil.IsZero())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, queue_name, payload").
			WithArgs("auth/rate-limit", "gone").
			WillReturnError(pgx.ErrNoRows)

		_, err := c.GetJob(context.Background(), "auth/rate-limit", "gone")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestClient_ScheduleValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	err = c.Schedule(context.Background(), "auth/cleanup-tokens", "not a cron", "UTC", "cleanup-tokens", 7)
	assert.Error(t, err)

	err = c.Schedule(context.Background(), "auth/cleanup-tokens", "0 3 * * *", "Mars/Olympus", "cleanup-tokens", 7)
	assert.Error(t, err)
}

func TestClient_ScheduleUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	mock.ExpectExec("INSERT INTO queue_schedules").
		WithArgs("cleanup-tokens", "auth/cleanup-tokens", "0 3 * * *", "UTC", 7, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, c.Schedule(context.Background(), "auth/cleanup-tokens", "0 3 * * *", "UTC", "cleanup-tokens", 7))
}

func TestClient_RegisterWorker(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)
	handler := func(context.Context, []Job) error { return nil }

	require.NoError(t, c.RegisterWorker("audit-logs", handler))
	assert.Error(t, c.RegisterWorker("audit-logs", handler), "duplicate queue")

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	assert.Error(t, c.RegisterWorker("another", handler), "registration after start")
}

func TestClient_EnqueueRejectsUnmarshalablePayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	_, err = c.Enqueue(context.Background(), "audit-logs", func() {})
	assert.Error(t, err)
}

func TestClient_PurgeSweepsLapsedSingletonCounters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	// The purge must cover lapsed singleton rows still in 'created':
	// counter jobs have no worker, so retention is their only way out.
	mock.ExpectExec(`(?s)DELETE FROM queue_jobs.*state = 'created' AND singleton_until <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	c.purgeExpired(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_EnqueueDatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewClient(mock, time.Second, 3)

	mock.ExpectExec("INSERT INTO queue_jobs").
		WillReturnError(fmt.Errorf("connection refused"))

	_, err = c.Enqueue(context.Background(), "audit-logs", notePayload{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobExists)
}
