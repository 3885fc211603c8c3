package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"

	"magiclink-auth/internal/database"
)

const defaultRetention = 7 * 24 * time.Hour

type Client struct {
	db           database.Querier
	pollInterval time.Duration
	retryLimit   int

	mu      sync.Mutex
	workers map[string]Handler
	started bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(db database.Querier, pollInterval time.Duration, retryLimit int) *Client {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if retryLimit <= 0 {
		retryLimit = 3
	}

	return &Client{
		db:           db,
		pollInterval: pollInterval,
		retryLimit:   retryLimit,
		workers:      map[string]Handler{},
	}
}

// Enqueue persists one job. With a singleton option the insert is
// deduplicated against live rows for the same (queue, key); the lapsed
// row, if any, is retired first so the key becomes reusable after its
// window ends.
func (c *Client) Enqueue(ctx context.Context, queueName string, payload any, opts ...Option) (string, error) {
	o := Options{
		RetryLimit: c.retryLimit,
		Retention:  defaultRetention,
		StartAfter: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	var singletonKey *string
	var singletonUntil *time.Time
	if o.SingletonKey != "" {
		_, err = c.db.Exec(ctx,
			`DELETE FROM queue_jobs
			 WHERE queue_name = $1 AND singleton_key = $2 AND singleton_until <= now()`,
			queueName, o.SingletonKey)
		if err != nil {
			return "", fmt.Errorf("retire lapsed singleton: %w", err)
		}

		until := time.Now().UTC().Add(o.SingletonWindow)
		singletonKey = &o.SingletonKey
		singletonUntil = &until
		if o.Retention < o.SingletonWindow {
			o.Retention = o.SingletonWindow
		}
	}

	id := uuid.NewString()
	tag, err := c.db.Exec(ctx,
		`INSERT INTO queue_jobs
		   (id, queue_name, payload, state, singleton_key, singleton_until,
		    retry_limit, start_after, retention_until, created_at)
		 VALUES ($1, $2, $3, 'created', $4, $5, $6, $7, now() + make_interval(secs => $8), now())
		 ON CONFLICT (queue_name, singleton_key) WHERE singleton_key IS NOT NULL
		 DO NOTHING`,
		id, queueName, data, singletonKey, singletonUntil,
		o.RetryLimit, o.StartAfter.UTC(), o.Retention.Seconds())
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return "", ErrJobExists
	}

	return id, nil
}

// GetJob returns the live singleton job for the key, if any.
func (c *Client) GetJob(ctx context.Context, queueName string, singletonKey string) (Job, error) {
	var job Job
	var until *time.Time

	err := c.db.QueryRow(ctx,
		`SELECT id, queue_name, payload, state, singleton_key, singleton_until,
		        retry_count, retry_limit, created_at
		 FROM queue_jobs
		 WHERE queue_name = $1 AND singleton_key = $2
		   AND (singleton_until IS NULL OR singleton_until > now())`,
		queueName, singletonKey).
		Scan(&job.ID, &job.Queue, &job.Payload, &job.State, &job.SingletonKey,
			&until, &job.RetryCount, &job.RetryLimit, &job.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}

	if until != nil {
		job.SingletonUntil = *until
	}

	return job, nil
}

// IncrementCounter atomically bumps an integer field inside the live
// singleton job's payload and returns the new value together with the
// window end. The whole read-modify-write happens in one statement, so
// concurrent increments for the same key cannot lose updates.
func (c *Client) IncrementCounter(ctx context.Context, queueName string, singletonKey string, field string) (int, time.Time, error) {
	var count int
	var until time.Time

	err := c.db.QueryRow(ctx,
		`UPDATE queue_jobs
		 SET payload = jsonb_set(payload, ARRAY[$3],
		       to_jsonb(COALESCE((payload->>$3)::int, 0) + 1))
		 WHERE queue_name = $1 AND singleton_key = $2 AND singleton_until > now()
		 RETURNING (payload->>$3)::int, singleton_until`,
		queueName, singletonKey, field).
		Scan(&count, &until)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, time.Time{}, ErrJobNotFound
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment job counter: %w", err)
	}

	return count, until, nil
}

// Schedule upserts a recurring definition keyed by singletonKey, so
// repeated initialization (e.g. after a restart) leaves exactly one
// live schedule.
func (c *Client) Schedule(ctx context.Context, queueName string, cronExpression string, timezone string, singletonKey string, retentionDays int) error {
	schedule, err := cron.ParseStandard(cronExpression)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpression, err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	if retentionDays <= 0 {
		retentionDays = 7
	}

	nextRun := schedule.Next(time.Now().In(loc))

	_, err = c.db.Exec(ctx,
		`INSERT INTO queue_schedules
		   (singleton_key, queue_name, cron_expression, timezone, retention_days, next_run)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (singleton_key) DO UPDATE SET
		   queue_name = EXCLUDED.queue_name,
		   cron_expression = EXCLUDED.cron_expression,
		   timezone = EXCLUDED.timezone,
		   retention_days = EXCLUDED.retention_days,
		   next_run = EXCLUDED.next_run,
		   updated_at = now()`,
		singletonKey, queueName, cronExpression, timezone, retentionDays, nextRun.UTC())
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}

	return nil
}

// RegisterWorker binds a handler to a queue. Must be called before
// Start; each queue gets one polling worker goroutine.
func (c *Client) RegisterWorker(queueName string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("register worker %q: client already started", queueName)
	}
	if _, exists := c.workers[queueName]; exists {
		return fmt.Errorf("register worker %q: queue already has a worker", queueName)
	}

	c.workers[queueName] = handler
	return nil
}
