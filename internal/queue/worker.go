package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const claimBatchSize = 25

// Start launches one polling goroutine per registered worker plus the
// schedule/maintenance loop. It is not an error to start with no
// workers; the scheduler still runs.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for queueName, handler := range c.workers {
		c.wg.Add(1)
		go c.pollLoop(runCtx, queueName, handler)
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.maintenanceLoop(runCtx)

	slog.Info("queue client started", "workers", len(c.workers), "poll_interval", c.pollInterval)
}

// Stop cancels all loops and waits for in-flight handlers to return.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Client) pollLoop(ctx context.Context, queueName string, handler Handler) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drain(ctx, queueName, handler)
		}
	}
}

// drain claims and processes batches until the queue is momentarily empty.
func (c *Client) drain(ctx context.Context, queueName string, handler Handler) {
	for {
		jobs, err := c.claim(ctx, queueName, claimBatchSize)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("queue claim failed", "queue", queueName, "error", err)
			}
			return
		}
		if len(jobs) == 0 {
			return
		}

		if err := handler(ctx, jobs); err != nil {
			c.fail(ctx, queueName, jobs, err)
			continue
		}

		c.complete(ctx, jobs)
	}
}

func (c *Client) claim(ctx context.Context, queueName string, limit int) ([]Job, error) {
	rows, err := c.db.Query(ctx,
		`UPDATE queue_jobs
		 SET state = 'active', started_at = now()
		 WHERE id IN (
		   SELECT id FROM queue_jobs
		   WHERE queue_name = $1 AND state = 'created' AND start_after <= now()
		   ORDER BY created_at
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, queue_name, payload, state, COALESCE(singleton_key, ''),
		           retry_count, retry_limit, created_at`,
		queueName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]Job, 0, limit)
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Queue, &job.Payload, &job.State,
			&job.SingletonKey, &job.RetryCount, &job.RetryLimit, &job.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (c *Client) complete(ctx context.Context, jobs []Job) {
	ids := jobIDs(jobs)
	_, err := c.db.Exec(ctx,
		`UPDATE queue_jobs SET state = 'completed', completed_at = now()
		 WHERE id = ANY($1)`, ids)
	if err != nil && ctx.Err() == nil {
		slog.Error("queue complete failed", "job_ids", ids, "error", err)
	}
}

// fail reschedules the batch with exponential backoff; jobs that have
// exhausted their retry budget are dead-lettered and reported.
func (c *Client) fail(ctx context.Context, queueName string, jobs []Job, cause error) {
	ids := jobIDs(jobs)

	rows, err := c.db.Query(ctx,
		`UPDATE queue_jobs
		 SET retry_count = retry_count + 1,
		     state = CASE WHEN retry_count + 1 >= retry_limit THEN 'dead' ELSE 'created' END,
		     start_after = now() + (interval '1 second' * power(2, retry_count))
		 WHERE id = ANY($1)
		 RETURNING id, state`, ids)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("queue fail-update failed", "queue", queueName, "error", err)
		}
		return
	}
	defer rows.Close()

	dead := make([]string, 0)
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			slog.Error("queue fail-update scan failed", "queue", queueName, "error", err)
			return
		}
		if state == StateDead {
			dead = append(dead, id)
		}
	}

	slog.Warn("queue batch failed, scheduled for retry",
		"queue", queueName, "jobs", len(jobs), "error", cause)

	if len(dead) > 0 {
		slog.Error("jobs dead-lettered after exhausting retries",
			"queue", queueName, "job_ids", dead, "error", cause)
	}
}

// maintenanceLoop fires due schedules and purges rows past retention.
func (c *Client) maintenanceLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.fireDueSchedules(ctx)
			c.purgeExpired(ctx)
		}
	}
}

func (c *Client) fireDueSchedules(ctx context.Context) {
	rows, err := c.db.Query(ctx,
		`SELECT singleton_key, queue_name, cron_expression, timezone, retention_days
		 FROM queue_schedules WHERE next_run <= now()`)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("load due schedules failed", "error", err)
		}
		return
	}

	type due struct {
		key       string
		queue     string
		expr      string
		tz        string
		retention int
	}

	pending := make([]due, 0)
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.key, &d.queue, &d.expr, &d.tz, &d.retention); err != nil {
			rows.Close()
			slog.Error("scan schedule failed", "error", err)
			return
		}
		pending = append(pending, d)
	}
	rows.Close()

	for _, d := range pending {
		_, err := c.Enqueue(ctx, d.queue, map[string]any{},
			WithSingleton(d.key, time.Minute),
			WithRetention(time.Duration(d.retention)*24*time.Hour))
		if err != nil && err != ErrJobExists {
			slog.Error("enqueue scheduled job failed", "queue", d.queue, "error", err)
			continue
		}

		schedule, err := cron.ParseStandard(d.expr)
		if err != nil {
			slog.Error("stored cron expression invalid", "schedule", d.key, "error", err)
			continue
		}
		loc, err := time.LoadLocation(d.tz)
		if err != nil {
			slog.Error("stored timezone invalid", "schedule", d.key, "error", err)
			continue
		}

		next := schedule.Next(time.Now().In(loc))
		if _, err := c.db.Exec(ctx,
			`UPDATE queue_schedules SET next_run = $2, updated_at = now()
			 WHERE singleton_key = $1`, d.key, next.UTC()); err != nil {
			slog.Error("advance schedule failed", "schedule", d.key, "error", err)
		}
	}
}

// purgeExpired removes finished jobs past retention. Lapsed singleton
// counters (rate-limit windows) never run through a worker, so they
// leave through retention in state 'created'.
func (c *Client) purgeExpired(ctx context.Context) {
	tag, err := c.db.Exec(ctx,
		`DELETE FROM queue_jobs
		 WHERE retention_until <= now()
		   AND (state IN ('completed', 'dead')
		        OR (state = 'created' AND singleton_until <= now()))`)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("queue purge failed", "error", err)
		}
		return
	}

	if tag.RowsAffected() > 0 {
		slog.Debug("purged retained jobs", "count", tag.RowsAffected())
	}
}

func jobIDs(jobs []Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids
}
