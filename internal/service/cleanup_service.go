package service

import (
	"context"
	"log/slog"

	"magiclink-auth/internal/queue"
)

const (
	CleanupQueue        = "auth/cleanup-tokens"
	cleanupSingletonKey = "cleanup-tokens"
	cleanupRetention    = 7 // days of job history
)

type cleanupQueue interface {
	RegisterWorker(queueName string, handler queue.Handler) error
	Schedule(ctx context.Context, queueName string, cronExpression string, timezone string, singletonKey string, retentionDays int) error
}

type expiredTokenDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupService bounds the lifetime of stale token rows with a
// recurring purge job. The schedule's singleton key keeps exactly one
// definition live across restarts.
type CleanupService struct {
	queue    cleanupQueue
	tokens   expiredTokenDeleter
	cronExpr string
	timezone string
}

func NewCleanupService(q cleanupQueue, tokens expiredTokenDeleter, cronExpr string, timezone string) *CleanupService {
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if timezone == "" {
		timezone = "UTC"
	}

	return &CleanupService{queue: q, tokens: tokens, cronExpr: cronExpr, timezone: timezone}
}

func (s *CleanupService) Start(ctx context.Context) error {
	if err := s.queue.RegisterWorker(CleanupQueue, s.run); err != nil {
		return err
	}

	if err := s.queue.Schedule(ctx, CleanupQueue, s.cronExpr, s.timezone, cleanupSingletonKey, cleanupRetention); err != nil {
		return err
	}

	slog.Info("token cleanup scheduled", "queue", CleanupQueue, "cron", s.cronExpr, "timezone", s.timezone)
	return nil
}

// run deletes every expired token row. Zero eligible rows is a no-op
// success. A storage error is returned so the queue retries and, after
// the retry budget, dead-letters the job.
func (s *CleanupService) run(ctx context.Context, jobs []queue.Job) error {
	deleted, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		slog.Error("token cleanup failed", "error", err)
		return err
	}

	slog.Info("token cleanup completed", "deleted_count", deleted)
	return nil
}
