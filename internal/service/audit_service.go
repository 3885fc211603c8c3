package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"magiclink-auth/internal/model"
	"magiclink-auth/internal/queue"
)

// AuditQueue is the queue that buffers security events between the
// request path and the log sink.
const AuditQueue = "audit-logs"

type auditQueue interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.Option) (string, error)
	RegisterWorker(queueName string, handler queue.Handler) error
}

// AuditService records security-relevant events without blocking the
// request path: Log enqueues and returns immediately; a queue worker
// drains entries into the structured log stream. Delivery is
// at-least-once, so the sink tolerates duplicates.
type AuditService struct {
	queue   auditQueue
	started atomic.Bool
}

func NewAuditService(q auditQueue) *AuditService {
	return &AuditService{queue: q}
}

// Start registers the drain worker. Safe to call more than once; only
// the first call takes effect.
func (s *AuditService) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.queue.RegisterWorker(AuditQueue, s.process); err != nil {
		s.started.Store(false)
		return err
	}

	slog.Info("audit logger started", "queue", AuditQueue)
	return nil
}

// Log stamps the entry and enqueues it. Enqueue failures are logged,
// never surfaced to the caller's business logic. Calls before Start are
// dropped with a warning.
func (s *AuditService) Log(ctx context.Context, entry model.AuditEntry) {
	if !s.started.Load() {
		slog.Warn("audit logger not started, dropping entry", "event_type", entry.EventType)
		return
	}

	entry.Timestamp = time.Now().UTC()

	if _, err := s.queue.Enqueue(ctx, AuditQueue, entry); err != nil {
		slog.Error("audit enqueue failed", "event_type", entry.EventType, "error", err)
	}
}

// process writes each entry in the batch to the log sink. An
// undecodable payload is skipped rather than retried; it would fail
// identically forever.
func (s *AuditService) process(ctx context.Context, jobs []queue.Job) error {
	for _, job := range jobs {
		var entry model.AuditEntry
		if err := json.Unmarshal(job.Payload, &entry); err != nil {
			slog.Error("audit entry undecodable, skipping", "job_id", job.ID, "error", err)
			continue
		}

		writeAuditEntry(entry)
	}

	return nil
}

func writeAuditEntry(entry model.AuditEntry) {
	attrs := []any{
		"event_type", entry.EventType,
		"timestamp", entry.Timestamp.Format(time.RFC3339Nano),
	}

	if entry.ActingUserID != "" {
		attrs = append(attrs, "acting_user_id", entry.ActingUserID)
	}
	if entry.TargetUserID != "" {
		attrs = append(attrs, "target_user_id", entry.TargetUserID)
	}
	if entry.IPAddress != "" {
		attrs = append(attrs, "ip_address", entry.IPAddress)
	}
	if entry.UserAgent != "" {
		attrs = append(attrs, "user_agent", entry.UserAgent)
	}
	if entry.ResourceType != "" {
		attrs = append(attrs, "resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		attrs = append(attrs, "resource_id", entry.ResourceID)
	}
	if len(entry.Metadata) > 0 {
		if raw, err := json.Marshal(entry.Metadata); err == nil {
			attrs = append(attrs, "metadata", string(raw))
		}
	}

	slog.Info("audit", attrs...)
}
