package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"magiclink-auth/internal/queue"
)

// RateLimitQueue is the queue backing magic-link admission counters.
const RateLimitQueue = "auth/rate-limit"

type counterQueue interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.Option) (string, error)
	IncrementCounter(ctx context.Context, queueName string, singletonKey string, field string) (int, time.Time, error)
}

type rateLimitPayload struct {
	Attempts int `json:"attempts"`
}

type RateLimitDecision struct {
	Allowed   bool
	Attempts  int
	ResetTime time.Time
}

// RateLimitService bounds magic-link issuance per client identity using
// the queue's singleton semantics as a sliding window counter. The
// first attempt in a window creates the singleton job; later attempts
// increment its counter atomically in the queue's storage.
type RateLimitService struct {
	queue       counterQueue
	maxAttempts int
	window      time.Duration
}

func NewRateLimitService(q counterQueue, maxAttempts int, window time.Duration) *RateLimitService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if window <= 0 {
		window = time.Hour
	}

	return &RateLimitService{queue: q, maxAttempts: maxAttempts, window: window}
}

// Identity keys the counter: (ip, email) when an email is present,
// otherwise ip alone.
func Identity(ip string, email string) string {
	if email == "" {
		return ip
	}
	return fmt.Sprintf("%s-%s", ip, email)
}

// Check admits or denies one attempt. If the queue is unreachable the
// request is allowed: availability of the login flow wins over strict
// abuse prevention, and the failure is logged.
func (s *RateLimitService) Check(ctx context.Context, identity string) RateLimitDecision {
	_, err := s.queue.Enqueue(ctx, RateLimitQueue, rateLimitPayload{Attempts: 1},
		queue.WithSingleton(identity, s.window),
		queue.WithRetention(s.window))
	if err == nil {
		// First attempt in this window.
		return RateLimitDecision{Allowed: true, Attempts: 1}
	}

	if !errors.Is(err, queue.ErrJobExists) {
		slog.Warn("rate limit check failed, failing open", "identity", identity, "error", err)
		return RateLimitDecision{Allowed: true}
	}

	attempts, windowEnd, err := s.queue.IncrementCounter(ctx, RateLimitQueue, identity, "attempts")
	if errors.Is(err, queue.ErrJobNotFound) {
		// Window lapsed between the conflict and the increment; treat as
		// a fresh window.
		return RateLimitDecision{Allowed: true, Attempts: 1}
	}
	if err != nil {
		slog.Warn("rate limit increment failed, failing open", "identity", identity, "error", err)
		return RateLimitDecision{Allowed: true}
	}

	if attempts > s.maxAttempts {
		return RateLimitDecision{Allowed: false, Attempts: attempts, ResetTime: windowEnd.UTC()}
	}

	return RateLimitDecision{Allowed: true, Attempts: attempts}
}
