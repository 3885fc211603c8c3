// Package queue implements a Postgres-backed durable job queue with
// singleton-key deduplication, at-least-once delivery to polling
// workers, retry with exponential backoff, dead-lettering, and cron
// schedules.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrJobExists is returned by Enqueue when a live singleton job
	// with the same key is already present in its window.
	ErrJobExists = errors.New("job already exists")

	ErrJobNotFound = errors.New("job not found")
)

const (
	StateCreated   = "created"
	StateActive    = "active"
	StateCompleted = "completed"
	StateDead      = "dead"
)

type Job struct {
	ID             string
	Queue          string
	Payload        json.RawMessage
	State          string
	SingletonKey   string
	SingletonUntil time.Time
	RetryCount     int
	RetryLimit     int
	CreatedAt      time.Time
}

// Handler receives an ordered batch of at least one job. Returning an
// error raises every job in the batch for queue-managed retry.
type Handler func(ctx context.Context, jobs []Job) error

// Options collects the per-enqueue knobs. Exported so callers faking
// the queue in tests can observe what an Enqueue asked for.
type Options struct {
	SingletonKey    string
	SingletonWindow time.Duration
	RetryLimit      int
	Retention       time.Duration
	StartAfter      time.Time
}

type Option func(*Options)

// WithSingleton dedupes creation by key: a second enqueue for the same
// (queue, key) within the window fails with ErrJobExists.
func WithSingleton(key string, window time.Duration) Option {
	return func(o *Options) {
		o.SingletonKey = key
		o.SingletonWindow = window
	}
}

func WithRetryLimit(limit int) Option {
	return func(o *Options) {
		o.RetryLimit = limit
	}
}

func WithRetention(d time.Duration) Option {
	return func(o *Options) {
		o.Retention = d
	}
}

func WithStartAfter(t time.Time) Option {
	return func(o *Options) {
		o.StartAfter = t
	}
}
