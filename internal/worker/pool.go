// Package worker implements the durable execution core's worker loop:
// claim a leased job, run the fixed transform, and finalize or retry.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"
	"unicode/utf8"

	"jobqueue/internal/queue"
	"jobqueue/internal/store"
	"jobqueue/internal/telemetry"
)

// ErrFaultInjected is the synthetic transform failure used to exercise
// the retry/failure paths when FAULT_RATE > 0.
var ErrFaultInjected = errors.New("worker: injected fault")

// Config carries the worker-loop knobs a Worker needs; a subset of the
// process-wide config.
type Config struct {
	LeaseSeconds int
	MaxRetries   int
	FaultRate    float64
	WorkDelay    time.Duration
}

// Worker runs the claim/lease/complete/retry loop under a stable label.
type Worker struct {
	Label string
	cfg   Config
	store *store.Store
	queue *queue.Queue
	rng   *rand.Rand
}

// New builds a worker with the given label.
func New(label string, cfg Config, st *store.Store, q *queue.Queue) *Worker {
	return &Worker{
		Label: label,
		cfg:   cfg,
		store: st,
		queue: q,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run loops until ctx is cancelled, claiming and executing jobs. It
// returns nil on graceful shutdown (ctx cancellation observed at the
// Queue.Take suspension point) and a non-nil error only for conditions
// the Supervisor should treat as a crash.
func (w *Worker) Run(ctx context.Context) error {
	for {
		id, err := w.queue.Take(ctx)
		if err != nil {
			return nil
		}
		w.handle(ctx, id)
	}
}

func (w *Worker) handle(ctx context.Context, id string) {
	now := time.Now().UTC()
	leaseUntil := now.Add(time.Duration(w.cfg.LeaseSeconds) * time.Second)
	claimed, err := w.store.Claim(id, w.Label, leaseUntil, now)
	if err != nil || !claimed {
		return
	}
	telemetry.ClaimsTotal.Inc()

	if err := w.store.MarkProcessing(id, time.Now().UTC()); err != nil {
		w.fail(id, err)
		return
	}

	text, err := w.store.FetchText(id)
	if err != nil {
		w.fail(id, err)
		return
	}

	chars, err := w.transform(text)
	if err != nil {
		w.fail(id, err)
		return
	}

	if w.cfg.WorkDelay > 0 {
		select {
		case <-time.After(w.cfg.WorkDelay):
		case <-ctx.Done():
		}
	}

	if err := w.store.Complete(id, chars, time.Now().UTC()); err != nil {
		w.fail(id, err)
		return
	}
	telemetry.CompletedTotal.Inc()
}

// transform computes the Unicode code-point count of text. Deterministic
// and idempotent: safe to re-run after a lost lease.
func (w *Worker) transform(text string) (int64, error) {
	if w.cfg.FaultRate > 0 && w.rng.Float64() < w.cfg.FaultRate {
		return 0, ErrFaultInjected
	}
	return int64(utf8.RuneCountInString(text)), nil
}

// fail converts any error from steps 3-6 into a retry or a permanent
// failure, per the attempts-accounting policy: RecordRetry increments
// attempts in SQL; RecordFailed does no arithmetic of its own but stores
// the newAttempts computed here, so a failed row ends at current+1.
func (w *Worker) fail(id string, cause error) {
	current, err := w.store.GetAttempts(id)
	if err != nil {
		return
	}
	newAttempts := current + 1
	now := time.Now().UTC()
	msg := cause.Error()

	if newAttempts < w.cfg.MaxRetries {
		if err := w.store.RecordRetry(id, msg, now); err != nil {
			return
		}
		telemetry.RetriesTotal.Inc()
		w.queue.Offer(id)
		return
	}

	if err := w.store.RecordFailed(id, msg, newAttempts, now); err != nil {
		return
	}
	telemetry.FailuresTotal.Inc()
}
