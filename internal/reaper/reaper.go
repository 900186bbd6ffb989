// Package reaper implements the periodic recovery task that returns
// lease-expired jobs to pending. It is deliberately separate from the
// worker code path so that worker bugs cannot suppress recovery.
package reaper

import (
	"context"
	"log"
	"time"

	"jobqueue/internal/queue"
	"jobqueue/internal/store"
	"jobqueue/internal/telemetry"
)

// Config carries the reaper-loop knobs.
type Config struct {
	Interval time.Duration
	Batch    int
}

// Reaper periodically scans the Store for expired leases.
type Reaper struct {
	cfg   Config
	store *store.Store
	queue *queue.Queue
}

// New builds a Reaper.
func New(cfg Config, st *store.Store, q *queue.Queue) *Reaper {
	return &Reaper{cfg: cfg, store: st, queue: q}
}

// Run ticks every cfg.Interval until ctx is cancelled, returning nil on
// graceful shutdown.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reaper) tick() {
	telemetry.QueueDepthGauge.Set(float64(r.queue.Len()))
	now := time.Now().UTC()
	ids, err := r.store.ScanExpiredLeases(now, r.cfg.Batch)
	if err != nil {
		log.Printf("reaper: scan expired leases: %v", err)
		return
	}
	for _, id := range ids {
		reset, err := r.store.ResetExpired(id, time.Now().UTC())
		if err != nil {
			log.Printf("reaper: reset expired %s: %v", id, err)
			continue
		}
		if reset {
			telemetry.ReaperReclaimsTotal.Inc()
			r.queue.Offer(id)
		}
	}
}
