// Package supervisor launches the worker pool and the reaper, restarts
// tasks that terminate abnormally, and drives graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"jobqueue/internal/queue"
	"jobqueue/internal/reaper"
	"jobqueue/internal/store"
	"jobqueue/internal/telemetry"
	"jobqueue/internal/worker"
)

// Config carries the supervisor-level knobs.
type Config struct {
	WorkerCount    int
	RestartBackoff time.Duration
	ShutdownGrace  time.Duration
	Worker         worker.Config
	Reaper         reaper.Config
}

// Supervisor owns the lifetime of every worker task and the reaper task.
type Supervisor struct {
	cfg   Config
	store *store.Store
	queue *queue.Queue
	wg    sync.WaitGroup
}

// New builds a Supervisor.
func New(cfg Config, st *store.Store, q *queue.Queue) *Supervisor {
	return &Supervisor{cfg: cfg, store: st, queue: q}
}

// Run launches WorkerCount workers and one reaper, then blocks until
// ctx is cancelled. It waits up to ShutdownGrace for all tasks to drain
// before returning.
func (s *Supervisor) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 1; i <= s.cfg.WorkerCount; i++ {
		label := fmt.Sprintf("w-%d", i)
		s.wg.Add(1)
		go s.superviseWorker(runCtx, label)
	}

	s.wg.Add(1)
	go s.superviseReaper(runCtx)

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		log.Printf("supervisor: shutdown grace period elapsed before all tasks drained")
	}
}

// superviseWorker runs a single worker label for the lifetime of the
// process, relaunching it with the same label after an abnormal
// termination. Jobs left in-flight at hard shutdown are recovered by
// the Reaper on next boot since their lease predates the new startup
// time.
func (s *Supervisor) superviseWorker(ctx context.Context, label string) {
	defer s.wg.Done()
	w := worker.New(label, s.cfg.Worker, s.store, s.queue)
	for {
		err := runSupervised(ctx, w.Run)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}
		log.Printf("supervisor: worker %s terminated abnormally: %v", label, err)
		telemetry.WorkerRestartsTotal.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RestartBackoff):
		}
		w = worker.New(label, s.cfg.Worker, s.store, s.queue)
	}
}

func (s *Supervisor) superviseReaper(ctx context.Context) {
	defer s.wg.Done()
	r := reaper.New(s.cfg.Reaper, s.store, s.queue)
	for {
		err := runSupervised(ctx, r.Run)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}
		log.Printf("supervisor: reaper terminated abnormally: %v", err)
		telemetry.WorkerRestartsTotal.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RestartBackoff):
		}
		r = reaper.New(s.cfg.Reaper, s.store, s.queue)
	}
}

// runSupervised recovers a panic in fn and converts it into an error so
// WorkerCrash is handled the same way as any other abnormal termination.
func runSupervised(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
