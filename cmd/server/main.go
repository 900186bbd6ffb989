// Command server boots the whole durable job queue in one process: the
// Store, the in-memory Queue, the Supervisor-managed worker pool and
// reaper, and the HTTP Submission API adapter. spec.md §5 models a
// single host scheduler running all of these concurrently, so unlike a
// distributed deployment there is no separate worker binary.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"jobqueue/internal/api"
	"jobqueue/internal/config"
	"jobqueue/internal/core"
	"jobqueue/internal/queue"
	"jobqueue/internal/reaper"
	"jobqueue/internal/store"
	"jobqueue/internal/supervisor"
	"jobqueue/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.Open(cfg.DBPath, cfg.DBPoolSize)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	q := queue.New(cfg.QueueCapacity)
	c := core.New(st, q, cfg.MaxTextBytes)

	sup := supervisor.New(supervisor.Config{
		WorkerCount:    cfg.WorkerCount,
		RestartBackoff: cfg.RestartBackoff,
		ShutdownGrace:  cfg.ShutdownGrace,
		Worker: worker.Config{
			LeaseSeconds: cfg.LeaseSeconds,
			MaxRetries:   cfg.MaxRetries,
			FaultRate:    cfg.FaultRate,
			WorkDelay:    cfg.WorkDelay,
		},
		Reaper: reaper.Config{
			Interval: cfg.ReaperInterval,
			Batch:    cfg.Batch,
		},
	}, st, q)

	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	server := api.New(c, cfg.MaxTextBytes)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("listening on :%s (workers=%d lease=%ds reaper_interval=%s)",
		cfg.HTTPPort, cfg.WorkerCount, cfg.LeaseSeconds, cfg.ReaperInterval)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)

	// Wait for the Supervisor's own drain (bounded by ShutdownGrace) so
	// main doesn't return, and take every goroutine down with it, while
	// a worker is still mid-write.
	<-supDone
}
