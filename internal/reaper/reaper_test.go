package reaper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"jobqueue/internal/models"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"
)

func TestTickReclaimsExpiredLeaseAndOffersToQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	st, err := store.Open(path, 4)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	q := queue.New(10)
	now := time.Now().UTC()
	if err := st.Insert("job1", "hello", now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := st.Claim("job1", "w-1", now.Add(-time.Second), now.Add(-time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	r := New(Config{Interval: time.Hour, Batch: 10}, st, q)
	r.tick()

	v, err := st.GetView("job1")
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	if v.Status != models.StatusPending {
		t.Fatalf("expected pending after reap, got %s", v.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := q.Take(ctx)
	if err != nil || id != "job1" {
		t.Fatalf("expected job1 re-offered to the queue, got %q err=%v", id, err)
	}
}
