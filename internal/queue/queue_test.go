package queue

import (
	"context"
	"testing"
	"time"
)

func TestOfferAndTake(t *testing.T) {
	q := New(2)
	if !q.Offer("a") {
		t.Fatalf("expected offer to succeed")
	}
	id, err := q.Take(context.Background())
	if err != nil || id != "a" {
		t.Fatalf("expected a, got %q err=%v", id, err)
	}
}

func TestOfferFullQueueReturnsFalse(t *testing.T) {
	q := New(1)
	if !q.Offer("a") {
		t.Fatalf("expected first offer to succeed")
	}
	if q.Offer("b") {
		t.Fatalf("expected second offer on a full queue to return false")
	}
}

func TestTakeBlocksUntilCancelled(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := q.Take(ctx); err == nil {
		t.Fatalf("expected Take to observe context cancellation on an empty queue")
	}
}

func TestLenReflectsQueuedCount(t *testing.T) {
	q := New(5)
	q.Offer("a")
	q.Offer("b")
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
}
