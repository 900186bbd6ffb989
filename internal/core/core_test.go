package core

import (
	"path/filepath"
	"strings"
	"testing"

	"jobqueue/internal/models"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	st, err := store.Open(path, 4)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, queue.New(10), 1024)
}

func TestSubmitThenStatusOf(t *testing.T) {
	c := newTestCore(t)
	id, err := c.Submit("hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v, err := c.StatusOf(id)
	if err != nil {
		t.Fatalf("status of: %v", err)
	}
	if v.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", v.Status)
	}
}

func TestSubmitRejectsOversizedText(t *testing.T) {
	c := newTestCore(t)
	big := strings.Repeat("a", 2000)
	if _, err := c.Submit(big); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmitRejectsInvalidUTF8(t *testing.T) {
	c := newTestCore(t)
	invalid := string([]byte{0xff, 0xfe, 0xfd})
	if _, err := c.Submit(invalid); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestResultOfUnknownID(t *testing.T) {
	c := newTestCore(t)
	if _, err := c.ResultOf("nonexistent"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
