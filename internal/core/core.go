// Package core mediates between the Submission API adapter and the
// durable execution primitives (Store, Queue). It is the only package
// the adapter talks to; it never exposes Store internals directly.
package core

import (
	"encoding/hex"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"jobqueue/internal/models"
	"jobqueue/internal/queue"
	"jobqueue/internal/store"
	"jobqueue/internal/telemetry"
)

// ErrInvalidInput is returned by Submit when text is not well-formed
// UTF-8 or exceeds the configured size limit.
var ErrInvalidInput = errors.New("core: invalid input")

// ErrNotFound is returned by StatusOf/ResultOf for an unknown id.
var ErrNotFound = store.ErrNotFound

// Core wires the Store and Queue together behind Submit/StatusOf/ResultOf.
type Core struct {
	store        *store.Store
	queue        *queue.Queue
	maxTextBytes int64
}

// New builds a Core over an already-open Store and Queue.
func New(st *store.Store, q *queue.Queue, maxTextBytes int64) *Core {
	return &Core{store: st, queue: q, maxTextBytes: maxTextBytes}
}

// Submit validates text, inserts a pending job, and offers its id to
// the Queue. Store errors during Submit are surfaced to the caller with
// the job considered never to have existed.
func (c *Core) Submit(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", ErrInvalidInput
	}
	if int64(len(text)) > c.maxTextBytes {
		return "", ErrInvalidInput
	}
	id := newID()
	now := time.Now().UTC()
	if err := c.store.Insert(id, text, now); err != nil {
		return "", err
	}
	c.queue.Offer(id)
	telemetry.SubmittedTotal.Inc()
	return id, nil
}

// StatusOf returns the user-visible snapshot of a job.
func (c *Core) StatusOf(id string) (models.View, error) {
	return c.store.GetView(id)
}

// Outcome is the result shape ResultOf returns to the adapter: exactly
// one of the fields beyond ID/Status/Attempts is meaningful, selected
// by Status.
type Outcome struct {
	ID          string
	Status      models.Status
	Characters  *int64
	Attempts    int
	Error       *string
}

// ResultOf reports the terminal or in-progress outcome for a job.
func (c *Core) ResultOf(id string) (Outcome, error) {
	v, err := c.store.GetView(id)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		ID:         v.ID,
		Status:     v.Status,
		Characters: v.ResultChars,
		Attempts:   v.Attempts,
		Error:      v.LastError,
	}, nil
}

// ListFailed returns up to limit failed jobs, most recently updated
// first. Operational visibility only; not part of the state machine.
func (c *Core) ListFailed(limit int) ([]models.View, error) {
	return c.store.ListByStatus(models.StatusFailed, limit)
}

// newID renders a fresh uuid.New()'s raw 128 bits as 32 lowercase hex
// characters, satisfying spec.md §3's "128-bit opaque identifier (hex
// text)" without exposing uuid's dashed String() formatting.
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
