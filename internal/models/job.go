// Package models defines the Job entity and its lifecycle status.
package models

import "time"

// Status enumerates the lifecycle states a Job can be in. Terminal
// statuses (Done, Failed) never transition out.
type Status string

const (
	StatusPending    Status = "pending"
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Job is the single entity the Store tracks. One row per submitted
// text blob.
type Job struct {
	ID            string
	Status        Status
	Text          string
	ResultChars   *int64
	Attempts      int
	LastError     *string
	ProcessingBy  *string
	LeaseUntil    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// View is the read-only, user-visible projection of a Job returned to
// the Submission API adapter. It never exposes Text.
type View struct {
	ID          string     `json:"job_id"`
	Status      Status     `json:"status"`
	ResultChars *int64     `json:"characters,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ToView projects a Job to its user-visible attributes.
func (j *Job) ToView() View {
	return View{
		ID:          j.ID,
		Status:      j.Status,
		ResultChars: j.ResultChars,
		Attempts:    j.Attempts,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// Event is a single row in the append-only job_events audit trail.
// Purely observational: nothing in the core reads it back.
type Event struct {
	JobID     string
	Kind      string
	Detail    string
	Recorded  time.Time
}
