package install

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of an install job
type Status string

const (
	// StatusPending indicates the job is waiting behind earlier installs
	StatusPending Status = "pending"
	// StatusRunning indicates the installer is running for the job
	StatusRunning Status = "running"
	// StatusCompleted indicates the package was installed
	StatusCompleted Status = "completed"
	// StatusFailed indicates the installer reported an error
	StatusFailed Status = "failed"
	// StatusCancelled indicates the queue closed before the job ran
	StatusCancelled Status = "cancelled"
)

// Job is one requested package install
type Job struct {
	// ID is the unique identifier for the job
	ID uuid.UUID `db:"id" json:"id"`
	// Package is the bower package spec (name, name#version or URL)
	Package string `db:"package" json:"package"`
	// Status is the current state of the job
	Status Status `db:"status" json:"status"`
	// Error stores the failure message if the job failed
	Error *string `db:"error" json:"error,omitempty"`
	// CreatedAt is when the install was requested
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	// StartedAt is when the installer started
	StartedAt *time.Time `db:"started_at" json:"started_at,omitempty"`
	// CompletedAt is when the job finished (success, failure or cancellation)
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// NewJob creates a pending job for pkg
func NewJob(pkg string) *Job {
	return &Job{
		ID:        uuid.New(),
		Package:   pkg,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func (j *Job) start() {
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
}

func (j *Job) finish(err error) {
	now := time.Now().UTC()
	j.CompletedAt = &now
	if err != nil {
		msg := err.Error()
		j.Error = &msg
		j.Status = StatusFailed
		return
	}
	j.Status = StatusCompleted
}

func (j *Job) cancel() {
	now := time.Now().UTC()
	j.CompletedAt = &now
	j.Status = StatusCancelled
}

// IsFinished returns true once the job can no longer change state
func (j *Job) IsFinished() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Duration returns how long the installer ran, or zero if it has not finished
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
