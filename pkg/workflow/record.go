// Package workflow tracks the lifecycle of workflows started from received
// queue messages: the stored intake document and the workflow record that
// later steps update.
package workflow

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no workflow record exists for an id.
var ErrNotFound = errors.New("workflow not found")

// Status is the state of a workflow or of one of its steps.
type Status string

const (
	StatusInitial    Status = "Initial"
	StatusSuccessful Status = "Successful"
	StatusFailed     Status = "Failed"
)

// FirstStep is the step a new workflow starts at.
const FirstStep = 1

// Record is one row of the workflow table.
type Record struct {
	ID          string
	Status      Status
	CurrentStep int
	CreatedDate time.Time
}

// StepStatus is a status entry logged against one step of a workflow.
type StepStatus struct {
	WorkflowID string
	Step       int
	Comment    string
	Status     Status
	UpdatedAt  time.Time
}

// Repository persists workflow records and their step history.
type Repository interface {
	// Create inserts a new record. Creating an id twice is an error.
	Create(ctx context.Context, rec Record) error
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	// UpdateStatus moves a workflow to step with status, or returns ErrNotFound.
	UpdateStatus(ctx context.Context, id string, step int, status Status) error
	// LogStep appends a step status entry.
	LogStep(ctx context.Context, entry StepStatus) error
	// Steps returns the logged entries for a workflow, oldest first.
	Steps(ctx context.Context, id string) ([]StepStatus, error)
}
