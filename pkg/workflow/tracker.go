package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Tracker records the progress of workflows through their steps.
type Tracker struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker over repo.
func NewTracker(repo Repository, logger zerolog.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		logger: logger.With().Str("component", "WorkflowTracker").Logger(),
		now:    time.Now,
	}
}

// LogStep appends a status entry for step without moving the workflow.
func (t *Tracker) LogStep(ctx context.Context, workflowID string, step int, status Status, comment string) error {
	entry := StepStatus{
		WorkflowID: workflowID,
		Step:       step,
		Comment:    comment,
		Status:     status,
		UpdatedAt:  t.now().UTC(),
	}
	if err := t.repo.LogStep(ctx, entry); err != nil {
		return err
	}
	t.logger.Info().Str("workflow_id", workflowID).Int("step", step).Str("status", string(status)).Msg("Workflow step logged.")
	return nil
}

// Advance moves the workflow to step with status and logs the transition.
func (t *Tracker) Advance(ctx context.Context, workflowID string, step int, status Status, comment string) error {
	if step < FirstStep {
		return fmt.Errorf("invalid step %d for workflow %s", step, workflowID)
	}
	if err := t.repo.UpdateStatus(ctx, workflowID, step, status); err != nil {
		return err
	}
	return t.LogStep(ctx, workflowID, step, status, comment)
}
