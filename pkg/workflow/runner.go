package workflow

import (
	"context"
	"fmt"

	"github.com/CKThompson00/workflow-automation/pkg/messagepipeline"
	"github.com/CKThompson00/workflow-automation/pkg/types"
	"github.com/rs/zerolog"
)

// StepError reports which step of a run failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s step: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

const (
	StepSend    = "send"
	StepReceive = "receive"
)

// RunResult summarises one run.
type RunResult struct {
	SentMessageID string
	Report        messagepipeline.BatchReport
}

// Runner sends one message and then performs one receive step on the same
// queue. The two steps run strictly in sequence.
type Runner struct {
	sender   *messagepipeline.ServiceBusSender
	receiver *messagepipeline.ServiceBusReceiver
	service  *messagepipeline.BatchProcessingService[types.WorkflowMessage]
	logger   zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(
	sender *messagepipeline.ServiceBusSender,
	receiver *messagepipeline.ServiceBusReceiver,
	service *messagepipeline.BatchProcessingService[types.WorkflowMessage],
	logger zerolog.Logger,
) (*Runner, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if receiver == nil {
		return nil, fmt.Errorf("receiver cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("processing service cannot be nil")
	}
	return &Runner{
		sender:   sender,
		receiver: receiver,
		service:  service,
		logger:   logger.With().Str("component", "WorkflowRunner").Logger(),
	}, nil
}

// Run sends msg, then receives and processes one batch. Per-message failures
// are handled inside the batch and reported in the result; only a failed step
// is returned as an error.
func (r *Runner) Run(ctx context.Context, msg types.WorkflowMessage) (RunResult, error) {
	var result RunResult

	id, err := r.sender.Send(ctx, msg)
	if err != nil {
		return result, &StepError{Step: StepSend, Err: err}
	}
	result.SentMessageID = id
	r.logger.Info().Str("msg_id", id).Str("id", msg.ID).Msg("Send step completed.")

	report, err := messagepipeline.ReceiveAndProcess(ctx, r.receiver, r.service)
	result.Report = report
	if err != nil {
		return result, &StepError{Step: StepReceive, Err: err}
	}

	event := r.logger.Info()
	if report.Failed() {
		event = r.logger.Warn()
	}
	event.
		Int("received", report.Received).
		Int("completed", report.Completed).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failures)).
		Msg("Receive step completed.")
	return result, nil
}
