package messagepipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// FailureKind identifies the stage at which a message failed.
type FailureKind string

const (
	FailureParse   FailureKind = "ParseError"
	FailureProcess FailureKind = "ProcessingError"
	FailureAck     FailureKind = "AckError"
)

// MessageFailure records one message that was not completed.
type MessageFailure struct {
	MessageID    string
	Kind         FailureKind
	Err          error
	Abandoned    bool
	DeadLettered bool
}

// BatchReport summarizes the outcome of processing one received batch.
type BatchReport struct {
	Received  int
	Completed int
	Skipped   int
	Failures  []MessageFailure
}

// ParseErrors returns the parse failures in the batch, in receive order.
func (r BatchReport) ParseErrors() []*ParseError {
	var out []*ParseError
	for _, f := range r.Failures {
		var pe *ParseError
		if errors.As(f.Err, &pe) {
			out = append(out, pe)
		}
	}
	return out
}

// Failed reports whether any message in the batch was left uncompleted.
func (r BatchReport) Failed() bool { return len(r.Failures) > 0 }

// BatchProcessingConfig holds configuration for a BatchProcessingService.
type BatchProcessingConfig struct {
	FailurePolicy       FailurePolicy
	MaxDeliveryAttempts int
}

// NewBatchProcessingConfig copies the failure handling settings from cfg.
func NewBatchProcessingConfig(cfg *ServiceBusConfig) BatchProcessingConfig {
	return BatchProcessingConfig{
		FailurePolicy:       cfg.FailurePolicy,
		MaxDeliveryAttempts: cfg.MaxDeliveryAttempts,
	}
}

// BatchProcessingService transforms and processes the messages of one receive,
// in order, and completes each message only after its processing succeeded.
type BatchProcessingService[T any] struct {
	transformer         MessageTransformer[T]
	processor           StreamProcessor[T]
	failurePolicy       FailurePolicy
	maxDeliveryAttempts int
	logger              zerolog.Logger
}

// NewBatchProcessingService creates a new BatchProcessingService.
func NewBatchProcessingService[T any](
	cfg BatchProcessingConfig,
	transformer MessageTransformer[T],
	processor StreamProcessor[T],
	logger zerolog.Logger,
) (*BatchProcessingService[T], error) {
	if transformer == nil {
		return nil, fmt.Errorf("transformer cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailurePolicyLeave
	}
	if cfg.FailurePolicy != FailurePolicyLeave && cfg.FailurePolicy != FailurePolicyAbandon {
		return nil, fmt.Errorf("unknown failure policy %q", cfg.FailurePolicy)
	}
	if cfg.MaxDeliveryAttempts < 0 {
		return nil, fmt.Errorf("max delivery attempts cannot be negative, got %d", cfg.MaxDeliveryAttempts)
	}

	return &BatchProcessingService[T]{
		transformer:         transformer,
		processor:           processor,
		failurePolicy:       cfg.FailurePolicy,
		maxDeliveryAttempts: cfg.MaxDeliveryAttempts,
		logger:              logger.With().Str("service", "BatchProcessingService").Logger(),
	}, nil
}

// ProcessBatch handles every message in msgs. A failing message never stops
// the remaining messages from being processed.
func (s *BatchProcessingService[T]) ProcessBatch(ctx context.Context, msgs []Message) BatchReport {
	report := BatchReport{Received: len(msgs)}
	for _, msg := range msgs {
		s.processMessage(ctx, msg, &report)
	}

	s.logger.Info().
		Int("received", report.Received).
		Int("completed", report.Completed).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failures)).
		Msg("Batch processed.")
	return report
}

// processMessage contains the core logic for transforming, processing and
// acknowledging a single message.
func (s *BatchProcessingService[T]) processMessage(ctx context.Context, msg Message, report *BatchReport) {
	s.logger.Debug().Str("msg_id", msg.ID).Uint32("delivery_count", msg.DeliveryCount).Msg("Transforming message.")

	payload, skip, err := s.transformer(ctx, &msg)
	if err != nil {
		kind := FailureProcess
		var pe *ParseError
		if errors.As(err, &pe) {
			kind = FailureParse
		}
		s.logger.Warn().Err(err).Str("msg_id", msg.ID).Str("body", string(msg.Payload)).Msg("Failed to transform message, leaving it uncompleted.")
		report.Failures = append(report.Failures, s.handleFailure(ctx, msg, kind, err))
		return
	}

	if skip {
		s.logger.Debug().Str("msg_id", msg.ID).Msg("Transformer signaled to skip message, completing.")
		if err := s.acknowledge(ctx, msg); err != nil {
			report.Failures = append(report.Failures, MessageFailure{MessageID: msg.ID, Kind: FailureAck, Err: err})
			return
		}
		report.Skipped++
		return
	}

	if err := s.processor(ctx, msg, payload); err != nil {
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Processor failed to handle message, leaving it uncompleted.")
		report.Failures = append(report.Failures, s.handleFailure(ctx, msg, FailureProcess, err))
		return
	}

	if err := s.acknowledge(ctx, msg); err != nil {
		report.Failures = append(report.Failures, MessageFailure{MessageID: msg.ID, Kind: FailureAck, Err: err})
		return
	}
	report.Completed++
}

// acknowledge is the explicit completion step that follows successful processing.
func (s *BatchProcessingService[T]) acknowledge(ctx context.Context, msg Message) error {
	if msg.Ack == nil {
		return fmt.Errorf("message %s has no acknowledgment handle", msg.ID)
	}
	if err := msg.Ack(ctx); err != nil {
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to complete message; it will be redelivered.")
		return fmt.Errorf("complete message %s: %w", msg.ID, err)
	}
	s.logger.Info().Str("msg_id", msg.ID).Msg("Message completed (removed from queue).")
	return nil
}

// handleFailure applies the dead-letter threshold and then the failure policy.
func (s *BatchProcessingService[T]) handleFailure(ctx context.Context, msg Message, kind FailureKind, cause error) MessageFailure {
	failure := MessageFailure{MessageID: msg.ID, Kind: kind, Err: cause}

	if s.maxDeliveryAttempts > 0 && int(msg.DeliveryCount) >= s.maxDeliveryAttempts && msg.DeadLetter != nil {
		if err := msg.DeadLetter(ctx, string(kind), cause.Error()); err != nil {
			s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to dead-letter message.")
		} else {
			s.logger.Warn().Str("msg_id", msg.ID).Uint32("delivery_count", msg.DeliveryCount).Msg("Message dead-lettered after reaching max delivery attempts.")
			failure.DeadLettered = true
			return failure
		}
	}

	if s.failurePolicy == FailurePolicyAbandon && msg.Nack != nil {
		if err := msg.Nack(ctx); err != nil {
			s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to abandon message; it will be redelivered after its lock expires.")
		} else {
			failure.Abandoned = true
		}
	}
	return failure
}
