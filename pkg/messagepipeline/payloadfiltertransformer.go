package messagepipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// MaxStandardMessageSize is the largest message body a Standard tier namespace accepts.
const MaxStandardMessageSize = 256 * 1024

// WithPayloadValidation wraps next so that bodies shorter than minSize or
// longer than maxSize bytes fail before next is called. A failed transform
// leaves the message uncompleted, so an oversized body follows the failure
// policy like any other bad message.
func WithPayloadValidation[T any](next MessageTransformer[T], minSize, maxSize int, logger zerolog.Logger) MessageTransformer[T] {
	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		size := len(msg.Payload)
		if size >= minSize && size <= maxSize {
			return next(ctx, msg)
		}
		logger.Warn().
			Str("msg_id", msg.ID).
			Int("payload_size", size).
			Int("min_size", minSize).
			Int("max_size", maxSize).
			Msg("Payload size out of range.")
		return nil, false, fmt.Errorf("message %s: payload size %d outside [%d, %d]", msg.ID, size, minSize, maxSize)
	}
}
