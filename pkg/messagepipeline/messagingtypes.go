package messagepipeline

import (
	"context"
	"time"
)

// Message is the canonical, internal representation of a message received from
// the queue. It contains the core data, broker metadata and the acknowledgment
// handles bound to the receiver that fetched it.
type Message struct {
	// MessageData contains the core payload.
	MessageData

	// Attributes holds the broker's application properties, stringified.
	Attributes map[string]string

	// DeliveryCount is the number of times the broker has delivered this message,
	// starting at 1 for the first delivery.
	DeliveryCount uint32

	// Ack completes the message: it is permanently removed from the queue.
	// It must be called while the receiver scope that produced the message is open.
	Ack func(ctx context.Context) error

	// Nack abandons the message so it becomes visible again immediately instead
	// of waiting for the lock to expire.
	Nack func(ctx context.Context) error

	// DeadLetter moves the message to the queue's dead-letter sub-queue.
	DeadLetter func(ctx context.Context, reason, description string) error
}

// MessageData holds the essential payload of a message.
type MessageData struct {
	// ID is the broker message identifier.
	ID string `json:"id"`

	// Payload is the raw body of the message.
	Payload []byte `json:"payload"`

	// EnqueuedTime is when the broker accepted the message.
	EnqueuedTime time.Time `json:"enqueuedTime"`
}
