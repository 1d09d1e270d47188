package messagepipeline

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// ====================================================================================
// This file defines the contracts between the workflow and the Service Bus client
// library, and the function types used to transform and process received messages.
// ====================================================================================

// --- Broker seam ---

// Connector opens a client scope against a Service Bus namespace. Every
// BrokerClient it returns must be closed by the caller.
type Connector interface {
	Open(ctx context.Context) (BrokerClient, error)
}

// BrokerClient is an open connection to a namespace. Senders and receivers
// created from it must be closed before the client itself.
type BrokerClient interface {
	NewSender(queueName string) (QueueSender, error)
	NewReceiver(queueName string) (QueueReceiver, error)
	Close(ctx context.Context) error
}

// QueueSender is the subset of *azservicebus.Sender the workflow uses.
type QueueSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// QueueReceiver is the subset of *azservicebus.Receiver the workflow uses.
type QueueReceiver interface {
	PeekMessages(ctx context.Context, maxMessageCount int, options *azservicebus.PeekMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	DeadLetterMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.DeadLetterOptions) error
	Close(ctx context.Context) error
}

// --- Transformer ---

// MessageTransformer defines a function that transforms a generic `Message` into a
// new, specific, structured payload of type T.
//
// The 'skip' return value can be set to true to signal that this message should
// be acknowledged and not processed further, effectively filtering it out.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// --- Processor ---

// StreamProcessor defines the contract for an endpoint that handles transformed
// messages of type T one by one. The implementation should return an error if
// processing fails, which leaves the message uncompleted.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error
