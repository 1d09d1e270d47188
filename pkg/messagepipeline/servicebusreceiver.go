package messagepipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog"
)

// BatchHandler handles the messages of one receive. The acknowledgment handles
// on each Message are valid only until the handler returns.
type BatchHandler func(ctx context.Context, msgs []Message) error

// ServiceBusReceiver fetches bounded batches of messages from one queue in
// peek-lock mode.
type ServiceBusReceiver struct {
	connector      Connector
	queueName      string
	maxMessages    int
	receiveTimeout time.Duration
	closeTimeout   time.Duration
	logger         zerolog.Logger
}

// NewServiceBusReceiver creates a new receiver for cfg.QueueName.
func NewServiceBusReceiver(cfg *ServiceBusConfig, connector Connector, logger zerolog.Logger) (*ServiceBusReceiver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("service bus config cannot be nil")
	}
	if connector == nil {
		return nil, fmt.Errorf("connector cannot be nil for receiver")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("queue name is required for receiver")
	}
	if cfg.MaxMessages <= 0 {
		return nil, fmt.Errorf("max messages must be positive, got %d", cfg.MaxMessages)
	}
	if cfg.ReceiveTimeout <= 0 {
		return nil, fmt.Errorf("receive timeout must be positive, got %s", cfg.ReceiveTimeout)
	}
	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 10 * time.Second
	}
	return &ServiceBusReceiver{
		connector:      connector,
		queueName:      cfg.QueueName,
		maxMessages:    cfg.MaxMessages,
		receiveTimeout: cfg.ReceiveTimeout,
		closeTimeout:   closeTimeout,
		logger:         logger.With().Str("component", "ServiceBusReceiver").Str("queue", cfg.QueueName).Logger(),
	}, nil
}

// ReceiveBatch opens a receiver scope, waits up to the receive timeout for at
// most MaxMessages messages and passes them to handle. An elapsed window with
// nothing available calls handle with an empty slice. The receive link is
// established with ctx before the window starts, so an unreachable or
// misconfigured broker is reported as an error rather than an empty batch. The
// scope is closed on every exit path, after handle returns.
func (r *ServiceBusReceiver) ReceiveBatch(ctx context.Context, handle BatchHandler) error {
	client, err := r.connector.Open(ctx)
	if err != nil {
		return classifyError(OpConnect, r.queueName, err)
	}
	defer releaseScope(r.logger, r.closeTimeout, "client", client.Close)

	receiver, err := client.NewReceiver(r.queueName)
	if err != nil {
		return classifyError(OpReceive, r.queueName, err)
	}
	defer releaseScope(r.logger, r.closeTimeout, "receiver", receiver.Close)

	if err := r.attach(ctx, receiver); err != nil {
		return err
	}

	received, err := r.receive(ctx, receiver)
	if err != nil {
		return err
	}

	msgs := make([]Message, 0, len(received))
	for _, rm := range received {
		msgs = append(msgs, toMessage(receiver, rm))
	}
	return handle(ctx, msgs)
}

// attach opens the receive link by peeking a single message. The client
// library connects lazily and retries inside the first call it is given, so
// without this step connection failures would surface inside the bounded
// window as a deadline. Peeking takes no lock and leaves delivery counts alone.
func (r *ServiceBusReceiver) attach(ctx context.Context, receiver QueueReceiver) error {
	if _, err := receiver.PeekMessages(ctx, 1, nil); err != nil {
		classified := classifyError(OpReceive, r.queueName, err)
		r.logger.Error().Err(classified).Msg("Failed to open receive link.")
		return classified
	}
	return nil
}

// receive performs the bounded wait on an established link. Only the wait is
// bounded by the receive timeout; acknowledgments use the caller's context.
func (r *ServiceBusReceiver) receive(ctx context.Context, receiver QueueReceiver) ([]*azservicebus.ReceivedMessage, error) {
	receiveCtx, cancel := context.WithTimeout(ctx, r.receiveTimeout)
	defer cancel()

	r.logger.Debug().Int("max_messages", r.maxMessages).Dur("timeout", r.receiveTimeout).Msg("Waiting for messages.")
	received, err := receiver.ReceiveMessages(receiveCtx, r.maxMessages, nil)
	if err != nil {
		// The window elapsing is an empty outcome, not a fault, unless the
		// caller's own context ended.
		if ctx.Err() == nil && isReceiveTimeout(err) {
			r.logger.Info().AnErr("reason", ErrReceiveTimeout).Int("received", len(received)).Msg("Receive window elapsed.")
			return received, nil
		}
		classified := classifyError(OpReceive, r.queueName, err)
		r.logger.Error().Err(classified).Msg("Failed to receive messages.")
		return nil, classified
	}

	r.logger.Info().Int("received", len(received)).Msg("Received messages.")
	return received, nil
}

// toMessage copies a received SDK message into the pipeline's Message and binds
// its acknowledgment handles to receiver.
func toMessage(receiver QueueReceiver, rm *azservicebus.ReceivedMessage) Message {
	payloadCopy := make([]byte, len(rm.Body))
	copy(payloadCopy, rm.Body)

	var enqueued time.Time
	if rm.EnqueuedTime != nil {
		enqueued = *rm.EnqueuedTime
	}

	var attributes map[string]string
	if len(rm.ApplicationProperties) > 0 {
		attributes = make(map[string]string, len(rm.ApplicationProperties))
		for k, v := range rm.ApplicationProperties {
			attributes[k] = fmt.Sprint(v)
		}
	}

	return Message{
		MessageData: MessageData{
			ID:           rm.MessageID,
			Payload:      payloadCopy,
			EnqueuedTime: enqueued,
		},
		Attributes:    attributes,
		DeliveryCount: rm.DeliveryCount,
		Ack: func(ctx context.Context) error {
			return receiver.CompleteMessage(ctx, rm, nil)
		},
		Nack: func(ctx context.Context) error {
			return receiver.AbandonMessage(ctx, rm, nil)
		},
		DeadLetter: func(ctx context.Context, reason, description string) error {
			return receiver.DeadLetterMessage(ctx, rm, &azservicebus.DeadLetterOptions{
				Reason:           &reason,
				ErrorDescription: &description,
			})
		},
	}
}

// ReceiveAndProcess runs one complete receive step: fetch a batch, process it
// with svc and release the receiver scope.
func ReceiveAndProcess[T any](ctx context.Context, r *ServiceBusReceiver, svc *BatchProcessingService[T]) (BatchReport, error) {
	var report BatchReport
	err := r.ReceiveBatch(ctx, func(ctx context.Context, msgs []Message) error {
		report = svc.ProcessBatch(ctx, msgs)
		return nil
	})
	return report, err
}
