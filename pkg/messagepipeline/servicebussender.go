package messagepipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const jsonContentType = "application/json"

// ServiceBusSender sends single JSON messages to one queue. Each call opens and
// closes its own client scope.
type ServiceBusSender struct {
	connector    Connector
	queueName    string
	closeTimeout time.Duration
	logger       zerolog.Logger
}

// NewServiceBusSender creates a new sender for cfg.QueueName.
func NewServiceBusSender(cfg *ServiceBusConfig, connector Connector, logger zerolog.Logger) (*ServiceBusSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("service bus config cannot be nil")
	}
	if connector == nil {
		return nil, fmt.Errorf("connector cannot be nil for sender")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("queue name is required for sender")
	}
	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 10 * time.Second
	}
	return &ServiceBusSender{
		connector:    connector,
		queueName:    cfg.QueueName,
		closeTimeout: closeTimeout,
		logger:       logger.With().Str("component", "ServiceBusSender").Str("queue", cfg.QueueName).Logger(),
	}, nil
}

// Send serializes payload as JSON and sends it as one message. It returns the
// message ID assigned to the sent message. No deduplication is performed: a
// retry after a failure may enqueue the payload twice.
func (s *ServiceBusSender) Send(ctx context.Context, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &SendError{Queue: s.queueName, Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}
	return s.SendBytes(ctx, body, nil)
}

// SendBytes sends an already serialized JSON body with optional application properties.
func (s *ServiceBusSender) SendBytes(ctx context.Context, body []byte, attributes map[string]string) (string, error) {
	client, err := s.connector.Open(ctx)
	if err != nil {
		return "", s.sendFailure(classifyError(OpConnect, s.queueName, err))
	}
	defer releaseScope(s.logger, s.closeTimeout, "client", client.Close)

	sender, err := client.NewSender(s.queueName)
	if err != nil {
		return "", s.sendFailure(classifyError(OpSend, s.queueName, err))
	}
	defer releaseScope(s.logger, s.closeTimeout, "sender", sender.Close)

	messageID := uuid.NewString()
	contentType := jsonContentType
	msg := &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		MessageID:   &messageID,
	}
	if len(attributes) > 0 {
		msg.ApplicationProperties = make(map[string]any, len(attributes))
		for k, v := range attributes {
			msg.ApplicationProperties[k] = v
		}
	}

	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		classified := s.sendFailure(classifyError(OpSend, s.queueName, err))
		s.logger.Error().Err(classified).Str("msg_id", messageID).Msg("Failed to send message.")
		return "", classified
	}

	s.logger.Info().Str("msg_id", messageID).Int("body_bytes", len(body)).Msg("Message sent successfully.")
	return messageID, nil
}

// sendFailure wraps a classified error in a SendError unless it already is one.
func (s *ServiceBusSender) sendFailure(err error) error {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return err
	}
	return &SendError{Queue: s.queueName, Err: err}
}
