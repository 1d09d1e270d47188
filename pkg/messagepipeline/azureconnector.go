package messagepipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog"
)

// --- Azure Service Bus connector ---

// AzureConnector opens clients with the official Service Bus SDK.
type AzureConnector struct {
	connectionString string
	applicationID    string
	logger           zerolog.Logger
}

// NewAzureConnector creates a connector from the connection string in cfg.
// The connection string is not parsed here; the SDK validates it on Open.
func NewAzureConnector(cfg *ServiceBusConfig, logger zerolog.Logger) (*AzureConnector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("service bus config cannot be nil")
	}
	if cfg.ConnectionString == "" {
		return nil, &AuthError{Op: OpConnect, Queue: cfg.QueueName, Err: fmt.Errorf("connection string is empty")}
	}
	return &AzureConnector{
		connectionString: cfg.ConnectionString,
		applicationID:    cfg.ApplicationID,
		logger:           logger.With().Str("component", "AzureConnector").Logger(),
	}, nil
}

// Open creates a new SDK client. The SDK connects lazily, so network and
// credential failures surface on the first send or receive.
func (c *AzureConnector) Open(_ context.Context) (BrokerClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(c.connectionString, &azservicebus.ClientOptions{
		ApplicationID: c.applicationID,
	})
	if err != nil {
		return nil, &AuthError{Op: OpConnect, Err: fmt.Errorf("invalid connection string: %w", err)}
	}
	c.logger.Debug().Msg("Service Bus client created.")
	return &azureClient{client: client}, nil
}

// azureClient adapts *azservicebus.Client to BrokerClient.
type azureClient struct {
	client *azservicebus.Client
}

func (a *azureClient) NewSender(queueName string) (QueueSender, error) {
	sender, err := a.client.NewSender(queueName, nil)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func (a *azureClient) NewReceiver(queueName string) (QueueReceiver, error) {
	receiver, err := a.client.NewReceiverForQueue(queueName, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, err
	}
	return receiver, nil
}

func (a *azureClient) Close(ctx context.Context) error {
	return a.client.Close(ctx)
}

// releaseScope closes a scoped resource with its own timeout so that release
// happens even when the operation's context is already cancelled. Close errors
// are logged and never replace the operation's own error.
func releaseScope(logger zerolog.Logger, timeout time.Duration, resource string, closeFn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		logger.Warn().Err(err).Str("resource", resource).Msg("Failed to close Service Bus resource.")
		return
	}
	logger.Debug().Str("resource", resource).Msg("Service Bus resource closed.")
}
