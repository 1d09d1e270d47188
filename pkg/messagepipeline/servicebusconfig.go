package messagepipeline

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// FailurePolicy decides what happens to a message whose processing failed.
type FailurePolicy string

const (
	// FailurePolicyLeave leaves the message locked; it becomes visible again
	// once the broker's lock duration elapses.
	FailurePolicyLeave FailurePolicy = "leave"
	// FailurePolicyAbandon releases the lock immediately.
	FailurePolicyAbandon FailurePolicy = "abandon"
)

// ServiceBusConfig holds configuration shared by the sender and the receiver.
type ServiceBusConfig struct {
	// ConnectionString is an opaque namespace credential; it is only handed to the client library.
	ConnectionString string
	QueueName        string
	ApplicationID    string

	MaxMessages    int           // Upper bound on messages fetched per receive.
	ReceiveTimeout time.Duration // How long a receive waits for the first message.
	CloseTimeout   time.Duration // Bound on closing senders, receivers and clients.

	FailurePolicy FailurePolicy
	// MaxDeliveryAttempts dead-letters a failed message once its delivery count
	// reaches this value. Zero leaves dead-lettering to the queue's own settings.
	MaxDeliveryAttempts int
}

// NewServiceBusDefaults provides a config with sensible defaults.
func NewServiceBusDefaults() *ServiceBusConfig {
	cfg := &ServiceBusConfig{
		ApplicationID:       "workflow-automation",
		MaxMessages:         10,
		ReceiveTimeout:      5 * time.Second,
		CloseTimeout:        10 * time.Second,
		FailurePolicy:       FailurePolicyLeave,
		MaxDeliveryAttempts: 0,
	}
	// The following logic allows for overriding defaults via environment variables.
	if cs := os.Getenv("SERVICEBUS_CONNECTION_STRING"); cs != "" {
		cfg.ConnectionString = cs
	}
	if q := os.Getenv("SERVICEBUS_QUEUE_NAME"); q != "" {
		cfg.QueueName = q
	}
	if id := os.Getenv("SERVICEBUS_APPLICATION_ID"); id != "" {
		cfg.ApplicationID = id
	}
	if mm := os.Getenv("SERVICEBUS_MAX_MESSAGES"); mm != "" {
		if val, err := strconv.Atoi(mm); err == nil {
			cfg.MaxMessages = val
		}
	}
	if rt := os.Getenv("SERVICEBUS_RECEIVE_TIMEOUT"); rt != "" {
		if val, err := time.ParseDuration(rt); err == nil {
			cfg.ReceiveTimeout = val
		}
	}
	if ct := os.Getenv("SERVICEBUS_CLOSE_TIMEOUT"); ct != "" {
		if val, err := time.ParseDuration(ct); err == nil {
			cfg.CloseTimeout = val
		}
	}
	if fp := os.Getenv("SERVICEBUS_FAILURE_POLICY"); fp != "" {
		cfg.FailurePolicy = FailurePolicy(fp)
	}
	if mda := os.Getenv("SERVICEBUS_MAX_DELIVERY_ATTEMPTS"); mda != "" {
		if val, err := strconv.Atoi(mda); err == nil {
			cfg.MaxDeliveryAttempts = val
		}
	}
	return cfg
}

// Validate checks that the config can be used to open a connection.
func (c *ServiceBusConfig) Validate() error {
	var errs []error
	if c.ConnectionString == "" {
		errs = append(errs, errors.New("connection string is required (SERVICEBUS_CONNECTION_STRING)"))
	}
	if c.QueueName == "" {
		errs = append(errs, errors.New("queue name is required (SERVICEBUS_QUEUE_NAME)"))
	}
	if c.MaxMessages <= 0 {
		errs = append(errs, fmt.Errorf("max messages must be positive, got %d", c.MaxMessages))
	}
	if c.ReceiveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("receive timeout must be positive, got %s", c.ReceiveTimeout))
	}
	if c.CloseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("close timeout must be positive, got %s", c.CloseTimeout))
	}
	switch c.FailurePolicy {
	case FailurePolicyLeave, FailurePolicyAbandon:
	default:
		errs = append(errs, fmt.Errorf("unknown failure policy %q", c.FailurePolicy))
	}
	if c.MaxDeliveryAttempts < 0 {
		errs = append(errs, fmt.Errorf("max delivery attempts cannot be negative, got %d", c.MaxDeliveryAttempts))
	}
	return errors.Join(errs...)
}
