package messagepipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// Operation names used in errors and log fields.
const (
	OpConnect = "connect"
	OpSend    = "send"
	OpReceive = "receive"
)

// ErrReceiveTimeout marks a receive window that elapsed with nothing available.
// It is never returned to callers of the receiver: an empty window is a normal
// outcome. It is exposed so log consumers can match on it.
var ErrReceiveTimeout = errors.New("receive window elapsed with no messages")

// AuthError reports a missing, malformed or rejected connection credential.
type AuthError struct {
	Op    string
	Queue string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s on queue %q: authentication failed: %v", e.Op, e.Queue, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectionError reports that the broker or the queue could not be reached.
type ConnectionError struct {
	Op    string
	Queue string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s on queue %q: connection failed: %v", e.Op, e.Queue, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports that a message could not be sent. Connection and
// credential failures on the send path are wrapped in a SendError too, so
// errors.As matches both the SendError and the underlying AuthError or
// ConnectionError.
type SendError struct {
	Queue string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send on queue %q failed: %v", e.Queue, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ParseError reports a received body that is not valid JSON for the expected payload.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("message %s: body is not valid JSON: %v", e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// classifyError maps an error from the client library onto the workflow's
// error taxonomy. Errors that are already classified pass through, gaining
// queue if they were raised below the queue level, e.g. by a Connector.
func classifyError(op, queue string, err error) error {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	var connErr *ConnectionError
	var sendErr *SendError
	switch {
	case errors.As(err, &authErr):
		if authErr.Queue == "" {
			authErr.Queue = queue
		}
		return err
	case errors.As(err, &connErr):
		if connErr.Queue == "" {
			connErr.Queue = queue
		}
		return err
	case errors.As(err, &sendErr):
		if sendErr.Queue == "" {
			sendErr.Queue = queue
		}
		return err
	}

	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) {
		switch sbErr.Code {
		case azservicebus.CodeUnauthorizedAccess:
			return &AuthError{Op: op, Queue: queue, Err: err}
		case azservicebus.CodeConnectionLost:
			return &ConnectionError{Op: op, Queue: queue, Err: err}
		case azservicebus.CodeNotFound:
			if op == OpSend {
				return &SendError{Queue: queue, Err: fmt.Errorf("queue not found: %w", err)}
			}
			return &ConnectionError{Op: op, Queue: queue, Err: fmt.Errorf("queue not found: %w", err)}
		}
	}

	if op == OpSend && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return &SendError{Queue: queue, Err: err}
	}
	return &ConnectionError{Op: op, Queue: queue, Err: err}
}

// isReceiveTimeout reports whether err only signals that the receive window elapsed.
func isReceiveTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sbErr *azservicebus.Error
	return errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout
}
