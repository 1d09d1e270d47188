package messagepipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CKThompson00/workflow-automation/pkg/emulators"
	"github.com/CKThompson00/workflow-automation/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testQueue = "workflow-receive"

// newTestConfig returns a config suitable for emulator-backed tests.
func newTestConfig(queue string) *messagepipeline.ServiceBusConfig {
	return &messagepipeline.ServiceBusConfig{
		ConnectionString: "Endpoint=sb://emulator.servicebus.windows.net/;SharedAccessKeyName=test;SharedAccessKey=test",
		QueueName:        queue,
		ApplicationID:    "workflow-automation-test",
		MaxMessages:      10,
		ReceiveTimeout:   200 * time.Millisecond,
		CloseTimeout:     time.Second,
		FailurePolicy:    messagepipeline.FailurePolicyLeave,
	}
}

// setupEmulator creates an emulator with the test queue plus a sender and
// receiver bound to it.
func setupEmulator(t *testing.T) (*emulators.ServiceBusEmulator, *messagepipeline.ServiceBusSender, *messagepipeline.ServiceBusReceiver) {
	t.Helper()
	emu := emulators.NewServiceBusEmulator(testQueue)
	cfg := newTestConfig(testQueue)

	sender, err := messagepipeline.NewServiceBusSender(cfg, emu, zerolog.Nop())
	require.NoError(t, err)
	receiver, err := messagepipeline.NewServiceBusReceiver(cfg, emu, zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.Zero(t, emu.OpenScopes(), "every client, sender and receiver scope must be released")
	})
	return emu, sender, receiver
}

// receiveAll is a test helper that receives one batch and returns copies of the
// messages without acknowledging any of them.
func receiveAll(t *testing.T, ctx context.Context, r *messagepipeline.ServiceBusReceiver) []messagepipeline.Message {
	t.Helper()
	var out []messagepipeline.Message
	err := r.ReceiveBatch(ctx, func(_ context.Context, msgs []messagepipeline.Message) error {
		out = msgs
		return nil
	})
	require.NoError(t, err)
	return out
}

// recordingProcessor is a StreamProcessor that records payloads and can be
// told to fail for specific message IDs.
type recordingProcessor[T any] struct {
	mu       sync.Mutex
	payloads []*T
	failFor  map[string]error
}

func newRecordingProcessor[T any]() *recordingProcessor[T] {
	return &recordingProcessor[T]{failFor: make(map[string]error)}
}

func (p *recordingProcessor[T]) Process(_ context.Context, original messagepipeline.Message, payload *T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[original.ID]; ok {
		return err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingProcessor[T]) Payloads() []*T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*T, len(p.payloads))
	copy(out, p.payloads)
	return out
}

// ackRecorder builds Messages whose acknowledgment handles record their calls.
type ackRecorder struct {
	mu          sync.Mutex
	acked       int
	nacked      int
	deadLetters []string
	ackErr      error
}

func (a *ackRecorder) message(id string, body []byte, deliveryCount uint32) messagepipeline.Message {
	return messagepipeline.Message{
		MessageData:   messagepipeline.MessageData{ID: id, Payload: body},
		DeliveryCount: deliveryCount,
		Ack: func(context.Context) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.ackErr != nil {
				return a.ackErr
			}
			a.acked++
			return nil
		},
		Nack: func(context.Context) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.nacked++
			return nil
		},
		DeadLetter: func(_ context.Context, reason, _ string) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.deadLetters = append(a.deadLetters, reason)
			return nil
		},
	}
}
