package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CKThompson00/workflow-automation/pkg/docstore"
	"github.com/CKThompson00/workflow-automation/pkg/emulators"
	"github.com/CKThompson00/workflow-automation/pkg/messagepipeline"
	"github.com/CKThompson00/workflow-automation/pkg/types"
	"github.com/CKThompson00/workflow-automation/pkg/workflow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testQueue = "workflow-intake"

// recordingDocs is an in-memory DocumentStore that remembers the order of
// written keys and can be told to fail writes.
type recordingDocs struct {
	*docstore.InMemoryStore[string, workflow.Document]
	mu     sync.Mutex
	keys   []string
	putErr error
}

func newRecordingDocs() *recordingDocs {
	return &recordingDocs{InMemoryStore: docstore.NewInMemoryStore[string, workflow.Document]()}
}

func (d *recordingDocs) Put(ctx context.Context, key string, doc workflow.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.putErr != nil {
		return d.putErr
	}
	d.keys = append(d.keys, key)
	return d.InMemoryStore.Put(ctx, key, doc)
}

func (d *recordingDocs) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

// failingRepository fails every Create.
type failingRepository struct {
	*workflow.InMemoryRepository
}

func (failingRepository) Create(context.Context, workflow.Record) error {
	return errors.New("database unavailable")
}

func newTestConfig() *messagepipeline.ServiceBusConfig {
	return &messagepipeline.ServiceBusConfig{
		ConnectionString: "Endpoint=sb://emulator.servicebus.windows.net/;SharedAccessKeyName=test;SharedAccessKey=test",
		QueueName:        testQueue,
		ApplicationID:    "workflow-automation-test",
		MaxMessages:      10,
		ReceiveTimeout:   200 * time.Millisecond,
		CloseTimeout:     time.Second,
		FailurePolicy:    messagepipeline.FailurePolicyLeave,
	}
}

// intakePipeline wires an emulator-backed sender, receiver and processing
// service around proc.
type intakePipeline struct {
	emu      *emulators.ServiceBusEmulator
	sender   *messagepipeline.ServiceBusSender
	receiver *messagepipeline.ServiceBusReceiver
	service  *messagepipeline.BatchProcessingService[types.WorkflowMessage]
}

func newIntakePipeline(t *testing.T, proc messagepipeline.StreamProcessor[types.WorkflowMessage]) *intakePipeline {
	t.Helper()
	emu := emulators.NewServiceBusEmulator(testQueue)
	cfg := newTestConfig()

	sender, err := messagepipeline.NewServiceBusSender(cfg, emu, zerolog.Nop())
	require.NoError(t, err)
	receiver, err := messagepipeline.NewServiceBusReceiver(cfg, emu, zerolog.Nop())
	require.NoError(t, err)
	service, err := messagepipeline.NewBatchProcessingService[types.WorkflowMessage](
		messagepipeline.NewBatchProcessingConfig(cfg),
		messagepipeline.NewJSONTransformer[types.WorkflowMessage](),
		proc,
		zerolog.Nop(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.Zero(t, emu.OpenScopes(), "every broker scope must be released")
	})
	return &intakePipeline{emu: emu, sender: sender, receiver: receiver, service: service}
}
