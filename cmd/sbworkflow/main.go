// Command sbworkflow sends one workflow message to a Service Bus queue and
// then receives and processes the messages waiting on that queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CKThompson00/workflow-automation/internal/config"
	"github.com/CKThompson00/workflow-automation/internal/logging"
	"github.com/CKThompson00/workflow-automation/pkg/docstore"
	"github.com/CKThompson00/workflow-automation/pkg/messagepipeline"
	"github.com/CKThompson00/workflow-automation/pkg/types"
	"github.com/CKThompson00/workflow-automation/pkg/workflow"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(cfg.Log, os.Stdout, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		op, queue := errorContext(err, cfg.ServiceBus.QueueName)
		logger.Error().Err(err).Str("operation", op).Str("queue", queue).Msg("Workflow failed.")
		fmt.Fprintf(os.Stderr, "workflow failed during %s on queue %q: %v\n", op, queue, err)
		_ = closeLog.Close()
		os.Exit(1)
	}
	logger.Info().Msg("Workflow completed.")
	_ = closeLog.Close()
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	connector, err := messagepipeline.NewAzureConnector(cfg.ServiceBus, logger)
	if err != nil {
		return err
	}
	sender, err := messagepipeline.NewServiceBusSender(cfg.ServiceBus, connector, logger)
	if err != nil {
		return err
	}
	receiver, err := messagepipeline.NewServiceBusReceiver(cfg.ServiceBus, connector, logger)
	if err != nil {
		return err
	}

	processor, cleanup, err := newProcessor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	service, err := messagepipeline.NewBatchProcessingService[types.WorkflowMessage](
		messagepipeline.NewBatchProcessingConfig(cfg.ServiceBus),
		newTransformer(logger),
		processor,
		logger,
	)
	if err != nil {
		return err
	}

	runner, err := workflow.NewRunner(sender, receiver, service, logger)
	if err != nil {
		return err
	}

	msg := types.NewWorkflowMessage("123", "Hello from Go!", time.Now(), map[string]string{
		"key1": "value1",
		"key2": "value2",
	})
	result, err := runner.Run(ctx, msg)
	if err != nil {
		return err
	}
	for _, f := range result.Report.Failures {
		logger.Warn().
			Str("msg_id", f.MessageID).
			Str("kind", string(f.Kind)).
			Bool("abandoned", f.Abandoned).
			Bool("dead_lettered", f.DeadLettered).
			Err(f.Err).
			Msg("Message was not completed.")
	}
	return nil
}

// newProcessor builds the processor for the configured document store. The
// returned cleanup releases every store it opened.
func newProcessor(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (messagepipeline.StreamProcessor[types.WorkflowMessage], func(), error) {
	if cfg.DocStore.Backend == config.BackendNone {
		return workflow.LoggingProcessor(logger), func() {}, nil
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	docs, err := newDocumentStore(ctx, cfg.DocStore, logger)
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, func() {
		if err := docs.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close document store.")
		}
	})

	var repo workflow.Repository
	if cfg.Postgres.DatabaseURL == "" {
		repo = workflow.NewInMemoryRepository()
	} else {
		pool, err := workflow.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		cleanups = append(cleanups, pool.Close)
		pgRepo := workflow.NewPostgresRepository(pool, logger)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		repo = pgRepo
	}

	proc, err := workflow.NewProcessor(docs, repo, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return proc.Process, cleanup, nil
}

func newDocumentStore(ctx context.Context, cfg config.DocStoreConfig, logger zerolog.Logger) (workflow.DocumentStore, error) {
	var store workflow.DocumentStore
	var err error
	switch cfg.Backend {
	case config.BackendMemory:
		store = docstore.NewInMemoryStore[string, workflow.Document]()
	case config.BackendRedis:
		store, err = docstore.NewRedisStore[string, workflow.Document](ctx, cfg.Redis, logger)
	case config.BackendFirestore:
		store, err = docstore.ConnectFirestoreStore[string, workflow.Document](ctx, cfg.Firestore, logger)
	case config.BackendMongo:
		store, err = docstore.NewMongoStore[string, workflow.Document](ctx, cfg.Mongo, logger)
	default:
		return nil, fmt.Errorf("unknown document store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return docstore.NewCachedStore[string, workflow.Document](store, cfg.CacheSize)
	}
	return store, nil
}

// newTransformer parses workflow messages, rejecting empty bodies and bodies
// larger than a Standard tier namespace accepts before they reach the parser.
func newTransformer(logger zerolog.Logger) messagepipeline.MessageTransformer[types.WorkflowMessage] {
	return messagepipeline.WithPayloadValidation(
		messagepipeline.NewJSONTransformer[types.WorkflowMessage](),
		1,
		messagepipeline.MaxStandardMessageSize,
		logger,
	)
}

// errorContext extracts the failed operation and queue from err.
func errorContext(err error, queue string) (string, string) {
	var authErr *messagepipeline.AuthError
	var connErr *messagepipeline.ConnectionError
	var sendErr *messagepipeline.SendError
	switch {
	case errors.As(err, &authErr):
		return authErr.Op, orDefault(authErr.Queue, queue)
	case errors.As(err, &connErr):
		return connErr.Op, orDefault(connErr.Queue, queue)
	case errors.As(err, &sendErr):
		return messagepipeline.OpSend, orDefault(sendErr.Queue, queue)
	}
	var stepErr *workflow.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, queue
	}
	return "setup", queue
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
