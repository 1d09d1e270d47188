package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/CKThompson00/workflow-automation/pkg/docstore"
	"github.com/CKThompson00/workflow-automation/pkg/messagepipeline"
	"github.com/CKThompson00/workflow-automation/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReceivedTimestampLayout is the layout of Document.ReceivedTimestamp.
const ReceivedTimestampLayout = "2006-01-02T15:04:05Z"

// Document is the stored form of a received workflow message. Its ID doubles
// as the partition key and as the workflow id.
type Document struct {
	ID                string                `json:"id" firestore:"id" bson:"id"`
	PartitionKey      string                `json:"partitionKey" firestore:"partitionKey" bson:"partitionKey"`
	MessageData       types.WorkflowMessage `json:"messageData" firestore:"messageData" bson:"messageData"`
	ReceivedTimestamp string                `json:"receivedTimestamp" firestore:"receivedTimestamp" bson:"receivedTimestamp"`
}

// DocumentStore is the document store the processor writes to.
type DocumentStore = docstore.Store[string, Document]

// Processor starts a workflow for every received message: it stores the
// message as a new Document and creates the matching Initial workflow record.
type Processor struct {
	docs   DocumentStore
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewProcessor creates a Processor writing to docs and repo.
func NewProcessor(docs DocumentStore, repo Repository, logger zerolog.Logger) (*Processor, error) {
	if docs == nil {
		return nil, fmt.Errorf("document store cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("workflow repository cannot be nil")
	}
	return &Processor{
		docs:   docs,
		repo:   repo,
		logger: logger.With().Str("component", "WorkflowProcessor").Logger(),
		now:    time.Now,
	}, nil
}

// Process implements messagepipeline.StreamProcessor[types.WorkflowMessage].
// Any store error is returned so the message is not completed.
func (p *Processor) Process(ctx context.Context, msg messagepipeline.Message, payload *types.WorkflowMessage) error {
	if payload == nil {
		return fmt.Errorf("message %s has no payload", msg.ID)
	}
	now := p.now().UTC()
	docID := uuid.NewString()
	doc := Document{
		ID:                docID,
		PartitionKey:      docID,
		MessageData:       *payload,
		ReceivedTimestamp: now.Format(ReceivedTimestampLayout),
	}

	if err := p.docs.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("store message %s: %w", msg.ID, err)
	}
	p.logger.Info().Str("msg_id", msg.ID).Str("document_id", docID).Msg("Message stored.")

	rec := Record{
		ID:          docID,
		Status:      StatusInitial,
		CurrentStep: FirstStep,
		CreatedDate: now,
	}
	if err := p.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("create workflow for message %s: %w", msg.ID, err)
	}
	p.logger.Info().
		Str("workflow_id", docID).
		Str("status", string(rec.Status)).
		Int("current_step", rec.CurrentStep).
		Msg("Workflow record created.")
	return nil
}

// LoggingProcessor returns a StreamProcessor that only logs each payload.
func LoggingProcessor(logger zerolog.Logger) messagepipeline.StreamProcessor[types.WorkflowMessage] {
	logger = logger.With().Str("component", "LoggingProcessor").Logger()
	return func(_ context.Context, msg messagepipeline.Message, payload *types.WorkflowMessage) error {
		logger.Info().
			Str("msg_id", msg.ID).
			Str("id", payload.ID).
			Str("message", payload.Message).
			Str("timestamp", payload.Timestamp).
			Interface("data", payload.Data).
			Msg("Processed message.")
		return nil
	}
}
