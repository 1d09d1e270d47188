package types

import (
	"time"
)

// TimestampLayout is the ISO-8601 layout used for WorkflowMessage.Timestamp.
const TimestampLayout = time.RFC3339

// WorkflowMessage is the JSON body exchanged over the workflow queue.
// Consumers must tolerate unknown or missing fields; no schema is enforced
// beyond the body being valid JSON.
type WorkflowMessage struct {
	ID        string            `json:"id" firestore:"id" bson:"id"`
	Message   string            `json:"message" firestore:"message" bson:"message"`
	Timestamp string            `json:"timestamp" firestore:"timestamp" bson:"timestamp"`
	Data      map[string]string `json:"data" firestore:"data" bson:"data"`
}

// NewWorkflowMessage builds a message stamped with the given time in UTC.
func NewWorkflowMessage(id, message string, at time.Time, data map[string]string) WorkflowMessage {
	return WorkflowMessage{
		ID:        id,
		Message:   message,
		Timestamp: at.UTC().Format(TimestampLayout),
		Data:      data,
	}
}

// ParsedTimestamp returns the Timestamp field as a time.Time.
func (m WorkflowMessage) ParsedTimestamp() (time.Time, error) {
	return time.Parse(TimestampLayout, m.Timestamp)
}
