package messagepipeline

import (
	"context"
	"encoding/json"
)

// NewJSONTransformer returns a MessageTransformer that decodes the message body
// as JSON into a new T. A body that does not decode yields a *ParseError.
func NewJSONTransformer[T any]() MessageTransformer[T] {
	return func(_ context.Context, msg *Message) (*T, bool, error) {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, false, &ParseError{MessageID: msg.ID, Err: err}
		}
		return &payload, false, nil
	}
}
