package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message represents one turn in a chat transcript.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a complete model-requested tool invocation. Arguments is the
// raw JSON text as emitted by the model; it is only meaningful once the
// streamed turn has finished.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a callable tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema for the arguments object
}

// ToolCallDelta is one streamed fragment of a tool call. Fragments for the
// same turn share a positional Index; Name and ID arrive with the first
// fragment, ArgumentsDelta chunks accumulate across fragments.
type ToolCallDelta struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// StreamEvent is one decoded fragment of a streamed completion. Exactly one
// of the fields is meaningful per event: a content delta, a tool-call delta,
// or a finish signal.
type StreamEvent struct {
	ContentDelta  string
	ToolCallDelta *ToolCallDelta
	FinishReason  string // non-empty marks the end of the assistant turn
}

// CompletionClient opens one streaming chat-completion call. Events are
// delivered in arrival order through onEvent until the service signals
// completion; a non-nil return is always a *TransportError.
type CompletionClient interface {
	StreamChat(ctx context.Context, messages []Message, tools []ToolDefinition, onEvent func(StreamEvent)) error
}

// TransportError is a network- or service-level failure while streaming.
// Callers must treat it as fatal to the surrounding conversation, not as a
// retryable tool failure.
type TransportError struct {
	Status int // HTTP status, 0 for connection-level failures
	Err    error
	Body   string
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion service returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("completion stream failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
