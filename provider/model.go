package provider

import "context"

// Message is one entry of the ordered message list sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message role values understood by chat-completion endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// System is shorthand for a system-role message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User is shorthand for a user-role message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Provider is implemented by upstream completion backends.
//
// StreamCompletion opens one streaming request. A non-2xx response is
// reported synchronously through the error return; after that the
// channel delivers Delta values as they decode, a single terminal
// StreamError on mid-stream failure, and is closed when the stream is
// exhausted or the context is cancelled. The sequence is finite and not
// restartable.
//
// Complete collects a whole response into a single string.
type Provider interface {
	StreamCompletion(ctx context.Context, model string, messages []Message) (<-chan StreamEvent, error)
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

// StreamEvent is the closed interface over streaming delivery variants.
type StreamEvent interface {
	streamEvent()
}

// Delta is one incremental text fragment of a streaming response.
type Delta struct {
	Content string
}

func (Delta) streamEvent() {}

// StreamError reports a failure observed mid-stream. It is always the
// last event before the channel closes.
type StreamError struct {
	Err error
}

func (StreamError) streamEvent() {}

func (e StreamError) Error() string {
	return e.Err.Error()
}
