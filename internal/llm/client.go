package llm

import "context"

// Message is one role-tagged entry in the prompt sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single completion call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// Response carries the extracted reply text.
type Response struct {
	Text       string
	StopReason string
}

// Client is a synchronous completion backend. Implementations must honor
// ctx cancellation so a timed-out call does not leak the connection.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
