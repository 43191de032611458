// Package llm provides the chat-completion client used for query expansion
// and answer generation.
package llm

import "context"

// ChatMessage is one message in a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client completes chat conversations, optionally streaming tokens.
type Client interface {
	// Complete returns the full completion for msgs.
	Complete(ctx context.Context, msgs []ChatMessage) (string, error)

	// Stream starts a streaming completion. Tokens arrive on the first
	// channel, which is closed when the stream ends; the second channel
	// receives at most one error and is closed with the stream. Cancelling
	// ctx terminates the stream.
	Stream(ctx context.Context, msgs []ChatMessage) (<-chan string, <-chan error)
}
