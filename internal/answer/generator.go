package answer

import (
	"context"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

// InsufficientInfo is the fixed answer for degraded input: an empty partition,
// an empty candidate pool, or a source that yielded no text.
const InsufficientInfo = "I don't have enough information in the ingested documents to answer that."

const generatorSystemPrompt = "You are a helpful assistant. Answer using only the provided context. " +
	"Cite sources with their bracketed numbers, e.g. [1]. If the context does not contain the answer, say so."

// Generator produces answers grounded in citation-formatted context blocks.
type Generator struct {
	client llm.Client
}

// NewGenerator creates an answer generator using client.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

// buildMessages assembles the chat transcript: system prompt, context block,
// conversation history (oldest first), then the current question.
func buildMessages(query string, contexts []string, history []models.HistoryPair) []llm.ChatMessage {
	msgs := []llm.ChatMessage{
		{Role: "system", Content: generatorSystemPrompt},
		{Role: "system", Content: "Context:\n" + strings.Join(contexts, "\n\n")},
	}
	for _, h := range history {
		msgs = append(msgs, llm.ChatMessage{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, llm.ChatMessage{Role: "user", Content: query})
	return msgs
}

// Generate returns the complete answer for query grounded in contexts.
func (g *Generator) Generate(ctx context.Context, query string, contexts []string, history []models.HistoryPair) (string, error) {
	return g.client.Complete(ctx, buildMessages(query, contexts, history))
}

// Stream starts a streaming answer. See llm.Client.Stream for channel semantics.
func (g *Generator) Stream(ctx context.Context, query string, contexts []string, history []models.HistoryPair) (<-chan string, <-chan error) {
	return g.client.Stream(ctx, buildMessages(query, contexts, history))
}
