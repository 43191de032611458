package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
)

const expandSystemPrompt = "You rewrite queries for information retrieval."

const expandPromptTemplate = `Rewrite the user's search query in %d different ways.
Keep each variation short and natural.
Do NOT number the list.
Only return the rewritten queries, one per line.

Query:
%s`

// Expander produces paraphrases of a query via the chat model. It is
// fail-safe: any failure yields an empty list, which callers must treat as
// "use the original query only", never as an error.
type Expander struct {
	client llm.Client
	logger *zap.Logger
}

// NewExpander creates a query expander using client.
func NewExpander(client llm.Client, logger *zap.Logger) *Expander {
	return &Expander{client: client, logger: logger}
}

// Expand asks for n alternate phrasings, one per line. Returns nil on any failure.
func (e *Expander) Expand(ctx context.Context, query string, n int) []string {
	if n <= 0 {
		return nil
	}
	out, err := e.client.Complete(ctx, []llm.ChatMessage{
		{Role: "system", Content: expandSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(expandPromptTemplate, n, query)},
	})
	if err != nil {
		e.logger.Warn("query expansion failed, falling back to original query", zap.Error(err))
		return nil
	}
	var variants []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) == n {
			break
		}
	}
	return variants
}
