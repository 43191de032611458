package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// AskStream runs one turn, delivering the answer incrementally through emit.
// emit is called once per token; before each emission the request context is
// checked, and a cancelled context or an emit failure terminates the stream
// cleanly: no error, no assistant-message persistence, Completed=false.
// Persistence happens only when the stream finishes naturally.
func (e *Engine) AskStream(ctx context.Context, req *models.QueryRequest, emit func(token string) error) (*Result, error) {
	t, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if t.fixedAnswer != "" {
		if ctx.Err() != nil || emit(t.fixedAnswer) != nil {
			return t.result("", false), nil
		}
		if err := e.finalize(t, t.fixedAnswer); err != nil {
			return nil, err
		}
		return t.result(t.fixedAnswer, true), nil
	}

	tokens, errs := e.generator.Stream(ctx, t.query, t.contexts, t.history)
	var full strings.Builder
	for token := range tokens {
		if ctx.Err() != nil {
			return t.result("", false), nil
		}
		if emit(token) != nil {
			return t.result("", false), nil
		}
		full.WriteString(token)
	}
	if err := <-errs; err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return t.result("", false), nil
		}
		return nil, err
	}

	answerText := full.String()
	if err := e.finalize(t, answerText); err != nil {
		return nil, err
	}
	return t.result(answerText, true), nil
}
