// Package chat orchestrates one query turn: retrieval, reranking, citation
// building, table short-circuiting, answer generation, and persistence.
package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
)

// Engine runs the retrieval-and-answer pipeline for one conversation turn.
type Engine struct {
	db        storage.Storage
	searcher  *retrieval.MultiQuery
	reranker  *retrieval.Reranker
	generator *answer.Generator
	cfg       *config.RetrievalConfig
	logger    *zap.Logger
}

// NewEngine creates an engine with the given dependencies.
func NewEngine(
	db storage.Storage,
	searcher *retrieval.MultiQuery,
	reranker *retrieval.Reranker,
	generator *answer.Generator,
	cfg *config.RetrievalConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:        db,
		searcher:  searcher,
		reranker:  reranker,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Result is the outcome of one turn. Completed is false when the client
// disconnected mid-stream; in that case no assistant message was persisted.
type Result struct {
	ConversationID int64                    `json:"conversation_id"`
	Answer         string                   `json:"answer"`
	Sources        []string                 `json:"sources"`
	Contexts       []string                 `json:"contexts"`
	Tables         []models.StructuredTable `json:"tables,omitempty"`
	Completed      bool                     `json:"-"`
}

// turn holds per-request pipeline state between preparation and generation.
type turn struct {
	conversationID int64
	query          string
	history        []models.HistoryPair
	sources        []string
	contexts       []string
	tables         []models.StructuredTable
	fixedAnswer    string // when set, generation is skipped
}

// EnsureConversation resolves id to an existing conversation, creating a new
// one when id is zero or does not resolve.
func (e *Engine) EnsureConversation(ctx context.Context, id int64) (int64, error) {
	if id != 0 {
		if _, err := e.db.GetConversation(ctx, id); err == nil {
			return id, nil
		}
		e.logger.Debug("conversation not found, creating a new one", zap.Int64("requested_id", id))
	}
	convo, err := e.db.CreateConversation(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	return convo.ID, nil
}

// prepare runs everything up to (but not including) answer generation:
// conversation resolution, user-message persistence, history loading,
// multi-query retrieval, reranking, citation building, and the table-request
// short circuit.
func (e *Engine) prepare(ctx context.Context, req *models.QueryRequest) (*turn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	conversationID, err := e.EnsureConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	// History covers previous turns only; the current query is appended by the
	// generator itself.
	previous, err := e.db.RecentMessages(ctx, conversationID, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := make([]models.HistoryPair, 0, len(previous))
	for _, m := range previous {
		history = append(history, models.HistoryPair{Role: m.Role, Content: m.Content})
	}

	if err := e.db.AddMessage(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        req.Query,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	t := &turn{conversationID: conversationID, query: req.Query, history: history}

	pool, err := e.searcher.Search(ctx, req.Query, conversationID, req.K)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		t.fixedAnswer = answer.InsufficientInfo
		return t, nil
	}

	docs, err := e.reranker.Rerank(ctx, req.Query, pool, e.cfg.TopK, e.cfg.MaxPerSource)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		t.fixedAnswer = answer.InsufficientInfo
		return t, nil
	}
	t.sources, t.contexts = answer.BuildCitations(docs)

	if answer.IsExplicitTableRequest(req.Query) {
		t.tables = answer.ExtractTables(docs)
		if len(t.tables) > 0 {
			t.fixedAnswer = answer.TableAck
		} else {
			t.fixedAnswer = answer.TableNotFound
		}
	}
	return t, nil
}

// finalize persists the assistant turn. Only called on natural completion;
// a cancelled stream leaves no partial assistant message. Persistence uses a
// fresh context so a disconnect arriving just after completion cannot lose
// the turn.
func (e *Engine) finalize(t *turn, answerText string) error {
	msg := &models.Message{
		ConversationID: t.conversationID,
		Role:           models.RoleAssistant,
		Content:        answerText,
		Meta:           &models.MessageMeta{Sources: t.sources, Tables: t.tables},
	}
	if err := e.db.AddMessage(context.Background(), msg); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	return nil
}

func (t *turn) result(answerText string, completed bool) *Result {
	return &Result{
		ConversationID: t.conversationID,
		Answer:         answerText,
		Sources:        t.sources,
		Contexts:       t.contexts,
		Tables:         t.tables,
		Completed:      completed,
	}
}

// Ask runs one complete turn and returns the full answer.
func (e *Engine) Ask(ctx context.Context, req *models.QueryRequest) (*Result, error) {
	t, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	answerText := t.fixedAnswer
	if answerText == "" {
		answerText, err = e.generator.Generate(ctx, t.query, t.contexts, t.history)
		if err != nil {
			return nil, err
		}
	}
	if err := e.finalize(t, answerText); err != nil {
		return nil, err
	}
	return t.result(answerText, true), nil
}
