package chat

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/chunkstore"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
)

// scriptedClient is an llm.Client returning canned output and recording calls.
type scriptedClient struct {
	answer        string
	tokens        []string
	completeCalls int
	lastMessages  []llm.ChatMessage
}

func (c *scriptedClient) Complete(ctx context.Context, msgs []llm.ChatMessage) (string, error) {
	c.completeCalls++
	c.lastMessages = msgs
	return c.answer, nil
}

func (c *scriptedClient) Stream(ctx context.Context, msgs []llm.ChatMessage) (<-chan string, <-chan error) {
	c.lastMessages = msgs
	tokens := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(tokens)
		defer close(errs)
		for _, tok := range c.tokens {
			select {
			case tokens <- tok:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return tokens, errs
}

// containsScorer scores 0.9 for texts containing term, 0.1 otherwise.
type containsScorer struct{ term string }

func (s *containsScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	out := make([]float64, len(texts))
	for i, t := range texts {
		if strings.Contains(t, s.term) {
			out[i] = 0.9
		} else {
			out[i] = 0.1
		}
	}
	return out, nil
}

type testEnv struct {
	engine *Engine
	store  chunkstore.Store
	db     storage.Storage
	client *scriptedClient
}

func newTestEnv(t *testing.T, client *scriptedClient) *testEnv {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := chunkstore.NewMemoryStore(8)
	if err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewMockEmbedder(8)

	fuser := retrieval.NewFuser(retrieval.NewLexical(store), retrieval.NewDense(store, emb))
	// numQueries=0 disables expansion so the scripted client only serves generation.
	expander := retrieval.NewExpander(client, zap.NewNop())
	searcher := retrieval.NewMultiQuery(fuser, expander, 0.5, 0, zap.NewNop())
	reranker := retrieval.NewReranker(&containsScorer{term: "revenue"})

	cfg := &config.RetrievalConfig{K: 5, TopK: 5, MaxPerSource: 2, HistoryLimit: 10}
	engine := NewEngine(db, searcher, reranker, answer.NewGenerator(client), cfg, zap.NewNop())
	return &testEnv{engine: engine, store: store, db: db, client: client}
}

func (env *testEnv) ingest(t *testing.T, conversationID int64, source string, texts []string, metas []models.Metadata) {
	t.Helper()
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)
	embeddings, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if metas == nil {
		metas = make([]models.Metadata, len(texts))
		for i := range metas {
			metas[i] = models.Metadata{models.MetaSource: source, models.MetaType: models.ChunkTypeText}
		}
	}
	if err := env.store.Add(ctx, "owner", texts, embeddings, metas, conversationID); err != nil {
		t.Fatal(err)
	}
}

func TestAsk_FullPipeline(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{answer: "Revenue grew 12% in fiscal 2024 [1]."}
	env := newTestEnv(t, client)

	convo, err := env.db.CreateConversation(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	env.ingest(t, convo.ID, "a.pdf", []string{"revenue grew 12 percent in fiscal 2024"}, nil)
	env.ingest(t, convo.ID, "b.docx", []string{"unrelated notes about gardening"}, nil)

	res, err := env.engine.Ask(ctx, &models.QueryRequest{Query: "how did revenue grow?", ConversationID: convo.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != client.answer {
		t.Errorf("answer: %q", res.Answer)
	}
	if res.ConversationID != convo.ID {
		t.Errorf("conversation id: %d", res.ConversationID)
	}
	if len(res.Sources) == 0 || res.Sources[0] != "a.pdf" {
		t.Errorf("top source must be the revenue document: %v", res.Sources)
	}
	if len(res.Contexts) == 0 || !strings.HasPrefix(res.Contexts[0], "[1] (a.pdf)\n") {
		t.Errorf("context block format: %v", res.Contexts)
	}
	if !res.Completed {
		t.Error("non-streaming turns always complete")
	}

	msgs, err := env.db.ListMessages(ctx, convo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Errorf("roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Meta == nil || len(msgs[1].Meta.Sources) == 0 {
		t.Error("assistant message must carry its sources")
	}
}

func TestAsk_EmptyPartition(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{answer: "should not be generated"}
	env := newTestEnv(t, client)

	res, err := env.engine.Ask(ctx, &models.QueryRequest{Query: "anything at all"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != answer.InsufficientInfo {
		t.Errorf("answer: %q", res.Answer)
	}
	if client.completeCalls != 0 {
		t.Error("generation must be skipped when retrieval is empty")
	}
	if res.ConversationID == 0 {
		t.Error("a conversation must be created for an unknown id")
	}
	// The degraded turn is still recorded.
	msgs, _ := env.db.ListMessages(ctx, res.ConversationID)
	if len(msgs) != 2 {
		t.Errorf("expected 2 persisted messages, got %d", len(msgs))
	}
}

func TestAsk_InvalidQuery(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	if _, err := env.engine.Ask(context.Background(), &models.QueryRequest{Query: ""}); err == nil {
		t.Error("empty query must be rejected")
	}
}

func TestAsk_TableShortCircuit(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{answer: "should not be generated"}
	env := newTestEnv(t, client)

	convo, err := env.db.CreateConversation(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	table := models.StructuredTable{
		Title:   "Revenue",
		Columns: []string{"Year", "Total"},
		Rows:    [][]string{{"2023", "100"}, {"2024", "112"}},
	}
	texts := []string{
		"TABLE: Revenue | Year=2023 | Total=100",
		"TABLE: Revenue | Year=2024 | Total=112",
	}
	metas := []models.Metadata{
		{models.MetaSource: "report.xlsx", models.MetaType: models.ChunkTypeTableRow, models.MetaTable: table},
		{models.MetaSource: "report.xlsx", models.MetaType: models.ChunkTypeTableRow, models.MetaTable: table},
	}
	env.ingest(t, convo.ID, "report.xlsx", texts, metas)

	res, err := env.engine.Ask(ctx, &models.QueryRequest{Query: "Show me the full table of Revenue", ConversationID: convo.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != answer.TableAck {
		t.Errorf("answer: %q", res.Answer)
	}
	if len(res.Tables) != 1 {
		t.Fatalf("expected 1 deduplicated table, got %d", len(res.Tables))
	}
	if res.Tables[0].Title != "Revenue" || len(res.Tables[0].Rows) != 2 {
		t.Errorf("table: %+v", res.Tables[0])
	}
	if client.completeCalls != 0 {
		t.Error("table requests must not invoke the model")
	}

	msgs, _ := env.db.ListMessages(ctx, convo.ID)
	last := msgs[len(msgs)-1]
	if last.Meta == nil || len(last.Meta.Tables) != 1 {
		t.Error("assistant message must carry the returned tables")
	}
}

func TestAsk_TableRequestWithoutTables(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{answer: "should not be generated"}
	env := newTestEnv(t, client)

	convo, _ := env.db.CreateConversation(ctx, "")
	env.ingest(t, convo.ID, "a.pdf", []string{"revenue grew but there is no table here"}, nil)

	res, err := env.engine.Ask(ctx, &models.QueryRequest{Query: "show me the table", ConversationID: convo.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != answer.TableNotFound {
		t.Errorf("answer: %q", res.Answer)
	}
	if client.completeCalls != 0 {
		t.Error("table requests must not invoke the model")
	}
}

func TestAsk_HistoryPassedToGenerator(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{answer: "second answer"}
	env := newTestEnv(t, client)

	convo, _ := env.db.CreateConversation(ctx, "")
	env.ingest(t, convo.ID, "a.pdf", []string{"revenue grew 12 percent"}, nil)

	if _, err := env.engine.Ask(ctx, &models.QueryRequest{Query: "first revenue question", ConversationID: convo.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Ask(ctx, &models.QueryRequest{Query: "second revenue question", ConversationID: convo.ID}); err != nil {
		t.Fatal(err)
	}

	var sawFirstTurn bool
	for _, m := range client.lastMessages {
		if m.Content == "first revenue question" {
			sawFirstTurn = true
		}
		if m.Role == "user" && m.Content == "second revenue question" && !sawFirstTurn {
			t.Error("history must precede the current query")
		}
	}
	if !sawFirstTurn {
		t.Error("previous turn missing from generator messages")
	}
}

func TestEnsureConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &scriptedClient{})

	created, err := env.engine.EnsureConversation(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if created == 0 {
		t.Fatal("expected a new conversation")
	}
	same, err := env.engine.EnsureConversation(ctx, created)
	if err != nil {
		t.Fatal(err)
	}
	if same != created {
		t.Errorf("existing id must be kept: %d vs %d", same, created)
	}
	fresh, err := env.engine.EnsureConversation(ctx, 99999)
	if err != nil {
		t.Fatal(err)
	}
	if fresh == 99999 {
		t.Error("unresolvable id must map to a new conversation")
	}
}
