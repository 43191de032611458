// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/chunkstore"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	embeddingCacheCap = 2048
)

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence (for development), so running
// "kotae server" from the project dir uses the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys are commonly kept in a .env during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "conversations":
		runConversations()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Chunks   chunkstore.Store
	Embedder embedding.Embedder
	Engine   *chat.Engine
	Ingestor *ingest.Ingestor
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Chunks != nil {
		_ = c.Chunks.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	chunks, err := chunkstore.NewMemoryStore(cfg.LLM.EmbeddingDimensions)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize chunk store: %w", err)
	}
	if cfg.Storage.ChunkStorePath != "" {
		if loadErr := chunks.Load(cfg.Storage.ChunkStorePath); loadErr != nil {
			logger.Warn("chunk store load skipped",
				zap.String("path", cfg.Storage.ChunkStorePath), zap.Error(loadErr))
		}
	}

	openaiEmbedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
		BaseURL:    cfg.LLM.BaseURL,
		APIKeyEnv:  cfg.LLM.APIKeyEnv,
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: cfg.LLM.EmbeddingDimensions,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	embedder := embedding.NewCachedEmbedder(openaiEmbedder, embeddingCacheCap)

	client, err := llm.NewOpenAIClient(llm.OpenAIClientConfig{
		BaseURL:   cfg.LLM.BaseURL,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
		Model:     cfg.LLM.ChatModel,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	lexical := retrieval.NewLexical(chunks)
	dense := retrieval.NewDense(chunks, embedder)
	fuser := retrieval.NewFuser(lexical, dense)
	expander := retrieval.NewExpander(client, logger)
	searcher := retrieval.NewMultiQuery(fuser, expander, cfg.Retrieval.Alpha, cfg.Retrieval.NumQueries, logger)

	var encoder retrieval.CrossEncoder
	if cfg.LLM.RerankURL != "" {
		encoder, err = retrieval.NewHTTPCrossEncoder(retrieval.HTTPCrossEncoderConfig{
			URL:       cfg.LLM.RerankURL,
			APIKeyEnv: cfg.LLM.APIKeyEnv,
			Model:     cfg.LLM.RerankModel,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize reranker: %w", err)
		}
	} else {
		logger.Info("no rerank endpoint configured, using embedding similarity scoring")
		encoder = retrieval.NewBiEncoderScorer(embedder)
	}
	reranker := retrieval.NewReranker(encoder)

	generator := answer.NewGenerator(client)
	engine := chat.NewEngine(store, searcher, reranker, generator, &cfg.Retrieval, logger)
	ingestor := ingest.NewIngestor(chunks, embedder, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, logger)

	return &Components{
		Storage:  store,
		Chunks:   chunks,
		Embedder: embedder,
		Engine:   engine,
		Ingestor: ingestor,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	extractor := ingest.NewExtractor()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		ing := components.Ingestor
		eng := components.Engine
		watchSvc = watcher.New(cfg.Watch.Directories, cfg.Watch.Extensions, func(path string) {
			ctx := context.Background()
			content, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("watch read failed", zap.String("path", path), zap.Error(err))
				return
			}
			doc, err := extractor.ExtractBytes(content, filepath.Ext(path))
			if err != nil {
				logger.Warn("watch extract failed", zap.String("path", path), zap.Error(err))
				return
			}
			convoID, err := eng.EnsureConversation(ctx, cfg.Watch.ConversationID)
			if err != nil {
				logger.Warn("watch conversation resolve failed", zap.Error(err))
				return
			}
			n, err := ing.IngestExtracted(ctx, convoID, filepath.Base(path), doc)
			if err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("watched file ingested", zap.String("path", path), zap.Int("chunks", n))
		}, logger)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExisting()
	}

	srv := server.NewServer(
		components.Engine,
		components.Ingestor,
		extractor,
		components.Storage,
		components.Chunks,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.ChunkStorePath != "" {
		if err := components.Chunks.Save(cfg.Storage.ChunkStorePath); err != nil {
			logger.Warn("chunk store save failed",
				zap.String("path", cfg.Storage.ChunkStorePath), zap.Error(err))
		}
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// The chunk store lives in the server process, so ask/ingest/conversations go
// through the HTTP API of a running server rather than opening storage
// directly.

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	conversationID := fs.Int64("conversation", 0, "conversation id (0 = new conversation)")
	k := fs.Int("k", 0, "candidates per query variant (0 = server default)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}

	body, _ := json.Marshal(models.QueryRequest{
		Query:          query,
		K:              *k,
		ConversationID: *conversationID,
	})
	resp, err := http.Post(*serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var result chat.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(result.Answer)
	if len(result.Tables) > 0 {
		for _, table := range result.Tables {
			fmt.Println()
			printTable(&table)
		}
	}
	if len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range result.Sources {
			fmt.Printf("  [%d] %s\n", i+1, src)
		}
	}
	fmt.Printf("\nconversation: %d\n", result.ConversationID)
}

func printTable(t *models.StructuredTable) {
	if t.Title != "" {
		fmt.Printf("%s\n", t.Title)
	}
	fmt.Println(strings.Join(t.Columns, " | "))
	for _, row := range t.Rows {
		fmt.Println(strings.Join(row, " | "))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	conversationID := fs.Int64("conversation", 0, "conversation id (0 = new conversation)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-url>")
		os.Exit(1)
	}
	target := fs.Arg(0)

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		body, _ := json.Marshal(map[string]interface{}{
			"url":             target,
			"conversation_id": *conversationID,
		})
		resp, err := http.Post(*serverURL+"/api/v1/ingest/url", "application/json", bytes.NewReader(body))
		printIngestResult(resp, err)
		return
	}

	file, err := os.Open(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(target))
	if err == nil {
		_, err = io.Copy(part, file)
	}
	if err == nil && *conversationID != 0 {
		err = mw.WriteField("conversation_id", fmt.Sprintf("%d", *conversationID))
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build request: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(*serverURL+"/api/v1/ingest", mw.FormDataContentType(), &buf)
	printIngestResult(resp, err)
}

func printIngestResult(resp *http.Response, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Ingest failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out struct {
		ConversationID int64  `json:"conversation_id"`
		Source         string `json:"source"`
		Chunks         int    `json:"chunks"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %s: %d chunk(s) into conversation %d\n", out.Source, out.Chunks, out.ConversationID)
}

func runConversations() {
	fs := flag.NewFlagSet("conversations", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	sub := "list"
	if fs.NArg() > 0 {
		sub = fs.Arg(0)
	}
	switch sub {
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/conversations")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		var convos []models.Conversation
		if err := json.NewDecoder(resp.Body).Decode(&convos); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, c := range convos {
			title := c.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%d\t%s\t%s\n", c.ID, c.CreatedAt.Format(time.DateTime), title)
		}
	case "delete":
		if fs.NArg() < 2 {
			fmt.Println("Usage: kotae conversations delete <id>")
			os.Exit(1)
		}
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/conversations/"+fs.Arg(1), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Deleted conversation %s\n", fs.Arg(1))
	default:
		fmt.Printf("Unknown conversations subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kotae - Question answering over your documents

Usage:
  kotae server [flags]                 Start the HTTP server
  kotae ask [flags] <question>         Ask a question (requires running server)
  kotae ingest [flags] <file-or-url>   Ingest a document (requires running server)
  kotae conversations [list|delete]    Manage conversations
  kotae version                        Show version
  kotae help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string        Server URL (default: http://localhost:8080)
  --conversation int     Conversation id; 0 starts a new conversation
  --k int                Candidates per query variant (0 = server default)

Ingest Flags:
  --server string        Server URL (default: http://localhost:8080)
  --conversation int     Conversation id; 0 starts a new conversation

Examples:
  kotae server
  kotae ingest report.pdf
  kotae ingest --conversation 3 https://example.com/article
  kotae ask --conversation 3 "What was revenue growth last quarter?"
  kotae ask --conversation 3 "Show me the full table"
  kotae conversations list
  kotae conversations delete 3`)
}
