// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the message database and the chunk store snapshot.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	ChunkStorePath string `yaml:"chunk_store_path"`
}

// LLMConfig holds settings for the OpenAI-compatible chat/embedding endpoints
// and the cross-encoder rerank endpoint. API keys come from the environment,
// never from the config file.
type LLMConfig struct {
	BaseURL             string `yaml:"base_url"`
	APIKeyEnv           string `yaml:"api_key_env"`
	ChatModel           string `yaml:"chat_model"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	RerankURL           string `yaml:"rerank_url"`
	RerankModel         string `yaml:"rerank_model"`
}

// RetrievalConfig holds retrieval pipeline settings.
type RetrievalConfig struct {
	K            int     `yaml:"k"`              // candidates per query variant
	Alpha        float64 `yaml:"alpha"`          // dense weight in hybrid fusion
	NumQueries   int     `yaml:"num_queries"`    // query expansion variants
	TopK         int     `yaml:"top_k"`          // final reranked context size
	MaxPerSource int     `yaml:"max_per_source"` // per-source diversity cap
	HistoryLimit int     `yaml:"history_limit"`  // recent messages handed to the generator
}

// IngestConfig holds chunking settings.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// WatchConfig holds directory auto-ingest settings. Watched files are ingested
// into the configured conversation partition.
type WatchConfig struct {
	Directories    []string `yaml:"directories"`
	Extensions     []string `yaml:"extensions"`
	ConversationID int64    `yaml:"conversation_id"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.ChunkStorePath = expandPath(cfg.Storage.ChunkStorePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
