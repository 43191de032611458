package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/conversations.db"
	}
	if cfg.Storage.ChunkStorePath == "" {
		cfg.Storage.ChunkStorePath = "/usr/local/var/kotae/data/indices/chunks.json"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "gpt-4o-mini"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.EmbeddingDimensions == 0 {
		cfg.LLM.EmbeddingDimensions = 1536
	}
	if cfg.LLM.RerankModel == "" {
		cfg.LLM.RerankModel = "mxbai-rerank-xsmall-v1"
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 5
	}
	if cfg.Retrieval.Alpha == 0 {
		cfg.Retrieval.Alpha = 0.5
	}
	if cfg.Retrieval.NumQueries == 0 {
		cfg.Retrieval.NumQueries = 3
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MaxPerSource == 0 {
		cfg.Retrieval.MaxPerSource = 2
	}
	if cfg.Retrieval.HistoryLimit == 0 {
		cfg.Retrieval.HistoryLimit = 10
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 800
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
}
