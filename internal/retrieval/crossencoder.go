package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// HTTPCrossEncoder calls an external rerank service (Jina/Cohere-style
// /rerank endpoint) to score query-document pairs.
type HTTPCrossEncoder struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// HTTPCrossEncoderConfig configures the rerank client. APIKeyEnv names the
// environment variable holding the key; an empty key sends no Authorization
// header (for self-hosted endpoints).
type HTTPCrossEncoderConfig struct {
	URL       string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewHTTPCrossEncoder creates a rerank client from cfg.
func NewHTTPCrossEncoder(cfg HTTPCrossEncoderConfig) (*HTTPCrossEncoder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rerank URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCrossEncoder{
		url:    cfg.URL,
		apiKey: os.Getenv(cfg.APIKeyEnv),
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score sends one batched rerank request and returns a score per input text,
// in input order.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(rerankRequest{Model: e.model, Query: query, Documents: texts, TopN: len(texts)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	scores := make([]float64, len(texts))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}
