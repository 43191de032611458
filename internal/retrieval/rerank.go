package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// CrossEncoder scores (query, text) pairs with a relevance model in one
// batched call. Scores are returned in input order, higher is more relevant.
type CrossEncoder interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker scores a candidate pool against the original query and selects a
// final top-k under a per-source diversity cap, so one long document cannot
// monopolize the context window.
type Reranker struct {
	encoder CrossEncoder
}

// NewReranker creates a reranker using encoder.
func NewReranker(encoder CrossEncoder) *Reranker {
	return &Reranker{encoder: encoder}
}

// Rerank drops candidates without text, scores the rest in one batched
// cross-encoder call, sorts descending by score (stable, so ties keep pool
// order), then greedily admits candidates whose source has been admitted fewer
// than maxPerSource times, stopping at topK. Returns nil for an empty pool.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []models.Candidate, topK, maxPerSource int) ([]models.Candidate, error) {
	if maxPerSource <= 0 {
		maxPerSource = 2
	}
	normalized := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Text == "" {
			continue
		}
		if c.Source == "" {
			c.Source = "unknown"
		}
		normalized = append(normalized, c)
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	texts := make([]string, len(normalized))
	for i, c := range normalized {
		texts[i] = c.Text
	}
	scores, err := r.encoder.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder scoring failed: %w", err)
	}
	if len(scores) != len(normalized) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d candidates", len(scores), len(normalized))
	}
	for i := range normalized {
		normalized[i].Score = scores[i]
	}
	sort.SliceStable(normalized, func(i, j int) bool { return normalized[i].Score > normalized[j].Score })

	selected := make([]models.Candidate, 0, topK)
	perSource := make(map[string]int)
	for _, c := range normalized {
		if perSource[c.Source] >= maxPerSource {
			continue
		}
		selected = append(selected, c)
		perSource[c.Source]++
		if len(selected) >= topK {
			break
		}
	}
	return selected, nil
}
