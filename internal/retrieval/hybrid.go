package retrieval

import (
	"context"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// fusedCandidate accumulates normalized score contributions for one passage text.
type fusedCandidate struct {
	candidate models.Candidate
	score     float64
	order     int
}

// Fuser combines lexical and dense retrieval into one ranked list.
type Fuser struct {
	lexical *Lexical
	dense   *Dense
}

// NewFuser creates a hybrid fuser over the two retrievers.
func NewFuser(lexical *Lexical, dense *Dense) *Fuser {
	return &Fuser{lexical: lexical, dense: dense}
}

// maxScore returns the largest candidate score, or 1 when the batch is empty
// or all-zero, so normalization never divides by zero.
func maxScore(results []models.Candidate) float64 {
	max := 0.0
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

// Fuse retrieves 2k candidates from each retriever, normalizes both score
// batches by their maximum, converts dense distances to similarities, and
// combines them as (1-alpha)*lexical + alpha*dense. Candidates are keyed by
// exact passage text, so a passage found by both retrievers sums both
// contributions and textually identical chunks collapse into one. Returns the
// top-k by combined score; nil when both retrievers return nothing.
func (f *Fuser) Fuse(ctx context.Context, query string, conversationID int64, k int, alpha float64) ([]models.Candidate, error) {
	lexResults, err := f.lexical.Search(ctx, query, conversationID, 2*k)
	if err != nil {
		return nil, err
	}
	denseResults, err := f.dense.Search(ctx, query, conversationID, 2*k)
	if err != nil {
		return nil, err
	}
	if len(lexResults) == 0 && len(denseResults) == 0 {
		return nil, nil
	}

	fused := make(map[string]*fusedCandidate)
	upsert := func(c models.Candidate, contribution float64) {
		if entry, ok := fused[c.Text]; ok {
			entry.score += contribution
			return
		}
		fused[c.Text] = &fusedCandidate{candidate: c, score: contribution, order: len(fused)}
	}

	lexMax := maxScore(lexResults)
	for _, r := range lexResults {
		upsert(r, (1-alpha)*(r.Score/lexMax))
	}
	denseMax := maxScore(denseResults)
	for _, r := range denseResults {
		upsert(r, alpha*(1-r.Score/denseMax))
	}

	ranked := make([]*fusedCandidate, 0, len(fused))
	for _, entry := range fused {
		ranked = append(ranked, entry)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]models.Candidate, k)
	for i := 0; i < k; i++ {
		c := ranked[i].candidate
		c.Score = ranked[i].score
		out[i] = c
	}
	return out, nil
}
