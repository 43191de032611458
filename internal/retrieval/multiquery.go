package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// MultiQuery runs hybrid fusion once per expanded query variant and merges the
// results into an oversized candidate pool for the reranker.
type MultiQuery struct {
	fuser      *Fuser
	expander   *Expander
	alpha      float64
	numQueries int
	logger     *zap.Logger
}

// NewMultiQuery creates a multi-query searcher. alpha is the dense weight for
// each fusion run; numQueries is how many expansion variants to request.
func NewMultiQuery(fuser *Fuser, expander *Expander, alpha float64, numQueries int, logger *zap.Logger) *MultiQuery {
	return &MultiQuery{
		fuser:      fuser,
		expander:   expander,
		alpha:      alpha,
		numQueries: numQueries,
		logger:     logger,
	}
}

// Search fuses k candidates for the original query and each expansion variant,
// concatenates the lists (original first, so its hits take dedup priority),
// deduplicates by exact passage text with first occurrence winning, and
// returns up to 4k unique candidates. A retrieval failure for a single
// variant is skipped rather than aborting the merge; a failed expansion means
// the original query runs alone.
func (m *MultiQuery) Search(ctx context.Context, query string, conversationID int64, k int) ([]models.Candidate, error) {
	queries := append([]string{query}, m.expander.Expand(ctx, query, m.numQueries)...)

	var pool []models.Candidate
	for _, q := range queries {
		results, err := m.fuser.Fuse(ctx, q, conversationID, k, m.alpha)
		if err != nil {
			m.logger.Warn("retrieval failed for query variant, skipping",
				zap.String("variant", utils.Truncate(q, 120)), zap.Error(err))
			continue
		}
		pool = append(pool, results...)
	}

	seen := make(map[string]struct{}, len(pool))
	unique := make([]models.Candidate, 0, len(pool))
	for _, c := range pool {
		if _, ok := seen[c.Text]; ok {
			continue
		}
		seen[c.Text] = struct{}{}
		unique = append(unique, c)
		if len(unique) == 4*k {
			break
		}
	}
	if len(unique) == 0 {
		return nil, nil
	}
	return unique, nil
}
