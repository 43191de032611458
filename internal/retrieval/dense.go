package retrieval

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/chunkstore"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
)

// Dense retrieves nearest neighbors by embedding the query and searching the
// conversation partition. Candidate scores are cosine distances: lower is more
// relevant, the inverse convention of the lexical retriever. Callers must
// normalize before combining the two.
type Dense struct {
	store    chunkstore.Store
	embedder embedding.Embedder
}

// NewDense creates a dense retriever over store using embedder.
func NewDense(store chunkstore.Store, embedder embedding.Embedder) *Dense {
	return &Dense{store: store, embedder: embedder}
}

// Search embeds query and returns the k nearest partition chunks by distance.
// An empty partition returns nil without calling the embedder.
func (d *Dense) Search(ctx context.Context, query string, conversationID int64, k int) ([]models.Candidate, error) {
	n, err := d.store.PartitionSize(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("partition size %d: %w", conversationID, err)
	}
	if n == 0 || k <= 0 {
		return nil, nil
	}
	vec, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := d.store.NearestNeighbors(ctx, vec, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}
