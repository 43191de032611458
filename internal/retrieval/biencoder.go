package retrieval

import (
	"context"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/pkg/utils"
)

// BiEncoderScorer scores candidates by embedding similarity to the query. It
// is the fallback CrossEncoder when no rerank endpoint is configured: weaker
// than a true cross-encoder but keeps the diversity-capped selection working.
type BiEncoderScorer struct {
	embedder embedding.Embedder
}

// NewBiEncoderScorer creates a similarity scorer backed by embedder.
func NewBiEncoderScorer(embedder embedding.Embedder) *BiEncoderScorer {
	return &BiEncoderScorer{embedder: embedder}
}

// Score embeds the query and each text, returning cosine similarity per text.
func (b *BiEncoderScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	textVecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(texts))
	for i, vec := range textVecs {
		scores[i] = 1 - utils.CosineDistance(queryVec, vec)
	}
	return scores, nil
}
