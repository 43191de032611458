// Package retrieval implements the retrieval-and-ranking pipeline: lexical and
// dense retrievers, hybrid score fusion, multi-query merging, and reranking.
package retrieval

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/kotae/internal/chunkstore"
	"github.com/hyperjump/kotae/internal/models"
)

// Lexical scores a query against one conversation's chunks with a term-based
// index built per call. Rebuilding on every call trades latency for
// correctness over the freshest partition contents; the chunk store stays the
// single authoritative state.
type Lexical struct {
	store chunkstore.Store
}

// NewLexical creates a lexical retriever over store.
func NewLexical(store chunkstore.Store) *Lexical {
	return &Lexical{store: store}
}

func lexicalIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so query terms
	// match document terms literally.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	im.DefaultMapping = docMapping
	return im
}

type lexicalDoc struct {
	Text string `json:"text"`
}

// Search scores query against the partition and returns the top-k candidates
// by descending term score. Scores are unbounded, higher is more relevant.
// An empty partition returns nil.
func (l *Lexical) Search(ctx context.Context, query string, conversationID int64, k int) ([]models.Candidate, error) {
	chunks, err := l.store.AllChunks(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load partition %d: %w", conversationID, err)
	}
	if len(chunks) == 0 || k <= 0 {
		return nil, nil
	}

	idx, err := bleve.NewMemOnly(lexicalIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}
	defer idx.Close()

	// Chunks are indexed in partition order; bleve's stable hit ordering then
	// breaks score ties by that order.
	batch := idx.NewBatch()
	for i, ch := range chunks {
		if err := batch.Index(strconv.Itoa(i), lexicalDoc{Text: ch.Text}); err != nil {
			return nil, fmt.Errorf("index chunk %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("build lexical index: %w", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = k
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	out := make([]models.Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(chunks) {
			continue
		}
		ch := chunks[i]
		out = append(out, models.Candidate{
			Text:   ch.Text,
			Source: ch.Metadata.Source(),
			Score:  hit.Score,
			Meta:   ch.Metadata,
		})
	}
	return out, nil
}
