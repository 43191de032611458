package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunkstore"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
)

// Ingestor chunks, embeds, and stores extracted content into a conversation
// partition.
type Ingestor struct {
	store        chunkstore.Store
	embedder     embedding.Embedder
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger
}

// NewIngestor creates an ingestor with the given chunking settings.
func NewIngestor(store chunkstore.Store, embedder embedding.Embedder, chunkSize, chunkOverlap int, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		store:        store,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// IngestExtracted chunks the document text, renders every table row as a
// table_row chunk carrying the complete table, embeds everything in one batch,
// and inserts it into the conversation partition. source identifies the
// originating document or URL. Returns the number of chunks stored; zero with
// no error when the document yielded no text.
func (ing *Ingestor) IngestExtracted(ctx context.Context, conversationID int64, source string, doc *Extracted) (int, error) {
	var texts []string
	var metas []models.Metadata

	for _, text := range Chunk(doc.Text, ing.chunkSize, ing.chunkOverlap) {
		texts = append(texts, text)
		metas = append(metas, models.Metadata{
			models.MetaSource: source,
			models.MetaType:   models.ChunkTypeText,
		})
	}
	for _, table := range doc.Tables {
		for _, row := range TableRowChunks(table) {
			texts = append(texts, row)
			metas = append(metas, models.Metadata{
				models.MetaSource: source,
				models.MetaType:   models.ChunkTypeTableRow,
				models.MetaTable:  table,
			})
		}
	}
	if len(texts) == 0 {
		ing.logger.Debug("no text extracted", zap.String("source", source))
		return 0, nil
	}

	embeddings, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	ownerID := uuid.New().String()
	if err := ing.store.Add(ctx, ownerID, texts, embeddings, metas, conversationID); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	ing.logger.Debug("ingested document",
		zap.String("source", source),
		zap.Int64("conversation_id", conversationID),
		zap.Int("chunks", len(texts)),
		zap.Int("tables", len(doc.Tables)),
	)
	return len(texts), nil
}

// IngestText ingests plain text with no tables.
func (ing *Ingestor) IngestText(ctx context.Context, conversationID int64, source, text string) (int, error) {
	return ing.IngestExtracted(ctx, conversationID, source, &Extracted{Text: text})
}
