// Package chunkstore provides the conversation-partitioned index of embedded chunks.
package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Store indexes embedded text chunks partitioned by conversation. Chunks are
// immutable once added; a partition is removed only by deleting its conversation.
type Store interface {
	// Add inserts chunks into the conversation partition. The conversation id is
	// attached to every metadata record, metadata values are sanitized to
	// scalars, and each chunk gets a key derived from
	// (conversationID, ownerID, index) so keys never collide across conversations.
	Add(ctx context.Context, ownerID string, chunks []string, embeddings [][]float32, metas []models.Metadata, conversationID int64) error

	// NearestNeighbors returns the k closest chunks to query within the
	// partition, as candidates scored by cosine distance (lower is closer).
	// An empty partition returns nil without running the distance search.
	NearestNeighbors(ctx context.Context, query []float32, conversationID int64, k int) ([]models.Candidate, error)

	// AllChunks returns the full partition in insertion order, for lexical indexing.
	AllChunks(ctx context.Context, conversationID int64) ([]models.Chunk, error)

	// PartitionSize returns the number of chunks in the partition.
	PartitionSize(ctx context.Context, conversationID int64) (int, error)

	// DeletePartition removes every chunk belonging to the conversation.
	DeletePartition(ctx context.Context, conversationID int64) error

	Size() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// SanitizeMetadata returns a copy of meta restricted to the scalar form the
// store accepts: strings, bools, and numbers pass through; nil is dropped;
// anything nested (maps, slices, structs) is JSON-encoded to a string. The
// decode step for nested values lives in models.DecodeTable.
func SanitizeMetadata(meta models.Metadata) (models.Metadata, error) {
	out := make(models.Metadata, len(meta))
	for k, v := range meta {
		switch v.(type) {
		case nil:
			continue
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("sanitize metadata %q: %w", k, err)
			}
			out[k] = string(raw)
		}
	}
	return out, nil
}
