package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// MemoryStore is an in-memory chunk store using brute-force cosine distance
// within one conversation partition. Suitable for corpora that fit in memory;
// Save/Load provide a JSON snapshot for restarts.
type MemoryStore struct {
	dimensions int
	partitions map[int64][]models.Chunk
	mu         sync.RWMutex
}

// NewMemoryStore creates an in-memory chunk store expecting embeddings of the
// given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions: dimensions,
		partitions: make(map[int64][]models.Chunk),
	}, nil
}

// Add inserts chunks into the conversation partition.
func (s *MemoryStore) Add(ctx context.Context, ownerID string, chunks []string, embeddings [][]float32, metas []models.Metadata, conversationID int64) error {
	if len(chunks) != len(embeddings) || len(chunks) != len(metas) {
		return fmt.Errorf("chunks, embeddings, and metadatas length mismatch: %d/%d/%d", len(chunks), len(embeddings), len(metas))
	}
	prepared := make([]models.Chunk, 0, len(chunks))
	for i, text := range chunks {
		if text == "" {
			return fmt.Errorf("chunk %d is empty", i)
		}
		if len(embeddings[i]) != s.dimensions {
			return fmt.Errorf("embedding dimension mismatch at %d: got %d, expected %d", i, len(embeddings[i]), s.dimensions)
		}
		meta, err := SanitizeMetadata(metas[i])
		if err != nil {
			return err
		}
		meta[models.MetaConversationID] = conversationID
		vec := make([]float32, s.dimensions)
		copy(vec, embeddings[i])
		prepared = append(prepared, models.Chunk{
			ID:        fmt.Sprintf("%d_%s_%d", conversationID, ownerID, i),
			Text:      text,
			Embedding: vec,
			Metadata:  meta,
		})
	}
	s.mu.Lock()
	s.partitions[conversationID] = append(s.partitions[conversationID], prepared...)
	s.mu.Unlock()
	return nil
}

// NearestNeighbors returns the k closest partition chunks by cosine distance.
func (s *MemoryStore) NearestNeighbors(ctx context.Context, query []float32, conversationID int64, k int) ([]models.Candidate, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.dimensions)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.partitions[conversationID]
	if k <= 0 || len(part) == 0 {
		return nil, nil
	}
	type scored struct {
		idx      int
		distance float64
	}
	scores := make([]scored, len(part))
	for i, ch := range part {
		scores[i] = scored{idx: i, distance: utils.CosineDistance(query, ch.Embedding)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].distance < scores[j].distance })
	if k > len(scores) {
		k = len(scores)
	}
	out := make([]models.Candidate, k)
	for i := 0; i < k; i++ {
		ch := part[scores[i].idx]
		out[i] = models.Candidate{
			Text:   ch.Text,
			Source: ch.Metadata.Source(),
			Score:  scores[i].distance,
			Meta:   ch.Metadata,
		}
	}
	return out, nil
}

// AllChunks returns the full partition in insertion order.
func (s *MemoryStore) AllChunks(ctx context.Context, conversationID int64) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.partitions[conversationID]
	if len(part) == 0 {
		return nil, nil
	}
	out := make([]models.Chunk, len(part))
	copy(out, part)
	return out, nil
}

// PartitionSize returns the number of chunks in the partition.
func (s *MemoryStore) PartitionSize(ctx context.Context, conversationID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions[conversationID]), nil
}

// DeletePartition removes all chunks belonging to the conversation.
func (s *MemoryStore) DeletePartition(ctx context.Context, conversationID int64) error {
	s.mu.Lock()
	delete(s.partitions, conversationID)
	s.mu.Unlock()
	return nil
}

// Size returns the total number of chunks across all partitions.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, part := range s.partitions {
		n += len(part)
	}
	return n
}

// snapshot is the on-disk form of the store.
type snapshot struct {
	Dimensions int                      `json:"dimensions"`
	Partitions map[int64][]models.Chunk `json:"partitions"`
}

// Save writes a JSON snapshot of the store to path. Directory is created if needed.
func (s *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	s.mu.RLock()
	snap := snapshot{Dimensions: s.dimensions, Partitions: s.partitions}
	data, err := json.Marshal(&snap)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal chunk store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create chunk store dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write chunk store: %w", err)
	}
	return nil
}

// Load reads a snapshot from path and replaces the in-memory contents.
// Dimensions must match. If the file does not exist, no error is returned and
// the store is unchanged.
func (s *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read chunk store: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse chunk store: %w", err)
	}
	if snap.Dimensions != s.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, store expects %d", snap.Dimensions, s.dimensions)
	}
	s.mu.Lock()
	s.partitions = snap.Partitions
	if s.partitions == nil {
		s.partitions = make(map[int64][]models.Chunk)
	}
	s.mu.Unlock()
	return nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
