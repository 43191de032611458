package chunkstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func vec(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func addOne(t *testing.T, s *MemoryStore, conversationID int64, text string, embedding []float32) {
	t.Helper()
	err := s.Add(context.Background(), "owner", []string{text}, [][]float32{embedding},
		[]models.Metadata{{models.MetaSource: "doc.txt", models.MetaType: models.ChunkTypeText}}, conversationID)
	if err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStore_PartitionIsolation(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(4)
	if err != nil {
		t.Fatal(err)
	}
	addOne(t, s, 1, "in conversation one", []float32{1, 0, 0, 0})
	addOne(t, s, 2, "in conversation two", []float32{1, 0, 0, 0})

	got, err := s.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "in conversation one" {
		t.Errorf("search must stay inside the partition, got %v", got)
	}

	size, _ := s.PartitionSize(ctx, 2)
	if size != 1 {
		t.Errorf("partition 2 size: %d", size)
	}
	if s.Size() != 2 {
		t.Errorf("total size: %d", s.Size())
	}
}

func TestMemoryStore_EmptyPartition(t *testing.T) {
	s, _ := NewMemoryStore(4)
	got, err := s.NearestNeighbors(context.Background(), []float32{1, 0, 0, 0}, 99, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("empty partition must return nil, got %v", got)
	}
}

func TestMemoryStore_NearestOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := NewMemoryStore(4)
	addOne(t, s, 1, "close", []float32{1, 0, 0, 0})
	addOne(t, s, 1, "far", []float32{0, 1, 0, 0})

	got, err := s.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Text != "close" || got[1].Text != "far" {
		t.Errorf("results not ordered by distance: %v, %v", got[0].Text, got[1].Text)
	}
	if got[0].Score >= got[1].Score {
		t.Errorf("distance must increase: %f vs %f", got[0].Score, got[1].Score)
	}
	if got[0].Source != "doc.txt" {
		t.Errorf("source: %q", got[0].Source)
	}
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	s, _ := NewMemoryStore(4)
	err := s.Add(context.Background(), "o", []string{"x"}, [][]float32{vec(3, 1)},
		[]models.Metadata{{}}, 1)
	if err == nil {
		t.Error("expected dimension mismatch error on Add")
	}
	if _, err := s.NearestNeighbors(context.Background(), vec(3, 1), 1, 1); err == nil {
		t.Error("expected dimension mismatch error on search")
	}
}

func TestMemoryStore_DeletePartition(t *testing.T) {
	ctx := context.Background()
	s, _ := NewMemoryStore(4)
	addOne(t, s, 1, "a", vec(4, 1))
	addOne(t, s, 2, "b", vec(4, 1))

	if err := s.DeletePartition(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if size, _ := s.PartitionSize(ctx, 1); size != 0 {
		t.Errorf("partition 1 should be empty, has %d", size)
	}
	if size, _ := s.PartitionSize(ctx, 2); size != 1 {
		t.Errorf("partition 2 must be untouched, has %d", size)
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.json")

	s, _ := NewMemoryStore(4)
	addOne(t, s, 7, "persisted chunk", []float32{0.5, 0.5, 0, 0})
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	restored, _ := NewMemoryStore(4)
	if err := restored.Load(path); err != nil {
		t.Fatal(err)
	}
	chunks, err := restored.AllChunks(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Text != "persisted chunk" {
		t.Fatalf("restored chunks: %v", chunks)
	}
	if chunks[0].Metadata.Source() != "doc.txt" {
		t.Errorf("metadata lost in snapshot: %v", chunks[0].Metadata)
	}
}

func TestMemoryStore_LoadMissingFile(t *testing.T) {
	s, _ := NewMemoryStore(4)
	if err := s.Load(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Errorf("missing snapshot must be a no-op, got %v", err)
	}
}

func TestMemoryStore_LoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	s, _ := NewMemoryStore(4)
	addOne(t, s, 1, "x", vec(4, 1))
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewMemoryStore(8)
	if err := other.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestSanitizeMetadata(t *testing.T) {
	table := models.StructuredTable{Title: "T", Columns: []string{"A"}, Rows: [][]string{{"1"}}}
	meta, err := SanitizeMetadata(models.Metadata{
		"source":  "a.pdf",
		"count":   3,
		"flag":    true,
		"nothing": nil,
		"table":   table,
	})
	if err != nil {
		t.Fatal(err)
	}
	if meta["source"] != "a.pdf" || meta["count"] != 3 || meta["flag"] != true {
		t.Errorf("scalars must pass through: %v", meta)
	}
	if _, ok := meta["nothing"]; ok {
		t.Error("nil values must be dropped")
	}
	encoded, ok := meta["table"].(string)
	if !ok {
		t.Fatalf("nested value must be JSON-encoded to string, got %T", meta["table"])
	}
	decoded, ok := models.DecodeTable(encoded)
	if !ok || decoded.Title != "T" {
		t.Errorf("encoded table must round-trip: %v", decoded)
	}
}
