package embedding

import (
	"context"
	"testing"
)

// countingEmbedder wraps MockEmbedder and counts inner calls.
type countingEmbedder struct {
	*MockEmbedder
	embedCalls int
	batchTexts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls++
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchTexts += len(texts)
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_Hit(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, 10)

	first, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if inner.embedCalls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.embedCalls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached vector differs")
		}
	}
}

func TestCachedEmbedder_BatchOnlyMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, 10)

	if _, err := c.Embed(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	out, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(out))
	}
	if inner.batchTexts != 2 {
		t.Errorf("only misses go to the inner embedder, sent %d texts", inner.batchTexts)
	}
	for _, v := range out {
		if len(v) != 8 {
			t.Error("vector missing or wrong dimension")
		}
	}
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, 2)

	_, _ = c.Embed(ctx, "one")
	_, _ = c.Embed(ctx, "two")
	_, _ = c.Embed(ctx, "three") // evicts "one"
	_, _ = c.Embed(ctx, "one")   // miss again

	if inner.embedCalls != 4 {
		t.Errorf("expected 4 inner calls after eviction, got %d", inner.embedCalls)
	}
}

func TestCachedEmbedder_Dimensions(t *testing.T) {
	c := NewCachedEmbedder(NewMockEmbedder(384), 10)
	if c.Dimensions() != 384 {
		t.Errorf("dimensions: %d", c.Dimensions())
	}
}
