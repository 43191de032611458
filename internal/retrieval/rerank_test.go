package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

// fakeScorer returns preset scores keyed by text.
type fakeScorer struct {
	scores map[string]float64
	err    error
}

func (f *fakeScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(texts))
	for i, t := range texts {
		out[i] = f.scores[t]
	}
	return out, nil
}

func TestRerank_OrdersByScore(t *testing.T) {
	r := NewReranker(&fakeScorer{scores: map[string]float64{
		"low": 0.1, "high": 0.9, "mid": 0.5,
	}})
	got, err := r.Rerank(context.Background(), "q", []models.Candidate{
		{Text: "low", Source: "a"},
		{Text: "high", Source: "b"},
		{Text: "mid", Source: "c"},
	}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].Text != "high" || got[1].Text != "mid" || got[2].Text != "low" {
		t.Errorf("order: %v %v %v", got[0].Text, got[1].Text, got[2].Text)
	}
	if got[0].Score != 0.9 {
		t.Errorf("score must be the encoder score, got %f", got[0].Score)
	}
}

func TestRerank_PerSourceCap(t *testing.T) {
	r := NewReranker(&fakeScorer{scores: map[string]float64{
		"a1": 0.9, "a2": 0.8, "a3": 0.7, "b1": 0.1,
	}})
	got, err := r.Rerank(context.Background(), "q", []models.Candidate{
		{Text: "a1", Source: "a.pdf"},
		{Text: "a2", Source: "a.pdf"},
		{Text: "a3", Source: "a.pdf"},
		{Text: "b1", Source: "b.pdf"},
	}, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 (two from a.pdf, one from b.pdf), got %d", len(got))
	}
	fromA := 0
	for _, c := range got {
		if c.Source == "a.pdf" {
			fromA++
		}
	}
	if fromA != 2 {
		t.Errorf("a.pdf admitted %d times, cap is 2", fromA)
	}
	if got[2].Text != "b1" {
		t.Errorf("b1 should fill the final slot, got %q", got[2].Text)
	}
}

func TestRerank_TopK(t *testing.T) {
	r := NewReranker(&fakeScorer{scores: map[string]float64{"x": 0.9, "y": 0.5, "z": 0.1}})
	got, err := r.Rerank(context.Background(), "q", []models.Candidate{
		{Text: "x", Source: "a"}, {Text: "y", Source: "b"}, {Text: "z", Source: "c"},
	}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected topK=2, got %d", len(got))
	}
}

func TestRerank_DropsTextless(t *testing.T) {
	r := NewReranker(&fakeScorer{scores: map[string]float64{"ok": 0.5}})
	got, err := r.Rerank(context.Background(), "q", []models.Candidate{
		{Text: "", Source: "a"},
		{Text: "ok"},
	}, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1, got %d", len(got))
	}
	if got[0].Source != "unknown" {
		t.Errorf("empty source must become unknown, got %q", got[0].Source)
	}
}

func TestRerank_EmptyPool(t *testing.T) {
	r := NewReranker(&fakeScorer{})
	got, err := r.Rerank(context.Background(), "q", nil, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestRerank_EncoderError(t *testing.T) {
	r := NewReranker(&fakeScorer{err: errors.New("service down")})
	if _, err := r.Rerank(context.Background(), "q", []models.Candidate{{Text: "x"}}, 5, 2); err == nil {
		t.Error("encoder errors must propagate")
	}
}
