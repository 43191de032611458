package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk_Empty(t *testing.T) {
	if got := Chunk("", 800, 100); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestChunk_ShortText(t *testing.T) {
	got := Chunk("hello", 800, 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("expected single chunk [hello], got %v", got)
	}
}

func TestChunk_Windows(t *testing.T) {
	text := strings.Repeat("a", 25)
	got := Chunk(text, 10, 2)
	// step 8: [0:10] [8:18] [16:25]
	want := []string{text[0:10], text[8:18], text[16:25]}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestChunk_OverlapClamped(t *testing.T) {
	text := strings.Repeat("x", 300)
	// overlap >= size is clamped to size/2, so the step is 50, not <= 0.
	got := Chunk(text, 100, 150)
	if len(got) == 0 {
		t.Fatal("expected chunks")
	}
	if got[0] != text[0:100] {
		t.Errorf("first chunk wrong: %q", got[0])
	}
	if got[1] != text[50:150] {
		t.Errorf("expected step 50 after clamping, second chunk starts wrong")
	}
}

func TestChunk_NegativeOverlap(t *testing.T) {
	text := strings.Repeat("y", 30)
	got := Chunk(text, 10, -5)
	if len(got) != 3 {
		t.Fatalf("expected 3 non-overlapping chunks, got %d", len(got))
	}
}

func TestChunk_MultibyteText(t *testing.T) {
	text := strings.Repeat("é", 100)
	got := Chunk(text, 11, 3)
	if len(got) == 0 {
		t.Fatal("expected chunks")
	}
	for i, c := range got {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
	}
	if got[0] != strings.Repeat("é", 11) {
		t.Errorf("first chunk must be 11 characters, got %q", got[0])
	}
	// step 8: second window starts at character 8, not byte 8.
	if got[1] != strings.Repeat("é", 11) {
		t.Errorf("second chunk wrong: %q", got[1])
	}
	if last := got[len(got)-1]; !strings.HasSuffix(text, last) {
		t.Error("final chunk must end where the text ends")
	}
}

func TestChunk_MixedWidthWindows(t *testing.T) {
	text := "売上は12%増加した。revenue grew. 利益も上がった。"
	got := Chunk(text, 10, 3)
	var rebuilt []rune
	for i, c := range got {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
		runes := []rune(c)
		if len(runes) > 10 {
			t.Errorf("chunk %d has %d characters, window is 10", i, len(runes))
		}
		if i == 0 {
			rebuilt = append(rebuilt, runes...)
		} else {
			// Drop the 3-character overlap when reassembling.
			rebuilt = append(rebuilt, runes[3:]...)
		}
	}
	if string(rebuilt) != text {
		t.Errorf("chunks do not reassemble the input:\n%q\n%q", string(rebuilt), text)
	}
}

func TestChunk_CoversAllText(t *testing.T) {
	text := strings.Repeat("z", 1234)
	got := Chunk(text, 800, 100)
	last := got[len(got)-1]
	if !strings.HasSuffix(text, last) {
		t.Error("final chunk must end where the text ends")
	}
	total := 0
	for _, c := range got {
		total += len(c)
	}
	if total < len(text) {
		t.Errorf("chunks cover %d chars of %d", total, len(text))
	}
}
