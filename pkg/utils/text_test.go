package utils

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"exactly at limit", "hello", 5, "hello"},
		{"over limit", "hello world", 5, "hello..."},
		{"zero limit returns unchanged", "hello", 0, "hello"},
		{"negative limit returns unchanged", "hello", -1, "hello"},
		{"empty string", "", 5, ""},
		{"multibyte counts characters not bytes", "ééééé", 5, "ééééé"},
		{"multibyte truncated on character boundary", "ééééé", 3, "ééé..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.s, tt.maxLen); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}
