package ingest

import (
	"strings"
	"testing"
)

func TestNewStructuredTable(t *testing.T) {
	table, ok := NewStructuredTable("Revenue", [][]string{
		{"Year", "Total"},
		{"2023", "100"},
		{"2024", "112"},
	})
	if !ok {
		t.Fatal("expected table to be accepted")
	}
	if table.Title != "Revenue" {
		t.Errorf("title: %q", table.Title)
	}
	if len(table.Columns) != 2 || table.Columns[0] != "Year" {
		t.Errorf("columns: %v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Errorf("expected 2 data rows, got %d", len(table.Rows))
	}
}

func TestNewStructuredTable_HeaderOnly(t *testing.T) {
	if _, ok := NewStructuredTable("T", [][]string{{"A", "B"}}); ok {
		t.Error("header-only table should be rejected")
	}
	if _, ok := NewStructuredTable("T", nil); ok {
		t.Error("empty table should be rejected")
	}
}

func TestNewStructuredTable_RaggedRows(t *testing.T) {
	table, ok := NewStructuredTable("T", [][]string{
		{"A", "B", "C"},
		{"1"},
	})
	if !ok {
		t.Fatal("expected table to be accepted")
	}
	if len(table.Rows[0]) != 3 {
		t.Errorf("short row should be padded to header width, got %v", table.Rows[0])
	}
}

func TestTableRowChunks(t *testing.T) {
	table, _ := NewStructuredTable("Revenue", [][]string{
		{"Year", "Total"},
		{"2024", "112"},
	})
	chunks := TableRowChunks(table)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 row chunk, got %d", len(chunks))
	}
	want := "TABLE: Revenue | Year=2024 | Total=112"
	if chunks[0] != want {
		t.Errorf("expected %q, got %q", want, chunks[0])
	}
}

func TestTableRowChunks_MissingColumnName(t *testing.T) {
	table, _ := NewStructuredTable("T", [][]string{
		{"A"},
		{"1", "2"},
	})
	chunks := TableRowChunks(table)
	if !strings.Contains(chunks[0], "col_1=2") {
		t.Errorf("extra cell should use positional name, got %q", chunks[0])
	}
}
