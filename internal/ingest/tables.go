package ingest

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// normalizeRows pads every row to the widest row's length so all rows align
// with the header.
func normalizeRows(rows [][]string) [][]string {
	if len(rows) == 0 {
		return nil
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		padded := make([]string, width)
		copy(padded, r)
		out[i] = padded
	}
	return out
}

// NewStructuredTable builds a table from raw rows, treating rows[0] as the
// header. Tables with fewer than two rows carry no data and are rejected.
func NewStructuredTable(title string, rows [][]string) (models.StructuredTable, bool) {
	rows = normalizeRows(rows)
	if len(rows) < 2 {
		return models.StructuredTable{}, false
	}
	return models.StructuredTable{
		Title:   title,
		Columns: rows[0],
		Rows:    rows[1:],
	}, true
}

// TableRowChunks renders each table row as one retrievable chunk of
// column=value pairs, e.g. "TABLE: Revenue | Year=2024 | Total=12%".
func TableRowChunks(t models.StructuredTable) []string {
	chunks := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		parts := make([]string, 0, len(row))
		for i, cell := range row {
			name := fmt.Sprintf("col_%d", i)
			if i < len(t.Columns) {
				name = t.Columns[i]
			}
			parts = append(parts, name+"="+cell)
		}
		chunks = append(chunks, "TABLE: "+t.Title+" | "+strings.Join(parts, " | "))
	}
	return chunks
}
