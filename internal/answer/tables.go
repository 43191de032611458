package answer

import (
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Fixed user-facing responses for the table short-circuit path.
const (
	TableAck      = "Here is the table you requested."
	TableNotFound = "I couldn't find a table matching your request in the ingested documents."
)

// tableTriggers are matched as substrings of the normalized query.
var tableTriggers = []string{
	"show table",
	"show the table",
	"show me the table",
	"show me table",
	"full table",
	"show full table",
	"show me the full table",
	"display table",
	"display the table",
	"give me the table",
}

var nonWordRe = regexp.MustCompile(`[^a-z0-9\s]+`)
var spaceRe = regexp.MustCompile(`\s+`)

// normalizeQuery lowercases, strips punctuation, collapses whitespace, and
// fixes the common "tabel" misspelling.
func normalizeQuery(query string) string {
	q := strings.ToLower(query)
	q = nonWordRe.ReplaceAllString(q, " ")
	q = spaceRe.ReplaceAllString(q, " ")
	q = strings.TrimSpace(q)
	q = strings.ReplaceAll(q, "tabel", "table")
	return q
}

// IsExplicitTableRequest reports whether the query explicitly asks for a
// table, in which case the pipeline returns stored tables instead of invoking
// the language model.
func IsExplicitTableRequest(query string) bool {
	q := normalizeQuery(query)
	for _, trigger := range tableTriggers {
		if strings.Contains(q, trigger) {
			return true
		}
	}
	return false
}

// ExtractTables decodes the structured tables carried by table_row candidates
// and deduplicates them by (title, columns) fingerprint. Every row of a table
// carries the complete table object, so later rows of the same table are dropped.
func ExtractTables(docs []models.Candidate) []models.StructuredTable {
	var tables []models.StructuredTable
	seen := make(map[string]struct{})
	for _, d := range docs {
		if !d.Meta.IsTableRow() {
			continue
		}
		t, ok := models.DecodeTable(d.Meta[models.MetaTable])
		if !ok {
			continue
		}
		fp := t.Fingerprint()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		tables = append(tables, *t)
	}
	return tables
}
