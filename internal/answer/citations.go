// Package answer turns reranked candidates into citation-numbered context
// blocks, extracts structured tables, and generates grounded answers.
package answer

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// BuildCitations assigns each distinct source a 1-based index in order of
// first appearance in docs, so citation numbers stay stable regardless of how
// the list was scored or re-sorted. Returns the ordered unique source list and
// one formatted context block per doc: "[index] (source)\ntext". A doc without
// a source maps to "unknown".
func BuildCitations(docs []models.Candidate) (sources []string, contexts []string) {
	index := make(map[string]int)
	for _, d := range docs {
		src := d.Source
		if src == "" {
			src = "unknown"
		}
		n, ok := index[src]
		if !ok {
			n = len(sources) + 1
			index[src] = n
			sources = append(sources, src)
		}
		contexts = append(contexts, fmt.Sprintf("[%d] (%s)\n%s", n, src, d.Text))
	}
	return sources, contexts
}
