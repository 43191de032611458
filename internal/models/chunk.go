// Package models defines core data structures for chunks, candidates, and conversations.
package models

import (
	"encoding/json"
	"strings"
)

// Metadata keys attached to every chunk at ingestion time.
const (
	MetaSource         = "source"
	MetaType           = "type"
	MetaConversationID = "conversation_id"
	MetaTable          = "table"
)

// Chunk types.
const (
	ChunkTypeText     = "text"
	ChunkTypeTableRow = "table_row"
)

// Metadata is the metadata mapping carried by a chunk. The chunk store only
// accepts scalar values; nested values are JSON-encoded to strings at the
// store boundary (see chunkstore.SanitizeMetadata).
type Metadata map[string]interface{}

// String returns the value for key as a string, or "" if absent or non-string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Source returns the originating document/URL identifier, or "unknown" if absent.
func (m Metadata) Source() string {
	if s := m.String(MetaSource); s != "" {
		return s
	}
	return "unknown"
}

// IsTableRow reports whether the chunk carries a structured table row.
func (m Metadata) IsTableRow() bool {
	return m.String(MetaType) == ChunkTypeTableRow
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Chunk is one immutable retrievable unit of embedded text. Every chunk
// belongs to exactly one conversation partition.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// Candidate is a transient retrieval hit. Score scale and direction are
// retriever-specific (lexical: higher is better; dense: distance, lower is
// better) and must be normalized before fusing. Never persisted.
type Candidate struct {
	Text   string   `json:"text"`
	Source string   `json:"source"`
	Score  float64  `json:"score"`
	Meta   Metadata `json:"meta,omitempty"`
}

// StructuredTable is a table detected during ingestion. Each table row becomes
// one table_row chunk carrying the entire table in its metadata, so the full
// table can be reconstructed from any one matching row.
type StructuredTable struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Fingerprint identifies equivalent tables for deduplication: two rows of the
// same table share (title, columns) and carry the same complete table object.
func (t *StructuredTable) Fingerprint() string {
	return t.Title + "\x00" + strings.Join(t.Columns, "\x1f")
}

// DecodeTable converts a metadata value into a StructuredTable. The value may
// be a StructuredTable, a generic map, or a JSON-encoded string (the form the
// chunk store sanitizes nested values into).
func DecodeTable(v interface{}) (*StructuredTable, bool) {
	switch tv := v.(type) {
	case nil:
		return nil, false
	case StructuredTable:
		return &tv, true
	case *StructuredTable:
		if tv == nil {
			return nil, false
		}
		return tv, true
	case string:
		var t StructuredTable
		if err := json.Unmarshal([]byte(tv), &t); err != nil {
			return nil, false
		}
		return &t, len(t.Columns) > 0
	case map[string]interface{}:
		raw, err := json.Marshal(tv)
		if err != nil {
			return nil, false
		}
		var t StructuredTable
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, false
		}
		return &t, len(t.Columns) > 0
	default:
		return nil, false
	}
}
