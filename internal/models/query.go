package models

import "fmt"

// QueryRequest is a question against one conversation's ingested chunks.
type QueryRequest struct {
	Query          string `json:"query"`
	K              int    `json:"k,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

// Validate ensures the request has valid fields and sets defaults.
func (q *QueryRequest) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.K <= 0 {
		q.K = 5
	}
	if q.K > 20 {
		q.K = 20
	}
	return nil
}
