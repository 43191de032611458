// Package ingest turns documents, web pages, and spreadsheets into embedded
// chunks in a conversation partition.
package ingest

// Chunk splits text into character windows of size chunkSize, sliding forward
// by chunkSize-overlap each step; the final chunk may be shorter. Empty input
// yields nil. An overlap >= chunkSize is clamped to chunkSize/2.
func Chunk(text string, chunkSize, overlap int) []string {
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	if overlap < 0 {
		overlap = 0
	}
	// Windows are measured in runes, not bytes, so multibyte text never gets
	// cut mid-character.
	runes := []rune(text)
	var chunks []string
	step := chunkSize - overlap
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
