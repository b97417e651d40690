package knowledge

import "errors"

var (
	// ErrIndex wraps failures while indexing a research folder.
	ErrIndex = errors.New("knowledge index failed")
	// ErrRetrieval wraps failures while retrieving context.
	ErrRetrieval = errors.New("knowledge retrieval failed")
)

// Chunk is one indexed slice of a research document.
type Chunk struct {
	ID         string `json:"id"`
	Folder     string `json:"folder"`
	Path       string `json:"path"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
}

// Hit is a ranked retrieval result.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// IndexReceipt reports what one Index call added.
type IndexReceipt struct {
	Folder string `json:"folder"`
	Files  int    `json:"files"`
	Chunks int    `json:"chunks"`
}
