package models

// Page is one logical unit of extracted text (a PDF page, a sheet, a slide or a whole file).
// PageNumber is 0 for formats without pages.
type Page struct {
	Text       string
	PageNumber int
	Source     string
}

// Chunk represents a window of words taken from a single page
type Chunk struct {
	Content    string            `json:"content"`
	Source     string            `json:"source"`
	PageNumber int               `json:"page_number,omitempty"`
	ChunkID    string            `json:"chunk_id"`
	Metadata   map[string]string `json:"metadata"`
}

// Match is a raw scored entry returned by the vector store
type Match struct {
	ID              string
	Content         string
	Metadata        map[string]string
	Distance        float64
	SimilarityScore float64
}

// RetrievalResult is a deduplicated, cited match handed to answer generation
type RetrievalResult struct {
	Content         string            `json:"content"`
	Source          string            `json:"source"`
	PageNumber      int               `json:"page_number,omitempty"`
	SimilarityScore float64           `json:"similarity_score"`
	Metadata        map[string]string `json:"metadata"`
	Citations       []string          `json:"citations"`
}
