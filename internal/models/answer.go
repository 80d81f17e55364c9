package models

import "time"

// AnswerRecord is the output of answer generation
type AnswerRecord struct {
	Answer         string        `json:"answer"`
	Confidence     float64       `json:"confidence"`
	Citations      []string      `json:"citations"`
	Sources        []string      `json:"sources"`
	GenerationTime time.Duration `json:"generation_time"`
	Error          string        `json:"error,omitempty"`
}

// RetrievalSummary is a shortened view of a retrieval result returned with an answer
type RetrievalSummary struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Score   float64 `json:"score"`
}

// ChatResponse is the envelope returned for a question
type ChatResponse struct {
	AnswerRecord
	RetrievalResults []RetrievalSummary `json:"retrieval_results"`
	TotalTime        time.Duration      `json:"total_time"`
}

// SearchResult is a retrieval result formatted for listing without an answer
type SearchResult struct {
	Content         string   `json:"content"`
	Source          string   `json:"source"`
	Page            int      `json:"page,omitempty"`
	SimilarityScore float64  `json:"similarity_score"`
	Citations       []string `json:"citations"`
}

type CollectionStats struct {
	TotalDocuments int    `json:"total_documents"`
	CollectionName string `json:"collection_name"`
	Location       string `json:"location"`
}

type IngestStats struct {
	CollectionStats
	NewChunks      int           `json:"new_chunks"`
	FilesProcessed int           `json:"files_processed"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// FileIssue records a file skipped during folder ingestion
type FileIssue struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type IngestResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Stats   IngestStats `json:"stats"`
	Skipped []FileIssue `json:"skipped,omitempty"`
}

// OperationResult is the envelope for operations without a payload
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SystemStats struct {
	VectorStore         CollectionStats `json:"vector_store"`
	ChunkSize           int             `json:"chunk_size"`
	ChunkOverlap        int             `json:"chunk_overlap"`
	RetrievalK          int             `json:"retrieval_k"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
	Error               string          `json:"error,omitempty"`
}
