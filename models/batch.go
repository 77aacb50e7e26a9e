package models

import "time"

// Analysis modes accepted at upload time.
const (
	AnalysisPlagiarism = "plagiarism"
	AnalysisAI         = "ai"
	AnalysisBoth       = "both"
)

// Batch statuses. A batch never rolls back and never fails as a whole:
// "completed" means every document was attempted.
const (
	BatchQueued     = "queued"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
)

// Batch groups the documents submitted in a single upload and tracks
// their collective progress through the pipeline.
type Batch struct {
	// ID is a unique identifier for the batch, stored as a UUID in the database.
	ID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	// UserID references the user who submitted the batch. Empty for
	// anonymous uploads.
	UserID string `json:"user_id"`

	// AnalysisType is the requested analysis mode: plagiarism, ai or both.
	AnalysisType string `gorm:"default:plagiarism" json:"analysis_type"`

	// TotalDocs is the number of documents ingested for this batch.
	TotalDocs int `json:"total_docs"`

	// ProcessedDocs counts the documents that reached the completed status.
	ProcessedDocs int `json:"processed_docs"`

	// Status is queued, processing or completed.
	Status string `gorm:"default:queued" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
