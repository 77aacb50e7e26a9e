package models

import (
	"time"

	"gorm.io/datatypes"
)

// Comparison records the cosine similarity between two documents. Rows are
// directional as stored (DocA queried against DocB) but represent a symmetric
// relationship; a document is never compared against itself. Immutable once
// created.
type Comparison struct {
	// ID is a unique identifier for the comparison, stored as a UUID.
	ID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	// DocA references the document under analysis.
	DocA string `gorm:"type:uuid" json:"doc_a"`

	// DocB references the similar document found in the corpus.
	DocB string `gorm:"type:uuid" json:"doc_b"`

	// Similarity is the cosine similarity between the two embeddings.
	Similarity float64 `json:"similarity"`

	// Details is an optional JSONB payload with match provenance.
	Details datatypes.JSON `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
