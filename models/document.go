package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Document statuses. Terminal states are sticky: once a document is
// completed or failed it is never reprocessed within its batch.
const (
	DocQueued     = "queued"
	DocProcessing = "processing"
	DocCompleted  = "completed"
	DocFailed     = "failed"
)

// EmbeddingDim is the fixed dimension of document embeddings
// (all-MiniLM-style sentence encoders).
const EmbeddingDim = 384

// Document is one file within a batch, with fields for both the database
// and the Elasticsearch search index.
type Document struct {
	// ID is a unique identifier for the document, stored as a UUID in the database.
	// In Elasticsearch, it's indexed as a keyword for exact matching.
	ID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id" elastic:"type:keyword"`

	// BatchID references the owning batch, indexed as a keyword.
	BatchID string `gorm:"type:uuid" json:"batch_id" elastic:"type:keyword"`

	// Filename is the original name of the uploaded file, indexed as text.
	Filename string `gorm:"not null" json:"filename" elastic:"type:text,analyzer:standard"`

	// StoragePath is the opaque blob-storage location of the original bytes.
	StoragePath string `json:"storage_path" elastic:"type:keyword"`

	// TextContent is the extracted plain text, indexed for full-text search.
	TextContent string `json:"text_content" elastic:"type:text,analyzer:standard"`

	// Embedding is the fixed-dimension document vector used for similarity
	// search. Nil when the embedding path was disabled or the text was empty.
	Embedding *pgvector.Vector `gorm:"type:vector(384)" json:"-"`

	// Status is queued, processing, completed or failed.
	Status string `gorm:"default:queued" json:"status" elastic:"type:keyword"`

	// AIScore is the aggregated AI-authorship probability in [0,1].
	AIScore float64 `json:"ai_score" elastic:"type:float"`

	// IsAIGenerated is the boolean verdict derived from AIScore.
	IsAIGenerated bool `json:"is_ai_generated"`

	CreatedAt time.Time `json:"created_at" elastic:"type:date"`
	UpdatedAt time.Time `json:"updated_at" elastic:"type:date"`

	// SearchContent is a computed field for full-text search, combining
	// Filename and TextContent. It's not stored in the database (gorm:"-")
	// but is indexed in Elasticsearch.
	SearchContent string `gorm:"-" json:"-" elastic:"type:text,analyzer:standard"`
}

// BeforeSave is a GORM hook to populate SearchContent before indexing.
func (d *Document) BeforeSave(tx *gorm.DB) error {
	d.SearchContent = d.Filename + " " + d.TextContent
	return nil
}

// HasEmbedding reports whether an embedding has been generated for the document.
func (d *Document) HasEmbedding() bool {
	return d.Embedding != nil && len(d.Embedding.Slice()) > 0
}
