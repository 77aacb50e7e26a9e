package services

import (
	"context"
	"fmt"
	"log"

	model "github.com/veritext/backend/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// DocumentDistance pairs a stored document with its vector distance from a
// query embedding, using the store's native distance convention (pgvector
// cosine distance: 0 is identical, 2 is opposite).
type DocumentDistance struct {
	Document model.Document
	Distance float64
}

// ComparisonRow is a comparison joined with the filenames of both documents,
// the shape the results endpoint returns.
type ComparisonRow struct {
	DocumentName        string  `json:"document_name"`
	SimilarDocumentName string  `json:"similar_document_name"`
	Similarity          float64 `json:"similarity"`
}

// BatchStore is the persistence surface the pipeline needs. The production
// implementation is GORM over Postgres with pgvector; tests use an in-memory
// fake.
type BatchStore interface {
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	SaveBatch(ctx context.Context, batch *model.Batch) error
	ListBatchDocuments(ctx context.Context, batchID string) ([]model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	SaveDocument(ctx context.Context, doc *model.Document) error
	CreateComparison(ctx context.Context, cmp *model.Comparison) error
	ListBatchComparisons(ctx context.Context, batchID string) ([]ComparisonRow, error)
	// NearestDocuments runs a nearest-neighbor query over the embedding
	// column and returns up to topK documents with their distances.
	NearestDocuments(ctx context.Context, embedding []float32, topK int) ([]DocumentDistance, error)
}

// GormStore implements BatchStore on a gorm.DB connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	var batch model.Batch
	if err := s.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", id, err)
	}
	return &batch, nil
}

func (s *GormStore) SaveBatch(ctx context.Context, batch *model.Batch) error {
	if err := s.db.WithContext(ctx).Save(batch).Error; err != nil {
		return fmt.Errorf("failed to save batch %s: %w", batch.ID, err)
	}
	return nil
}

func (s *GormStore) ListBatchDocuments(ctx context.Context, batchID string) ([]model.Document, error) {
	var docs []model.Document
	if err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("created_at").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents for batch %s: %w", batchID, err)
	}
	return docs, nil
}

func (s *GormStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *GormStore) SaveDocument(ctx context.Context, doc *model.Document) error {
	if err := s.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *GormStore) CreateComparison(ctx context.Context, cmp *model.Comparison) error {
	if err := s.db.WithContext(ctx).Create(cmp).Error; err != nil {
		return fmt.Errorf("failed to create comparison %s -> %s: %w", cmp.DocA, cmp.DocB, err)
	}
	return nil
}

func (s *GormStore) ListBatchComparisons(ctx context.Context, batchID string) ([]ComparisonRow, error) {
	var rows []ComparisonRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT da.filename AS document_name,
		       db.filename AS similar_document_name,
		       c.similarity
		FROM comparisons c
		JOIN documents da ON c.doc_a = da.id
		JOIN documents db ON c.doc_b = db.id
		WHERE da.batch_id = ?
		ORDER BY c.similarity DESC`, batchID).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list comparisons for batch %s: %w", batchID, err)
	}
	return rows, nil
}

func (s *GormStore) NearestDocuments(ctx context.Context, embedding []float32, topK int) ([]DocumentDistance, error) {
	query := pgvector.NewVector(embedding)

	var rows []struct {
		model.Document
		Distance float64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT *, (embedding <=> ?) AS distance
		FROM documents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> ?
		LIMIT ?`, query, query, topK).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query failed: %w", err)
	}

	results := make([]DocumentDistance, 0, len(rows))
	for _, row := range rows {
		results = append(results, DocumentDistance{Document: row.Document, Distance: row.Distance})
	}
	log.Printf("NearestDocuments: %d candidates for topK=%d", len(results), topK)
	return results, nil
}
