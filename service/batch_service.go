package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	model "github.com/veritext/backend/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

const defaultTopK = 5

// BatchService drives a batch through extraction results, AI scoring,
// embedding and similarity comparison. One corrupt document must never abort
// the batch: every document is attempted, failures are isolated per document,
// and the batch always finishes as completed.
type BatchService struct {
	store      BatchStore
	embedder   *EmbeddingService
	comparator *ComparisonService
	detector   Detector
	topK       int
}

func NewBatchService(store BatchStore, embedder *EmbeddingService, comparator *ComparisonService, detector Detector) *BatchService {
	return &BatchService{
		store:      store,
		embedder:   embedder,
		comparator: comparator,
		detector:   detector,
		topK:       defaultTopK,
	}
}

// ProcessBatch runs the batch state machine: queued -> processing ->
// completed. Document failures are recorded on the document and the loop
// moves on; only batch-level bookkeeping errors propagate.
func (s *BatchService) ProcessBatch(ctx context.Context, batchID string) error {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("batch %s not found: %w", batchID, err)
	}

	batch.Status = model.BatchProcessing
	if err := s.store.SaveBatch(ctx, batch); err != nil {
		return err
	}

	docs, err := s.store.ListBatchDocuments(ctx, batchID)
	if err != nil {
		return err
	}

	analysisType := batch.AnalysisType
	if analysisType == "" {
		analysisType = model.AnalysisPlagiarism
	}

	completed := 0
	for i := range docs {
		doc := &docs[i]

		doc.Status = model.DocProcessing
		if err := s.store.SaveDocument(ctx, doc); err != nil {
			log.Printf("ERROR persisting processing status for document %s: %v", doc.ID, err)
			continue
		}

		if err := s.processDocument(ctx, analysisType, doc); err != nil {
			log.Printf("Error processing document %s: %v", doc.ID, err)
			doc.Status = model.DocFailed
			if saveErr := s.store.SaveDocument(ctx, doc); saveErr != nil {
				log.Printf("ERROR persisting failed status for document %s: %v", doc.ID, saveErr)
			}
			continue
		}

		doc.Status = model.DocCompleted
		if err := s.store.SaveDocument(ctx, doc); err != nil {
			log.Printf("ERROR persisting completed status for document %s: %v", doc.ID, err)
			continue
		}
		completed++
	}

	batch.Status = model.BatchCompleted
	batch.ProcessedDocs = completed
	if err := s.store.SaveBatch(ctx, batch); err != nil {
		return err
	}
	log.Printf("Batch %s completed: %d/%d documents processed", batchID, completed, len(docs))
	return nil
}

// processDocument runs the per-document pipeline steps. Any error (or panic
// from a collaborator) is returned so the caller can mark the document failed
// without touching its siblings.
func (s *BatchService) processDocument(ctx context.Context, analysisType string, doc *model.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing document %s: %v", doc.ID, r)
		}
	}()

	text := strings.TrimSpace(doc.TextContent)
	if text == "" {
		return fmt.Errorf("document %s has no extractable text", doc.Filename)
	}

	if analysisType == model.AnalysisAI || analysisType == model.AnalysisBoth {
		result := s.detector.Detect(doc.TextContent)
		doc.AIScore = result.Score
		doc.IsAIGenerated = result.IsAI
		log.Printf("AI detection for %s: label=%s score=%.3f", doc.Filename, result.Label, result.Score)
	}

	if (analysisType == model.AnalysisPlagiarism || analysisType == model.AnalysisBoth) && s.embedder.Enabled() {
		embedding, err := s.embedder.Embed(ctx, doc.TextContent)
		if err != nil {
			return fmt.Errorf("embedding failed for %s: %w", doc.Filename, err)
		}
		if len(embedding) > 0 {
			vec := pgvector.NewVector(embedding)
			doc.Embedding = &vec
			if err := s.store.SaveDocument(ctx, doc); err != nil {
				return fmt.Errorf("failed to persist embedding for %s: %w", doc.Filename, err)
			}

			for _, match := range s.comparator.FindSimilar(ctx, embedding, s.topK) {
				if match.Document.ID == doc.ID {
					continue
				}
				details, _ := json.Marshal(map[string]interface{}{
					"document_filename": doc.Filename,
					"matched_filename":  match.Document.Filename,
					"matched_batch_id":  match.Document.BatchID,
				})
				cmp := &model.Comparison{
					DocA:       doc.ID,
					DocB:       match.Document.ID,
					Similarity: match.Similarity,
					Details:    datatypes.JSON(details),
				}
				if err := s.store.CreateComparison(ctx, cmp); err != nil {
					return fmt.Errorf("failed to record comparison for %s: %w", doc.Filename, err)
				}
			}
		}
	}

	return nil
}
