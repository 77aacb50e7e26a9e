package services

import (
	"context"
	"log"

	model "github.com/veritext/backend/models"
)

// SimilarityResult is one ranked nearest neighbor, normalized so that higher
// is always more similar.
type SimilarityResult struct {
	Document   model.Document
	Similarity float64
}

// ComparisonService finds the nearest stored documents to a query embedding.
type ComparisonService struct {
	store BatchStore
}

func NewComparisonService(store BatchStore) *ComparisonService {
	return &ComparisonService{store: store}
}

// FindSimilar returns up to topK documents ranked by descending cosine
// similarity. pgvector's cosine distance operator returns 1 - similarity, so
// similarity is recovered as 1 - distance. A store failure is logged and
// returned as an empty result: "no similar documents found" — which callers
// must not read as "definitively no duplicates".
func (s *ComparisonService) FindSimilar(ctx context.Context, embedding []float32, topK int) []SimilarityResult {
	if len(embedding) == 0 {
		return nil
	}

	neighbors, err := s.store.NearestDocuments(ctx, embedding, topK)
	if err != nil {
		log.Printf("ERROR in FindSimilar: %v", err)
		return nil
	}

	results := make([]SimilarityResult, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, SimilarityResult{
			Document:   n.Document,
			Similarity: 1 - n.Distance,
		})
	}
	return results
}
