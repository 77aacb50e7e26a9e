package services

import (
	"context"
	"fmt"
	"log"
)

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

// Encoder maps one text chunk to a fixed-dimension vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingService turns a document of arbitrary length into a single
// fixed-dimension embedding by chunking the text and averaging the per-chunk
// vectors.
type EmbeddingService struct {
	encoder   Encoder
	chunkSize int
	overlap   int
	dim       int
}

func NewEmbeddingService(encoder Encoder, dim int) *EmbeddingService {
	return &EmbeddingService{
		encoder:   encoder,
		chunkSize: defaultChunkSize,
		overlap:   defaultChunkOverlap,
		dim:       dim,
	}
}

// Enabled reports whether an encoder is configured.
func (s *EmbeddingService) Enabled() bool {
	return s != nil && s.encoder != nil
}

// ChunkText splits text into overlapping chunks. The cursor advances by
// size-overlap each step; the final chunk is always emitted even when it is
// shorter than size, so the chunk set covers the text end to end.
func (s *EmbeddingService) ChunkText(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	step := size - overlap
	var chunks []string
	for i := 0; i < len(text); i += step {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[i:end])
		if i+size >= len(text) {
			break
		}
	}
	return chunks
}

// Embed returns the document-level embedding: the element-wise mean of the
// per-chunk vectors. Empty input yields a nil vector and no error; callers
// treat that as "embedding unavailable".
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	chunks := s.ChunkText(text, s.chunkSize, s.overlap)
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := s.encoder.Encode(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to encode chunk: %w", err)
		}
		if len(vec) != s.dim {
			return nil, fmt.Errorf("encoder returned %d dimensions, expected %d", len(vec), s.dim)
		}
		vectors = append(vectors, vec)
	}

	log.Printf("Embedded %d chunk(s) into a %d-dim vector", len(vectors), s.dim)
	return meanVectors(vectors), nil
}

// meanVectors computes the element-wise arithmetic mean. The result does not
// depend on the order of the input vectors.
func meanVectors(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, vec := range vectors {
		for i, v := range vec {
			sums[i] += float64(v)
		}
	}
	mean := make([]float32, dim)
	for i, sum := range sums {
		mean[i] = float32(sum / float64(len(vectors)))
	}
	return mean
}
