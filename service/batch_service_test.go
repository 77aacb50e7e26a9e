package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	model "github.com/veritext/backend/models"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgvectorFromSlice(v []float32) *pgvector.Vector {
	vec := pgvector.NewVector(v)
	return &vec
}

// fakeStore is an in-memory BatchStore with brute-force nearest-neighbor
// search over cosine distance.
type fakeStore struct {
	batches     map[string]*model.Batch
	documents   map[string]*model.Document
	comparisons []*model.Comparison
	nearestErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches:   map[string]*model.Batch{},
		documents: map[string]*model.Document{},
	}
}

func (f *fakeStore) addBatch(b *model.Batch) { f.batches[b.ID] = b }

func (f *fakeStore) addDocument(d *model.Document) { f.documents[d.ID] = d }

func (f *fakeStore) GetBatch(_ context.Context, id string) (*model.Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", id)
	}
	copied := *b
	return &copied, nil
}

func (f *fakeStore) SaveBatch(_ context.Context, batch *model.Batch) error {
	copied := *batch
	f.batches[batch.ID] = &copied
	return nil
}

func (f *fakeStore) ListBatchDocuments(_ context.Context, batchID string) ([]model.Document, error) {
	var docs []model.Document
	for _, d := range f.documents {
		if d.BatchID == batchID {
			docs = append(docs, *d)
		}
	}
	return docs, nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*model.Document, error) {
	d, ok := f.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	copied := *d
	return &copied, nil
}

func (f *fakeStore) SaveDocument(_ context.Context, doc *model.Document) error {
	copied := *doc
	f.documents[doc.ID] = &copied
	return nil
}

func (f *fakeStore) CreateComparison(_ context.Context, cmp *model.Comparison) error {
	f.comparisons = append(f.comparisons, cmp)
	return nil
}

func (f *fakeStore) ListBatchComparisons(_ context.Context, batchID string) ([]ComparisonRow, error) {
	var rows []ComparisonRow
	for _, c := range f.comparisons {
		a, okA := f.documents[c.DocA]
		b, okB := f.documents[c.DocB]
		if !okA || !okB || a.BatchID != batchID {
			continue
		}
		rows = append(rows, ComparisonRow{
			DocumentName:        a.Filename,
			SimilarDocumentName: b.Filename,
			Similarity:          c.Similarity,
		})
	}
	return rows, nil
}

func (f *fakeStore) NearestDocuments(_ context.Context, embedding []float32, topK int) ([]DocumentDistance, error) {
	if f.nearestErr != nil {
		return nil, f.nearestErr
	}
	var out []DocumentDistance
	for _, d := range f.documents {
		if !d.HasEmbedding() {
			continue
		}
		out = append(out, DocumentDistance{
			Document: *d,
			Distance: cosineDistance(embedding, d.Embedding.Slice()),
		})
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Distance < out[i].Distance {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// identityEncoder maps text deterministically onto a small vector so tests
// control which documents look similar.
type identityEncoder struct {
	vectors map[string][]float32
	dim     int
}

func (e *identityEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	vec := make([]float32, e.dim)
	vec[0] = 1
	return vec, nil
}

type fixedDetector struct {
	result DetectionResult
	calls  int
}

func (d *fixedDetector) Detect(string) DetectionResult {
	d.calls++
	return d.result
}

func newTestBatchService(store BatchStore, detector Detector, dim int, vectors map[string][]float32) *BatchService {
	embedder := NewEmbeddingService(&identityEncoder{vectors: vectors, dim: dim}, dim)
	return NewBatchService(store, embedder, NewComparisonService(store), detector)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.addBatch(&model.Batch{ID: "batch-1", AnalysisType: model.AnalysisAI, TotalDocs: 3, Status: model.BatchQueued})
	store.addDocument(&model.Document{ID: "doc-1", BatchID: "batch-1", Filename: "a.txt", TextContent: "fine text", Status: model.DocQueued})
	store.addDocument(&model.Document{ID: "doc-2", BatchID: "batch-1", Filename: "b.txt", TextContent: "", Status: model.DocQueued})
	store.addDocument(&model.Document{ID: "doc-3", BatchID: "batch-1", Filename: "c.txt", TextContent: "more fine text", Status: model.DocQueued})

	detector := &fixedDetector{result: DetectionResult{IsAI: true, Score: 0.9, Label: "AI"}}
	svc := newTestBatchService(store, detector, 4, nil)

	require.NoError(t, svc.ProcessBatch(context.Background(), "batch-1"))

	batch := store.batches["batch-1"]
	assert.Equal(t, model.BatchCompleted, batch.Status)
	assert.Equal(t, 2, batch.ProcessedDocs)

	assert.Equal(t, model.DocCompleted, store.documents["doc-1"].Status)
	assert.Equal(t, model.DocFailed, store.documents["doc-2"].Status)
	assert.Equal(t, model.DocCompleted, store.documents["doc-3"].Status)

	// the empty document never reached the detector
	assert.Equal(t, 2, detector.calls)
}

func TestProcessBatchAIMode(t *testing.T) {
	store := newFakeStore()
	store.addBatch(&model.Batch{ID: "batch-ai", AnalysisType: model.AnalysisAI, TotalDocs: 1, Status: model.BatchQueued})
	store.addDocument(&model.Document{ID: "doc-ai", BatchID: "batch-ai", Filename: "essay.txt", TextContent: "long enough to score", Status: model.DocQueued})

	detector := &fixedDetector{result: DetectionResult{IsAI: true, Score: 0.87, Label: "AI"}}
	svc := newTestBatchService(store, detector, 4, nil)

	require.NoError(t, svc.ProcessBatch(context.Background(), "batch-ai"))

	doc := store.documents["doc-ai"]
	assert.True(t, doc.IsAIGenerated)
	assert.InDelta(t, 0.87, doc.AIScore, 1e-9)
	// AI mode must not run the embedding path
	assert.False(t, doc.HasEmbedding())
	assert.Empty(t, store.comparisons)
}

func TestProcessBatchPlagiarismMode(t *testing.T) {
	vectors := map[string][]float32{
		"alpha beta gamma": {1, 0, 0, 0},
		"alpha beta delta": {0.9, 0.1, 0, 0},
		"something else":   {0, 0, 0, 1},
	}

	store := newFakeStore()
	// a previously indexed document from an older batch
	prev := pgvectorFromSlice([]float32{1, 0, 0, 0})
	store.addDocument(&model.Document{
		ID: "doc-old", BatchID: "batch-0", Filename: "old.txt",
		TextContent: "alpha beta gamma", Status: model.DocCompleted, Embedding: prev,
	})

	store.addBatch(&model.Batch{ID: "batch-2", AnalysisType: model.AnalysisPlagiarism, TotalDocs: 2, Status: model.BatchQueued})
	store.addDocument(&model.Document{ID: "doc-new", BatchID: "batch-2", Filename: "new.txt", TextContent: "alpha beta delta", Status: model.DocQueued})
	store.addDocument(&model.Document{ID: "doc-other", BatchID: "batch-2", Filename: "other.txt", TextContent: "something else", Status: model.DocQueued})

	detector := &fixedDetector{}
	svc := newTestBatchService(store, detector, 4, vectors)

	require.NoError(t, svc.ProcessBatch(context.Background(), "batch-2"))

	// plagiarism mode must not call the detector
	assert.Zero(t, detector.calls)

	assert.True(t, store.documents["doc-new"].HasEmbedding())

	var sawSelf bool
	var sawOld bool
	for _, c := range store.comparisons {
		if c.DocA == c.DocB {
			sawSelf = true
		}
		if c.DocA == "doc-new" && c.DocB == "doc-old" {
			sawOld = true
			assert.Greater(t, c.Similarity, 0.9)
		}
	}
	assert.False(t, sawSelf, "a document must never be compared against itself")
	assert.True(t, sawOld, "cross-batch near-duplicate should be recorded")
}

func TestProcessBatchBothMode(t *testing.T) {
	store := newFakeStore()
	store.addBatch(&model.Batch{ID: "batch-3", AnalysisType: model.AnalysisBoth, TotalDocs: 1, Status: model.BatchQueued})
	store.addDocument(&model.Document{ID: "doc-b", BatchID: "batch-3", Filename: "both.txt", TextContent: "scored and embedded", Status: model.DocQueued})

	detector := &fixedDetector{result: DetectionResult{IsAI: false, Score: 0.2, Label: "Human"}}
	svc := newTestBatchService(store, detector, 4, nil)

	require.NoError(t, svc.ProcessBatch(context.Background(), "batch-3"))

	doc := store.documents["doc-b"]
	assert.Equal(t, 1, detector.calls)
	assert.InDelta(t, 0.2, doc.AIScore, 1e-9)
	assert.True(t, doc.HasEmbedding())
}

func TestProcessBatchUnknownBatch(t *testing.T) {
	svc := newTestBatchService(newFakeStore(), &fixedDetector{}, 4, nil)
	err := svc.ProcessBatch(context.Background(), "missing")
	assert.Error(t, err)
}

func TestProcessDocumentRecoversPanic(t *testing.T) {
	store := newFakeStore()
	store.addBatch(&model.Batch{ID: "batch-p", AnalysisType: model.AnalysisAI, TotalDocs: 1, Status: model.BatchQueued})
	store.addDocument(&model.Document{ID: "doc-p", BatchID: "batch-p", Filename: "p.txt", TextContent: "text", Status: model.DocQueued})

	svc := NewBatchService(store, nil, nil, panicDetector{})

	require.NoError(t, svc.ProcessBatch(context.Background(), "batch-p"))
	assert.Equal(t, model.DocFailed, store.documents["doc-p"].Status)
	assert.Equal(t, model.BatchCompleted, store.batches["batch-p"].Status)
}

type panicDetector struct{}

func (panicDetector) Detect(string) DetectionResult { panic("scorer exploded") }

func TestFindSimilar(t *testing.T) {
	t.Run("empty embedding", func(t *testing.T) {
		svc := NewComparisonService(newFakeStore())
		assert.Nil(t, svc.FindSimilar(context.Background(), nil, 5))
	})

	t.Run("store failure yields empty result", func(t *testing.T) {
		store := newFakeStore()
		store.nearestErr = errors.New("connection refused")
		svc := NewComparisonService(store)
		assert.Empty(t, svc.FindSimilar(context.Background(), []float32{1, 0}, 5))
	})

	t.Run("distance is converted to similarity and ranked", func(t *testing.T) {
		store := newFakeStore()
		store.addDocument(&model.Document{ID: "near", Filename: "near.txt", Embedding: pgvectorFromSlice([]float32{1, 0})})
		store.addDocument(&model.Document{ID: "far", Filename: "far.txt", Embedding: pgvectorFromSlice([]float32{0, 1})})

		svc := NewComparisonService(store)
		results := svc.FindSimilar(context.Background(), []float32{1, 0}, 5)
		require.Len(t, results, 2)
		assert.Equal(t, "near", results[0].Document.ID)
		assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
		assert.Greater(t, results[0].Similarity, results[1].Similarity)
	})
}
