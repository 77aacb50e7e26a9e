package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	model "github.com/veritext/backend/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInsufficientCredits rejects a scan before any pipeline work begins.
var ErrInsufficientCredits = errors.New("insufficient scan credits")

// allowedUploadExtensions is the allow-list applied to direct uploads and to
// files expanded out of archives.
var allowedUploadExtensions = []string{".txt", ".md", ".pdf", ".docx", ".doc", ".png", ".jpg", ".jpeg"}

// Upload is one file received by the upload endpoint.
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
}

// DocumentService handles upload ingestion: archive expansion, blob storage,
// synchronous text extraction, Elasticsearch indexing and batch submission.
type DocumentService struct {
	db         *gorm.DB
	esClient   *elasticsearch.Client
	storage    *StorageService
	extractor  *ExtractorService
	archive    *ArchiveService
	queue      *QueueService
	plagiarism *PlagiarismService
	scanCost   int
}

// NewDocumentService wires the ingestion path. The Elasticsearch client is
// optional: a missing ELASTICSEARCH_URL only disables search indexing.
func NewDocumentService(db *gorm.DB, storage *StorageService, extractor *ExtractorService, archive *ArchiveService, queue *QueueService, plagiarism *PlagiarismService) (*DocumentService, error) {
	var esClient *elasticsearch.Client
	if esURL := os.Getenv("ELASTICSEARCH_URL"); esURL != "" {
		var err error
		esClient, err = elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{esURL}})
		if err != nil {
			log.Printf("Warning: Failed to create Elasticsearch client: %v", err)
		}
	}

	scanCost := 1
	if v := os.Getenv("SCAN_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			scanCost = n
		}
	}

	return &DocumentService{
		db:         db,
		esClient:   esClient,
		storage:    storage,
		extractor:  extractor,
		archive:    archive,
		queue:      queue,
		plagiarism: plagiarism,
		scanCost:   scanCost,
	}, nil
}

// CreateBatch ingests the uploaded files into a new batch and submits it for
// asynchronous processing. Archives are expanded in place; extraction runs
// synchronously so documents carry their text before the batch is queued. A
// file whose extraction fails is still created (with empty text) and will be
// marked failed during processing, keeping one bad file from rejecting the
// whole upload.
func (s *DocumentService) CreateBatch(ctx context.Context, userID, analysisType string, uploads []Upload) (*model.Batch, error) {
	log.Printf("Starting batch ingestion: %d upload(s), mode=%s", len(uploads), analysisType)

	switch analysisType {
	case model.AnalysisPlagiarism, model.AnalysisAI, model.AnalysisBoth:
	case "":
		analysisType = model.AnalysisPlagiarism
	default:
		return nil, fmt.Errorf("unknown analysis type %q", analysisType)
	}

	if err := s.chargeUser(ctx, userID); err != nil {
		return nil, err
	}

	files := s.expandUploads(uploads)
	if len(files) == 0 {
		return nil, fmt.Errorf("no processable files in upload")
	}

	batch := &model.Batch{
		ID:           uuid.New().String(),
		UserID:       userID,
		AnalysisType: analysisType,
		TotalDocs:    len(files),
		Status:       model.BatchQueued,
	}
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	for _, file := range files {
		storagePath := fmt.Sprintf("%s/%s", batch.ID, file.Name)
		location, err := s.storage.Save(storagePath, file.Data, http.DetectContentType(file.Data))
		if err != nil {
			log.Printf("ERROR storing %s: %v", file.Name, err)
			location = ""
		}

		text, err := s.extractor.Extract(file.Data, file.Name)
		if err != nil {
			log.Printf("ERROR extracting text from %s: %v", file.Name, err)
			text = ""
		}

		doc := &model.Document{
			ID:          uuid.New().String(),
			BatchID:     batch.ID,
			Filename:    file.Name,
			StoragePath: location,
			TextContent: text,
			Status:      model.DocQueued,
		}
		if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
			return nil, fmt.Errorf("failed to save document %s: %w", file.Name, err)
		}
		s.indexDocument(doc)
	}

	if err := s.queue.SubmitBatch(ctx, batch.ID); err != nil {
		return nil, err
	}
	log.Printf("Batch %s created with %d document(s)", batch.ID, batch.TotalDocs)
	return batch, nil
}

// expandUploads flattens archives into their member files and passes regular
// files through. A corrupt archive is logged and skipped; the rest of the
// upload continues.
func (s *DocumentService) expandUploads(uploads []Upload) []ExtractedFile {
	var files []ExtractedFile
	for _, up := range uploads {
		if s.archive.IsArchive(up.Filename) {
			files = append(files, s.archive.Expand(up.Filename, up.Data, allowedUploadExtensions)...)
			continue
		}
		files = append(files, ExtractedFile{Name: up.Filename, Data: up.Data})
	}
	return files
}

// CheckPlagiarism runs the ad-hoc web-matching scan on a single uploaded
// file. The credit precondition is checked before any work; extraction
// failure rejects the request since no batch bookkeeping exists yet.
func (s *DocumentService) CheckPlagiarism(ctx context.Context, userID string, filename string, data []byte) (*PlagiarismReport, error) {
	if s.plagiarism == nil || !s.plagiarism.Enabled() {
		return nil, fmt.Errorf("web plagiarism search is not configured")
	}
	if err := s.chargeUser(ctx, userID); err != nil {
		return nil, err
	}

	text, err := s.extractor.Extract(data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("could not extract text from file")
	}

	return s.plagiarism.CheckPlagiarism(text)
}

// chargeUser enforces the scan-credit precondition and deducts the cost. An
// empty userID (internal callers) skips the check.
func (s *DocumentService) chargeUser(ctx context.Context, userID string) error {
	if userID == "" || s.scanCost == 0 {
		return nil
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if user.ScanCredits < s.scanCost {
		return ErrInsufficientCredits
	}
	user.ScanCredits -= s.scanCost
	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		return fmt.Errorf("failed to update credits for user %s: %w", userID, err)
	}
	return nil
}

// indexDocument indexes the document's extracted text in Elasticsearch.
// Indexing problems never break the upload.
func (s *DocumentService) indexDocument(doc *model.Document) {
	if s.esClient == nil {
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"batch_id":     doc.BatchID,
		"filename":     doc.Filename,
		"text_content": doc.TextContent,
		"timestamp":    time.Now().UTC(),
	})
	if err != nil {
		log.Printf("ERROR marshaling document %s for indexing: %v", doc.ID, err)
		return
	}

	res, err := s.esClient.Index(
		"documents",
		bytes.NewReader(body),
		s.esClient.Index.WithDocumentID(doc.ID),
		s.esClient.Index.WithContext(context.Background()),
	)
	if err != nil {
		log.Printf("Elasticsearch indexing error: %v", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Printf("Elasticsearch indexing failed: %s", res.String())
		return
	}
	log.Printf("Document %s indexed in Elasticsearch", doc.ID)
}

// SearchDocuments runs a full-text query over the indexed corpus.
func (s *DocumentService) SearchDocuments(query string) ([]map[string]interface{}, error) {
	if s.esClient == nil {
		return nil, fmt.Errorf("elasticsearch client is not initialized")
	}

	searchQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"text_content", "filename"},
			},
		},
	}
	body, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(context.Background()),
		s.esClient.Search.WithIndex("documents"),
		s.esClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hitsMap, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits structure in search response")
	}
	hitsArray, ok := hitsMap["hits"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits array in search response")
	}

	var documents []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		documents = append(documents, source)
	}
	return documents, nil
}
