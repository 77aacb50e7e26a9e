package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	controller "github.com/veritext/backend/controller"
	"github.com/veritext/backend/initializers"
	middleware "github.com/veritext/backend/middleware"
	service "github.com/veritext/backend/service"

	"github.com/gin-gonic/gin"
)

func init() {
	if err := initializers.LoadEnv(); err != nil {
		log.Printf("[WARN] no .env file loaded: %s", err)
	}
	if err := initializers.ConnectDB(); err != nil {
		log.Fatalf("[CRITICAL] Failed to initialize database connection: %s", err)
	}
	if err := initializers.Migrate(); err != nil {
		log.Fatalf("[CRITICAL] Failed to run database migrations: %s", err)
	}
	if err := initializers.ConnectRedis(); err != nil {
		log.Fatalf("[CRITICAL] Failed to connect to redis: %s", err)
	}
}

func main() {
	storage, err := service.NewStorageService()
	if err != nil {
		log.Fatalf("Failed to initialize storage service: %s", err)
	}

	var ocr service.OCR
	if ocrService, err := service.NewOCRService(); err != nil {
		log.Printf("[WARN] OCR disabled: %s", err)
	} else {
		ocr = ocrService
	}
	extractor := service.NewExtractorService(ocr)
	archive := service.NewArchiveService()

	encoder := service.NewOllamaEncoder(os.Getenv("OLLAMA_EMBED_MODEL"), os.Getenv("OLLAMA_URL"))
	embedder := service.NewEmbeddingService(encoder, 384)

	store := service.NewGormStore(initializers.DB)
	comparator := service.NewComparisonService(store)
	detector := service.NewAIDetectionService()
	plagiarism := service.NewPlagiarismService()

	batchService := service.NewBatchService(store, embedder, comparator, detector)

	queue := service.NewQueueService(initializers.Redis, batchService, 2)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)

	docService, err := service.NewDocumentService(initializers.DB, storage, extractor, archive, queue, plagiarism)
	if err != nil {
		log.Fatalf("Failed to initialize document service: %s", err)
	}
	report := service.NewReportService()

	docController := controller.NewDocumentController(docService, detector)
	batchController := controller.NewBatchController(store, report, storage)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	// Global rate limiter for most routes
	router.Use(middleware.GlobalRateLimiter.Limit())

	// Sensitive routes with stricter rate limiting
	router.POST("/upload",
		middleware.StrictRateLimiter.Limit(),
		docController.UploadBatch)

	router.POST("/plagiarism-check",
		middleware.StrictRateLimiter.Limit(),
		docController.CheckPlagiarism)

	router.POST("/ai-check", docController.CheckAI)

	// Healthcheck endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Batch and document endpoints
	router.GET("/batches/:id", batchController.GetBatch)
	router.GET("/batches/:id/documents", batchController.GetBatchDocuments)
	router.GET("/batches/:id/results", batchController.GetBatchResults)
	router.GET("/batches/:id/export/csv", batchController.ExportCSV)
	router.GET("/batches/:id/export/pdf", batchController.ExportPDF)
	router.GET("/documents/:id", batchController.GetDocument)
	router.GET("/search", docController.SearchDocuments)

	router.Run(":8080")
}
