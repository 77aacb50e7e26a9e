package controller

import (
	"errors"
	"io"
	"log"
	"net/http"

	service "github.com/veritext/backend/service"

	"github.com/gin-gonic/gin"
)

// DocumentController manages HTTP requests for uploads and ad-hoc checks.
type DocumentController struct {
	service  *service.DocumentService
	detector service.Detector
}

// NewDocumentController initializes the controller with its services.
func NewDocumentController(docService *service.DocumentService, detector service.Detector) *DocumentController {
	return &DocumentController{service: docService, detector: detector}
}

// UploadBatch accepts a multipart upload of one or more files (archives
// included), creates a batch and returns 202 immediately; processing happens
// out of band.
func (c *DocumentController) UploadBatch(ctx *gin.Context) {
	form, err := ctx.MultipartForm()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse multipart form"})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	var uploads []service.Upload
	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file", "details": err.Error()})
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file", "details": err.Error()})
			return
		}
		uploads = append(uploads, service.Upload{
			Filename:    header.Filename,
			Data:        data,
			ContentType: header.Header.Get("Content-Type"),
		})
	}

	// Identity is established upstream; the auth layer forwards the user id.
	userID := ctx.GetHeader("X-User-ID")
	analysisType := ctx.PostForm("analysis_type")

	batch, err := c.service.CreateBatch(ctx.Request.Context(), userID, analysisType, uploads)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientCredits) {
			ctx.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credits. Please top up."})
			return
		}
		log.Printf("Error creating batch: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"message":  "Batch accepted for processing",
		"batch_id": batch.ID,
		"total":    batch.TotalDocs,
	})
}

// CheckAI scores a raw text for AI authorship synchronously.
func (c *DocumentController) CheckAI(ctx *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := c.detector.Detect(req.Text)
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}

// CheckPlagiarism runs the web-matching scan on a single uploaded file.
func (c *DocumentController) CheckPlagiarism(ctx *gin.Context) {
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Failed to get file from request"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	userID := ctx.GetHeader("X-User-ID")
	report, err := c.service.CheckPlagiarism(ctx.Request.Context(), userID, header.Filename, data)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientCredits) {
			ctx.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credits. Please top up."})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "data": report})
}

// SearchDocuments runs a full-text query over the indexed corpus.
func (c *DocumentController) SearchDocuments(ctx *gin.Context) {
	query := ctx.Query("q")
	if query == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}

	results, err := c.service.SearchDocuments(query)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Search completed successfully",
		"results": results,
	})
}
