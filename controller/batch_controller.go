package controller

import (
	"fmt"
	"log"
	"net/http"

	service "github.com/veritext/backend/service"

	"github.com/gin-gonic/gin"
)

// BatchController exposes batch status, results and report exports.
type BatchController struct {
	store   service.BatchStore
	report  *service.ReportService
	storage *service.StorageService
}

func NewBatchController(store service.BatchStore, report *service.ReportService, storage *service.StorageService) *BatchController {
	return &BatchController{store: store, report: report, storage: storage}
}

// GetBatch returns the batch's bookkeeping record. A completed batch means
// every document was attempted; compare processed_docs with total_docs to
// see how many succeeded.
func (c *BatchController) GetBatch(ctx *gin.Context) {
	batch, err := c.store.GetBatch(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "data": batch})
}

// GetBatchDocuments lists the batch's documents with their statuses.
func (c *BatchController) GetBatchDocuments(ctx *gin.Context) {
	docs, err := c.store.ListBatchDocuments(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "data": docs, "total": len(docs)})
}

// GetBatchResults returns the similarity comparisons recorded for the batch,
// joined with the filenames of both documents.
func (c *BatchController) GetBatchResults(ctx *gin.Context) {
	rows, err := c.store.ListBatchComparisons(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		log.Printf("Error fetching batch results: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "data": rows})
}

// GetDocument returns one document record.
func (c *BatchController) GetDocument(ctx *gin.Context) {
	doc, err := c.store.GetDocument(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	response := gin.H{"status": "ok", "data": doc}
	if c.storage != nil && doc.StoragePath != "" {
		if url, err := c.storage.DownloadURL(doc.StoragePath); err == nil {
			response["download_url"] = url
		} else {
			log.Printf("Error presigning download for document %s: %v", doc.ID, err)
		}
	}
	ctx.JSON(http.StatusOK, response)
}

// ExportCSV streams the batch report as a CSV attachment.
func (c *BatchController) ExportCSV(ctx *gin.Context) {
	batchID := ctx.Param("id")
	if _, err := c.store.GetBatch(ctx.Request.Context(), batchID); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	docs, err := c.store.ListBatchDocuments(ctx.Request.Context(), batchID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	content, err := c.report.GenerateCSV(docs)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=report_%s.csv", batchID))
	ctx.Data(http.StatusOK, "text/csv", []byte(content))
}

// ExportPDF streams the batch report as a PDF attachment.
func (c *BatchController) ExportPDF(ctx *gin.Context) {
	batchID := ctx.Param("id")
	batch, err := c.store.GetBatch(ctx.Request.Context(), batchID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	docs, err := c.store.ListBatchDocuments(ctx.Request.Context(), batchID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	content, err := c.report.GeneratePDF(batch, docs)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=report_%s.pdf", batchID))
	ctx.Data(http.StatusOK, "application/pdf", content)
}
