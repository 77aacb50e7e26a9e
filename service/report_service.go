package services

import (
	"bytes"
	"encoding/csv"
	"fmt"

	model "github.com/veritext/backend/models"

	"github.com/jung-kurt/gofpdf"
)

// ReportService renders batch results as CSV and PDF exports.
type ReportService struct{}

func NewReportService() *ReportService {
	return &ReportService{}
}

// GenerateCSV renders one row per document.
func (s *ReportService) GenerateCSV(docs []model.Document) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Filename", "Status", "AI Score", "Is AI?"}); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, doc := range docs {
		verdict := "No"
		if doc.IsAIGenerated {
			verdict = "Yes"
		}
		row := []string{
			doc.Filename,
			doc.Status,
			fmt.Sprintf("%.2f", doc.AIScore),
			verdict,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.String(), nil
}

// GeneratePDF renders a simple tabular report for the batch.
func (s *ReportService) GeneratePDF(batch *model.Batch, docs []model.Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("Analysis Report - Batch %s", batch.ID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Total Documents: %d", len(docs)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Processed: %d", batch.ProcessedDocs), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(220, 220, 220)
	pdf.CellFormat(90, 8, "Filename", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "AI Score", "1", 0, "C", true, 0, "")
	pdf.CellFormat(60, 8, "Verdict", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, doc := range docs {
		verdict := "Human-Written"
		if doc.IsAIGenerated {
			verdict = "AI-Generated"
		}
		if doc.Status == model.DocFailed {
			verdict = "Failed"
		}
		pdf.CellFormat(90, 8, doc.Filename, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.1f%%", doc.AIScore*100), "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 8, verdict, "1", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF report: %w", err)
	}
	return buf.Bytes(), nil
}
