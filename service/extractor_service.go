package services

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// scannedPDFThreshold: a PDF whose native extraction yields fewer characters
// than this is assumed to be a scanned image embedded in a PDF and is retried
// through OCR.
const scannedPDFThreshold = 50

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tiff": true, ".tif": true, ".bmp": true,
}

// OCR is the collaborator that turns image bytes into text.
type OCR interface {
	ImageToText(data []byte, filename string) (string, error)
	ScannedPDFToText(data []byte, filename string) (string, error)
}

// ExtractorService converts raw file bytes into plain text, dispatching on
// the filename extension.
type ExtractorService struct {
	ocr OCR

	// overridable in tests
	pdfText  func(data []byte) (string, error)
	docxText func(data []byte) (string, error)
}

func NewExtractorService(ocr OCR) *ExtractorService {
	return &ExtractorService{
		ocr:      ocr,
		pdfText:  parsePDFText,
		docxText: parseDocxText,
	}
}

// IsImage reports whether the filename looks like a supported image format.
func (s *ExtractorService) IsImage(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Extract returns the plain text of the file. Unrecognized formats and parser
// failures return an error; callers treat empty-after-trim text as a terminal
// document failure rather than a success.
func (s *ExtractorService) Extract(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".txt" || ext == ".md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("file %s is not valid UTF-8 text", filename)
		}
		return string(data), nil
	case ext == ".pdf":
		return s.extractPDF(data, filename)
	case ext == ".docx" || ext == ".doc":
		text, err := s.docxText(data)
		if err != nil {
			return "", fmt.Errorf("failed to parse Word document %s: %w", filename, err)
		}
		return text, nil
	case imageExtensions[ext]:
		if s.ocr == nil {
			return "", fmt.Errorf("no OCR backend configured for image %s", filename)
		}
		text, err := s.ocr.ImageToText(data, filename)
		if err != nil {
			return "", fmt.Errorf("OCR failed for image %s: %w", filename, err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("unsupported file format: %s", filename)
	}
}

// extractPDF parses the PDF text layer, falling back to OCR when the result
// is short enough to indicate a scanned document. The longer trimmed output
// wins.
func (s *ExtractorService) extractPDF(data []byte, filename string) (string, error) {
	text, err := s.pdfText(data)
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF %s: %w", filename, err)
	}

	if len(strings.TrimSpace(text)) >= scannedPDFThreshold || s.ocr == nil {
		return text, nil
	}

	log.Printf("PDF %s yielded %d chars, retrying through OCR", filename, len(strings.TrimSpace(text)))
	ocrText, err := s.ocr.ScannedPDFToText(data, filename)
	if err != nil {
		log.Printf("ERROR in OCR fallback for %s: %v", filename, err)
		return text, nil
	}
	if len(strings.TrimSpace(ocrText)) > len(strings.TrimSpace(text)) {
		return ocrText, nil
	}
	return text, nil
}

func parsePDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", err
	}
	return sb.String(), nil
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func parseDocxText(data []byte) (string, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer reader.Close()

	content := reader.Editable().GetContent()
	// GetContent returns the document XML; strip the markup.
	text := xmlTagPattern.ReplaceAllString(content, " ")
	return strings.TrimSpace(text), nil
}
