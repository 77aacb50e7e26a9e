package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultOCREndpoint = "https://api.ocr.space/parse/image"

// OCRService extracts text from images and scanned PDFs through the
// OCR.space API.
type OCRService struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewOCRService reads OCR_SPACE_API_KEY (required) and OCR_SPACE_ENDPOINT
// (optional, defaults to the public API).
func NewOCRService() (*OCRService, error) {
	apiKey := strings.TrimSpace(os.Getenv("OCR_SPACE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("OCR_SPACE_API_KEY environment variable is not set")
	}

	endpoint := os.Getenv("OCR_SPACE_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultOCREndpoint
	}

	return &OCRService{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// ImageToText runs OCR on a single image.
func (s *OCRService) ImageToText(data []byte, filename string) (string, error) {
	pages, err := s.parse(data, filename, imageFileType(filename))
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n\n"), nil
}

// ScannedPDFToText runs OCR on a PDF whose pages are images. Per-page text is
// concatenated with a blank-line separator.
func (s *OCRService) ScannedPDFToText(data []byte, filename string) (string, error) {
	pages, err := s.parse(data, filename, "PDF")
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n\n"), nil
}

// parse sends the file to OCR.space and returns the per-page parsed text.
func (s *OCRService) parse(data []byte, filename, fileType string) ([]string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fields := map[string]string{
		"apikey":            s.apiKey,
		"language":          "eng",
		"isOverlayRequired": "false",
		"filetype":          fileType,
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", key, err)
		}
	}

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file bytes: %w", err)
	}
	w.Close()

	req, err := http.NewRequest(http.MethodPost, s.endpoint, &b)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR response body: %w", err)
	}

	var result struct {
		ParsedResults []struct {
			ParsedText string `json:"ParsedText"`
		} `json:"ParsedResults"`
		ErrorMessage json.RawMessage `json:"ErrorMessage"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("OCR API error: %s", string(body))
	}
	if len(result.ErrorMessage) > 0 && string(result.ErrorMessage) != `""` && string(result.ErrorMessage) != "null" && string(result.ErrorMessage) != "[]" {
		return nil, fmt.Errorf("OCR.space error: %s", string(result.ErrorMessage))
	}
	if len(result.ParsedResults) == 0 {
		return nil, fmt.Errorf("no OCR results found in response")
	}

	pages := make([]string, 0, len(result.ParsedResults))
	for _, pr := range result.ParsedResults {
		pages = append(pages, pr.ParsedText)
	}
	log.Printf("OCR extracted %d page(s) from %s", len(pages), filename)
	return pages, nil
}

func imageFileType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "PNG"
	case ".jpg", ".jpeg":
		return "JPG"
	case ".gif":
		return "GIF"
	case ".tiff", ".tif":
		return "TIFF"
	case ".bmp":
		return "BMP"
	default:
		return "PNG"
	}
}
