package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// DetectionResult is the uniform verdict of every AI-authorship backend.
// Label is "AI"/"Human" for a real verdict, "ERROR" when a backend call
// failed, and "UNKNOWN" when no backend is configured — callers must check
// the label before trusting the score.
type DetectionResult struct {
	IsAI       bool    `json:"is_ai"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	Message    string  `json:"message"`
}

// Detector scores a text for likely AI authorship.
type Detector interface {
	Detect(text string) DetectionResult
}

const (
	classifierChunkSize = 1000
	judgeExcerptLimit   = 2000
	defaultMaxChunks    = 5
)

// NewAIDetectionService selects a backend once from the environment:
// AI_PROVIDER=judge uses a remote LLM judge (AI_JUDGE_API_KEY, AI_JUDGE_URL,
// AI_JUDGE_MODEL), AI_PROVIDER=local uses a text-classification inference
// endpoint (AI_CLASSIFIER_URL). Anything else yields the unavailable
// sentinel backend.
func NewAIDetectionService() Detector {
	maxChunks := defaultMaxChunks
	if v := os.Getenv("AI_MAX_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxChunks = n
		}
	}

	switch strings.ToLower(os.Getenv("AI_PROVIDER")) {
	case "judge", "remote":
		apiKey := os.Getenv("AI_JUDGE_API_KEY")
		if apiKey == "" {
			log.Println("AI_PROVIDER=judge but AI_JUDGE_API_KEY is not set; AI detection unavailable")
			return &unavailableDetector{}
		}
		baseURL := os.Getenv("AI_JUDGE_URL")
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		judgeModel := os.Getenv("AI_JUDGE_MODEL")
		if judgeModel == "" {
			judgeModel = "llama-3.3-70b-versatile"
		}
		log.Printf("AI detection backend: remote judge (%s)", judgeModel)
		return &remoteJudge{
			apiKey:  apiKey,
			baseURL: baseURL,
			model:   judgeModel,
			client:  &http.Client{Timeout: 30 * time.Second},
		}
	case "local":
		endpoint := os.Getenv("AI_CLASSIFIER_URL")
		if endpoint == "" {
			log.Println("AI_PROVIDER=local but AI_CLASSIFIER_URL is not set; AI detection unavailable")
			return &unavailableDetector{}
		}
		log.Println("AI detection backend: local classifier")
		return &localClassifier{
			endpoint:  endpoint,
			client:    &http.Client{Timeout: 30 * time.Second},
			maxChunks: maxChunks,
		}
	default:
		log.Println("No AI detection backend configured")
		return &unavailableDetector{}
	}
}

// unavailableDetector is the sentinel backend used when nothing is
// configured. Its result must never be mistaken for a "human-written" verdict.
type unavailableDetector struct{}

func (d *unavailableDetector) Detect(text string) DetectionResult {
	return DetectionResult{
		Label:   "UNKNOWN",
		Message: "AI detection unavailable (no backend configured)",
	}
}

// remoteJudge asks an OpenAI-compatible chat-completions endpoint for a
// structured yes/no verdict on a truncated excerpt.
type remoteJudge struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func (d *remoteJudge) Detect(text string) DetectionResult {
	excerpt := text
	if runes := []rune(excerpt); len(runes) > judgeExcerptLimit {
		excerpt = string(runes[:judgeExcerptLimit])
	}

	prompt := fmt.Sprintf(`Analyze the following text and determine if it was written by AI or a human.
Respond with ONLY a JSON object with two fields:
- "is_ai": true or false
- "confidence": a number between 0 and 1

Text to analyze:
%s`, excerpt)

	reqBody, err := json.Marshal(map[string]interface{}{
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"model":       d.model,
		"temperature": 0.0,
		"response_format": map[string]string{
			"type": "json_object",
		},
	})
	if err != nil {
		return errorResult(fmt.Sprintf("failed to build judge request: %v", err))
	}

	content, err := d.complete(reqBody)
	if err != nil {
		log.Printf("ERROR in remote judge: %v", err)
		return errorResult(fmt.Sprintf("judge error: %v", err))
	}

	var verdict struct {
		IsAI       bool    `json:"is_ai"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &verdict); err != nil {
		log.Printf("ERROR parsing judge verdict %q: %v", content, err)
		return errorResult(fmt.Sprintf("judge returned unparseable verdict: %v", err))
	}

	label := "Human"
	if verdict.IsAI {
		label = "AI"
	}
	return DetectionResult{
		IsAI:       verdict.IsAI,
		Score:      verdict.Confidence,
		Confidence: verdict.Confidence,
		Label:      label,
		Message:    "Analysis complete (remote judge)",
	}
}

// complete posts the chat-completion request with retries on rate limiting
// and returns the first choice's message content.
func (d *remoteJudge) complete(reqBody []byte) (string, error) {
	const maxRetries = 3
	var resp *http.Response
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		req, reqErr := http.NewRequest(http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(reqBody))
		if reqErr != nil {
			return "", fmt.Errorf("failed to create judge request: %w", reqErr)
		}
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err = d.client.Do(req)
		if err == nil && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if err == nil {
			resp.Body.Close()
			log.Printf("Judge rate limit hit (attempt %d)", attempt+1)
		} else {
			log.Printf("ERROR sending judge request (attempt %d): %v", attempt+1, err)
		}
		if attempt < maxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	if err != nil {
		return "", fmt.Errorf("judge request failed after %d attempts: %w", maxRetries, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("judge returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read judge response: %w", err)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse judge response structure: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("judge returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// stripCodeFence removes a wrapping markdown code fence, which some judges
// add around their JSON answer despite instructions.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}

// localClassifier scores fixed-size chunks through a text-classification
// inference endpoint and averages the per-chunk AI probabilities.
type localClassifier struct {
	endpoint  string
	client    *http.Client
	maxChunks int
}

type classifierLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (d *localClassifier) Detect(text string) DetectionResult {
	chunks := splitFixed(text, classifierChunkSize)
	if len(chunks) > d.maxChunks {
		chunks = chunks[:d.maxChunks]
	}
	if len(chunks) == 0 {
		return DetectionResult{Label: "UNKNOWN", Message: "No text to analyze"}
	}

	var aiScores []float64
	for _, chunk := range chunks {
		label, err := d.classify(chunk)
		if err != nil {
			log.Printf("ERROR in local classifier: %v", err)
			return errorResult(fmt.Sprintf("classifier error: %v", err))
		}
		// "Fake"/"AI" labels mean AI-generated; otherwise the AI probability
		// is the complement of the human confidence.
		if label.Label == "Fake" || label.Label == "AI" {
			aiScores = append(aiScores, label.Score)
		} else {
			aiScores = append(aiScores, 1-label.Score)
		}
	}

	var sum float64
	minScore, maxScore := aiScores[0], aiScores[0]
	for _, s := range aiScores {
		sum += s
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}
	avg := sum / float64(len(aiScores))
	isAI := avg > 0.5

	confidence := 1 - minScore
	if isAI {
		confidence = maxScore
	}
	label := "Real"
	if isAI {
		label = "Fake"
	}
	return DetectionResult{
		IsAI:       isAI,
		Score:      avg,
		Confidence: confidence,
		Label:      label,
		Message:    fmt.Sprintf("Analysis complete (%d chunks analyzed)", len(aiScores)),
	}
}

func (d *localClassifier) classify(chunk string) (classifierLabel, error) {
	payload, err := json.Marshal(map[string]string{"inputs": chunk})
	if err != nil {
		return classifierLabel{}, fmt.Errorf("failed to marshal classifier request: %w", err)
	}

	resp, err := d.client.Post(d.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return classifierLabel{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return classifierLabel{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(body))
	}

	// HF-style inference response: [[{"label": ..., "score": ...}, ...]]
	var nested [][]classifierLabel
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifierLabel{}, fmt.Errorf("failed to read classifier response: %w", err)
	}
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0][0], nil
	}

	var flat []classifierLabel
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return flat[0], nil
	}
	return classifierLabel{}, fmt.Errorf("unexpected classifier response: %s", string(body))
}

// splitFixed cuts text into consecutive chunks of at most size runes, so a
// multi-byte character is never split across two chunks.
func splitFixed(text string, size int) []string {
	runes := []rune(text)
	var chunks []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func errorResult(message string) DetectionResult {
	return DetectionResult{Label: "ERROR", Message: message}
}
