package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAIDetectionServiceSelection(t *testing.T) {
	t.Run("no provider yields unavailable backend", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "")
		result := NewAIDetectionService().Detect("anything")
		assert.Equal(t, "UNKNOWN", result.Label)
	})

	t.Run("judge without API key yields unavailable backend", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "judge")
		t.Setenv("AI_JUDGE_API_KEY", "")
		result := NewAIDetectionService().Detect("anything")
		assert.Equal(t, "UNKNOWN", result.Label)
	})

	t.Run("local without endpoint yields unavailable backend", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "local")
		t.Setenv("AI_CLASSIFIER_URL", "")
		result := NewAIDetectionService().Detect("anything")
		assert.Equal(t, "UNKNOWN", result.Label)
	})
}

func judgeServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req, "response_format")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestRemoteJudgeDetect(t *testing.T) {
	t.Run("AI verdict", func(t *testing.T) {
		srv := judgeServer(t, `{"is_ai": true, "confidence": 0.92}`)
		defer srv.Close()

		judge := &remoteJudge{apiKey: "test-key", baseURL: srv.URL, model: "test-model", client: srv.Client()}
		result := judge.Detect("suspiciously uniform prose")

		assert.True(t, result.IsAI)
		assert.Equal(t, "AI", result.Label)
		assert.InDelta(t, 0.92, result.Score, 1e-9)
	})

	t.Run("human verdict", func(t *testing.T) {
		srv := judgeServer(t, `{"is_ai": false, "confidence": 0.7}`)
		defer srv.Close()

		judge := &remoteJudge{apiKey: "test-key", baseURL: srv.URL, model: "test-model", client: srv.Client()}
		result := judge.Detect("handwritten rambling")

		assert.False(t, result.IsAI)
		assert.Equal(t, "Human", result.Label)
	})

	t.Run("fenced JSON is accepted", func(t *testing.T) {
		srv := judgeServer(t, "```json\n{\"is_ai\": true, \"confidence\": 0.8}\n```")
		defer srv.Close()

		judge := &remoteJudge{apiKey: "test-key", baseURL: srv.URL, model: "test-model", client: srv.Client()}
		result := judge.Detect("text")

		assert.True(t, result.IsAI)
		assert.Equal(t, "AI", result.Label)
	})

	t.Run("unparseable verdict is an error result", func(t *testing.T) {
		srv := judgeServer(t, "I think it is probably AI")
		defer srv.Close()

		judge := &remoteJudge{apiKey: "test-key", baseURL: srv.URL, model: "test-model", client: srv.Client()}
		result := judge.Detect("text")

		assert.Equal(t, "ERROR", result.Label)
		assert.False(t, result.IsAI)
		assert.Zero(t, result.Score)
	})

	t.Run("unreachable endpoint is an error result", func(t *testing.T) {
		judge := &remoteJudge{
			apiKey:  "test-key",
			baseURL: "http://127.0.0.1:1",
			model:   "test-model",
			client:  &http.Client{Timeout: 200 * time.Millisecond},
		}
		result := judge.Detect("text")
		assert.Equal(t, "ERROR", result.Label)
	})

	t.Run("long text is truncated before judging", func(t *testing.T) {
		var seen string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			seen = req.Messages[0].Content
			json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"content": `{"is_ai": false, "confidence": 0.5}`}},
				},
			})
		}))
		defer srv.Close()

		judge := &remoteJudge{apiKey: "test-key", baseURL: srv.URL, model: "test-model", client: srv.Client()}
		judge.Detect(strings.Repeat("w", 5000))

		assert.Less(t, len(seen), 5000)
		assert.Contains(t, seen, strings.Repeat("w", judgeExcerptLimit))
	})

	t.Run("truncation never splits a multi-byte character", func(t *testing.T) {
		var seen string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			seen = req.Messages[0].Content
			json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"content": `{"is_ai": false, "confidence": 0.5}`}},
				},
			})
		}))
		defer srv.Close()

		judge := &remoteJudge{apiKey: "test-key", baseURL: srv.URL, model: "test-model", client: srv.Client()}
		judge.Detect(strings.Repeat("é", 3000))

		assert.True(t, utf8.ValidString(seen))
		assert.Contains(t, seen, strings.Repeat("é", judgeExcerptLimit))
		assert.NotContains(t, seen, strings.Repeat("é", judgeExcerptLimit+1))
	})
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                  `{"a":1}`,
		"```json\n{\"a\":1}\n```":  `{"a":1}`,
		"```\n{\"a\":1}\n```":      `{"a":1}`,
		"  {\"a\":1}  ":            `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, stripCodeFence(in))
	}
}

func classifierServer(t *testing.T, handler func(input string) []classifierLabel) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode([][]classifierLabel{handler(req.Inputs)})
	}))
}

func TestLocalClassifierDetect(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		classifier := &localClassifier{endpoint: "http://unused", client: http.DefaultClient, maxChunks: 5}
		result := classifier.Detect("")
		assert.Equal(t, "UNKNOWN", result.Label)
		assert.Equal(t, "No text to analyze", result.Message)
	})

	t.Run("fake label above threshold", func(t *testing.T) {
		srv := classifierServer(t, func(string) []classifierLabel {
			return []classifierLabel{{Label: "Fake", Score: 0.9}}
		})
		defer srv.Close()

		classifier := &localClassifier{endpoint: srv.URL, client: srv.Client(), maxChunks: 5}
		result := classifier.Detect("generated slop")

		assert.True(t, result.IsAI)
		assert.Equal(t, "Fake", result.Label)
		assert.InDelta(t, 0.9, result.Score, 1e-9)
		assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	})

	t.Run("real label inverts the score", func(t *testing.T) {
		srv := classifierServer(t, func(string) []classifierLabel {
			return []classifierLabel{{Label: "Real", Score: 0.8}}
		})
		defer srv.Close()

		classifier := &localClassifier{endpoint: srv.URL, client: srv.Client(), maxChunks: 5}
		result := classifier.Detect("human essay")

		assert.False(t, result.IsAI)
		assert.Equal(t, "Real", result.Label)
		assert.InDelta(t, 0.2, result.Score, 1e-9)
	})

	t.Run("only the first maxChunks chunks are scored", func(t *testing.T) {
		var calls int
		srv := classifierServer(t, func(string) []classifierLabel {
			calls++
			return []classifierLabel{{Label: "Fake", Score: 0.6}}
		})
		defer srv.Close()

		classifier := &localClassifier{endpoint: srv.URL, client: srv.Client(), maxChunks: 5}
		// 8 chunks of 1000 chars; only 5 should hit the endpoint
		result := classifier.Detect(strings.Repeat("x", 8000))

		assert.Equal(t, 5, calls)
		assert.Contains(t, result.Message, "5 chunks")
	})

	t.Run("scores are averaged across chunks", func(t *testing.T) {
		scores := []float64{0.9, 0.1, 0.2}
		var i int
		srv := classifierServer(t, func(string) []classifierLabel {
			s := scores[i]
			i++
			return []classifierLabel{{Label: "Fake", Score: s}}
		})
		defer srv.Close()

		classifier := &localClassifier{endpoint: srv.URL, client: srv.Client(), maxChunks: 5}
		result := classifier.Detect(strings.Repeat("y", 3000))

		assert.InDelta(t, 0.4, result.Score, 1e-9)
		assert.False(t, result.IsAI) // 0.4 is not above 0.5
		assert.Equal(t, "Real", result.Label)
		assert.InDelta(t, 0.9, result.Confidence, 1e-9) // 1 - min(0.1)
	})

	t.Run("classifier failure is an error result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		classifier := &localClassifier{endpoint: srv.URL, client: srv.Client(), maxChunks: 5}
		result := classifier.Detect("text")
		assert.Equal(t, "ERROR", result.Label)
	})
}

func TestSplitFixed(t *testing.T) {
	assert.Nil(t, splitFixed("", 1000))
	assert.Equal(t, []string{"abc"}, splitFixed("abc", 1000))
	assert.Equal(t, []string{"ab", "cd", "e"}, splitFixed("abcde", 2))

	// multi-byte characters are kept whole
	chunks := splitFixed("héllo wörld", 4)
	assert.Equal(t, []string{"héll", "o wö", "rld"}, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
	}
}

func TestMaxChunksFromEnv(t *testing.T) {
	t.Setenv("AI_PROVIDER", "local")
	t.Setenv("AI_CLASSIFIER_URL", "http://localhost:9999")
	t.Setenv("AI_MAX_CHUNKS", "3")

	detector := NewAIDetectionService()
	classifier, ok := detector.(*localClassifier)
	require.True(t, ok)
	assert.Equal(t, 3, classifier.maxChunks)
}
