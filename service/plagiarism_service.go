package services

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	plagiarismChunkWords   = 150
	plagiarismQueryLimit   = 200
	plagiarismSourceFloor  = 0.1
	plagiarismTopResults   = 3
	defaultPlagiarismChunk = 5
)

// PlagiarismSource is one web source recorded against the submitted text.
type PlagiarismSource struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Count         int     `json:"count"`
	MaxSimilarity float64 `json:"max_similarity"`
}

// PlagiarismReport aggregates the web-matching scan of one text.
type PlagiarismReport struct {
	Score         float64            `json:"plagiarism_score"`
	Sources       []PlagiarismSource `json:"sources"`
	CheckedChunks int                `json:"checked_chunks"`
	Message       string             `json:"message"`
}

// PlagiarismService matches text chunks against web search snippets through
// a SearXNG instance.
type PlagiarismService struct {
	searxngURL string
	client     *http.Client
	maxChunks  int
}

// NewPlagiarismService reads SEARXNG_URL; an empty value disables the
// service. PLAGIARISM_MAX_CHUNKS bounds how many chunks of a long text are
// searched.
func NewPlagiarismService() *PlagiarismService {
	maxChunks := defaultPlagiarismChunk
	if v := os.Getenv("PLAGIARISM_MAX_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxChunks = n
		}
	}
	return &PlagiarismService{
		searxngURL: strings.TrimRight(os.Getenv("SEARXNG_URL"), "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		maxChunks:  maxChunks,
	}
}

func (s *PlagiarismService) Enabled() bool {
	return s.searxngURL != ""
}

// CheckPlagiarism splits the text into word chunks, searches the web for each
// of the first maxChunks, and scores chunks against the top result snippets.
// The overall score is the average of per-chunk best matches scaled to 0-100
// and capped at 100.
func (s *PlagiarismService) CheckPlagiarism(text string) (*PlagiarismReport, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("SEARXNG_URL is not configured")
	}

	chunks := chunkWords(text, plagiarismChunkWords)
	if len(chunks) > s.maxChunks {
		chunks = chunks[:s.maxChunks]
	}
	log.Printf("Checking %d chunk(s) against SearXNG", len(chunks))

	sources := make(map[string]*PlagiarismSource)
	totalSimilarity := 0.0

	for _, chunk := range chunks {
		results, err := s.search(chunk)
		if err != nil {
			log.Printf("ERROR querying SearXNG: %v", err)
			continue
		}
		if len(results) > plagiarismTopResults {
			results = results[:plagiarismTopResults]
		}

		chunkMax := 0.0
		for _, res := range results {
			sim := sequenceSimilarity(chunk, res.Content)
			if sim > chunkMax {
				chunkMax = sim
			}
			if sim > plagiarismSourceFloor {
				if src, ok := sources[res.URL]; ok {
					src.Count++
					if sim > src.MaxSimilarity {
						src.MaxSimilarity = sim
					}
				} else {
					sources[res.URL] = &PlagiarismSource{
						URL:           res.URL,
						Title:         res.Title,
						Count:         1,
						MaxSimilarity: sim,
					}
				}
			}
		}
		totalSimilarity += chunkMax
	}

	score := 0.0
	if len(chunks) > 0 {
		score = totalSimilarity / float64(len(chunks)) * 100
	}
	if score > 100 {
		score = 100
	}

	ranked := make([]PlagiarismSource, 0, len(sources))
	for _, src := range sources {
		ranked = append(ranked, *src)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].MaxSimilarity > ranked[j].MaxSimilarity
	})

	return &PlagiarismReport{
		Score:         score,
		Sources:       ranked,
		CheckedChunks: len(chunks),
		Message:       "Scan complete",
	}, nil
}

type searchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *PlagiarismService) search(chunk string) ([]searchResult, error) {
	query := chunk
	if len(query) > plagiarismQueryLimit {
		query = query[:plagiarismQueryLimit]
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("language", "auto")

	resp, err := s.client.Get(s.searxngURL + "/search?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []searchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return payload.Results, nil
}

// chunkWords splits text into chunks of approximately size words.
func chunkWords(text string, size int) []string {
	words := strings.Fields(text)
	var chunks []string
	for i := 0; i < len(words); i += size {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}

// sequenceSimilarity is a character-level SequenceMatcher ratio in [0,1].
func sequenceSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	matcher := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return matcher.Ratio()
}
