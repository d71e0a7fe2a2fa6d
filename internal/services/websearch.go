package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

// WebSearchService is the optional open-web augmentation collaborator.
// When no credential is configured the orchestrator simply holds a nil
// service and skips augmentation.
type WebSearchService interface {
	Search(ctx context.Context, query string, limit int) ([]types.RetrievedMaterial, error)
}

type webSearchService struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewWebSearchService returns (nil, nil) when WEBSEARCH_API_KEY is unset.
func NewWebSearchService(log *logger.Logger) (WebSearchService, error) {
	apiKey := strings.TrimSpace(os.Getenv("WEBSEARCH_API_KEY"))
	if apiKey == "" {
		return nil, nil
	}
	baseURL := utils.GetEnv("WEBSEARCH_BASE_URL", "https://api.tavily.com", log)
	timeoutSec := utils.GetEnvAsInt("WEBSEARCH_TIMEOUT_SECONDS", 30, log)

	return &webSearchService{
		log:        log.With("service", "WebSearchService"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type webSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type webSearchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (s *webSearchService) Search(ctx context.Context, query string, limit int) ([]types.RetrievedMaterial, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query required")
	}
	if limit < 1 {
		limit = 3
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(webSearchRequest{Query: query, MaxResults: limit}); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("web search http %d: %s", resp.StatusCode, bodyTail(raw, 300))
	}

	var parsed webSearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("web search decode: %w", err)
	}

	out := make([]types.RetrievedMaterial, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		out = append(out, types.RetrievedMaterial{
			ID:          fmt.Sprintf("web-%d", i),
			Text:        r.Content,
			Title:       r.Title,
			SourceURL:   r.URL,
			ContentType: "web_search",
			Score:       clampScore(r.Score),
		})
	}
	return out, nil
}
