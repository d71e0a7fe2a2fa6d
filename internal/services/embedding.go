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
	"github.com/nkosei/brightpath-backend/internal/utils"
)

// EmbeddingService turns text into a fixed-length vector via an
// OpenAI-compatible /v1/embeddings endpoint.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	// VerifyDimensions runs a smoke call and checks the provider returns
	// vectors of the configured length.
	VerifyDimensions(ctx context.Context) error
}

type embeddingService struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

func NewEmbeddingService(log *logger.Logger) (EmbeddingService, error) {
	serviceLog := log.With("service", "EmbeddingService")

	apiKey := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing EMBEDDING_API_KEY or OPENAI_API_KEY")
	}

	baseURL := utils.GetEnv("EMBEDDING_BASE_URL", "https://api.openai.com", log)
	model := utils.GetEnv("EMBEDDING_MODEL", "text-embedding-3-small", log)
	dims := utils.GetEnvAsInt("EMBEDDING_DIM", 1536, log)
	timeoutSec := utils.GetEnvAsInt("EMBEDDING_TIMEOUT_SECONDS", 60, log)

	return &embeddingService{
		log:        serviceLog,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dims,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty embedding input")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(embeddingsRequest{Model: s.model, Input: []string{text}}); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/embeddings", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings http %d: %s", resp.StatusCode, bodyTail(raw, 300))
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embeddings decode: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}

	vec := make([]float32, len(parsed.Data[0].Embedding))
	for i, f := range parsed.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

func (s *embeddingService) VerifyDimensions(ctx context.Context) error {
	vec, err := s.Embed(ctx, "dimension check")
	if err != nil {
		return fmt.Errorf("embedding smoke call: %w", err)
	}
	if len(vec) != s.dimensions {
		return fmt.Errorf("embedding dimension mismatch: want=%d got=%d", s.dimensions, len(vec))
	}
	s.log.Info("Embedding dimensions verified", "dim", s.dimensions)
	return nil
}
