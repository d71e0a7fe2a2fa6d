package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/platform/gcp"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

// ImageService generates still images for slide visuals. SynthesizeAll has
// settle-all semantics: every prompt runs concurrently, one failure never
// cancels siblings, and failed indices are simply absent from the result.
type ImageService interface {
	SynthesizeAll(ctx context.Context, keyPrefix string, prompts []string) map[int]string
	Synthesize(ctx context.Context, prompt string) ([]byte, error)
}

type imageService struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	model       string
	aspectRatio string
	httpClient  *http.Client
	bucket      gcp.BucketService
	maxParallel int
}

func NewImageService(log *logger.Logger, bucket gcp.BucketService) (ImageService, error) {
	serviceLog := log.With("service", "ImageService")

	apiKey := strings.TrimSpace(os.Getenv("IMAGE_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("MINIMAX_API_KEY"))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing IMAGE_API_KEY or MINIMAX_API_KEY")
	}
	if bucket == nil {
		return nil, fmt.Errorf("bucket service required")
	}

	baseURL := utils.GetEnv("IMAGE_BASE_URL", "https://api.minimax.io", log)
	model := utils.GetEnv("IMAGE_MODEL", "image-01", log)
	aspectRatio := utils.GetEnv("IMAGE_ASPECT_RATIO", "16:9", log)
	timeoutSec := utils.GetEnvAsInt("IMAGE_TIMEOUT_SECONDS", 120, log)
	maxParallel := utils.GetEnvAsInt("IMAGE_MAX_PARALLEL", 4, log)

	return &imageService{
		log:         serviceLog,
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		aspectRatio: aspectRatio,
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		bucket:      bucket,
		maxParallel: maxParallel,
	}, nil
}

// SynthesizeAll generates one image per prompt and uploads each to blob
// storage under keyPrefix, returning index -> public locator for the
// prompts that succeeded.
func (s *imageService) SynthesizeAll(ctx context.Context, keyPrefix string, prompts []string) map[int]string {
	out := make(map[int]string)
	if len(prompts) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	for i, prompt := range prompts {
		g.Go(func() error {
			data, err := s.Synthesize(gctx, prompt)
			if err != nil {
				// settle-all: swallow so siblings keep running
				s.log.Warn("Image generation failed for prompt", "index", i, "error", err)
				return nil
			}
			key := fmt.Sprintf("%s/slide-%d.png", strings.TrimSuffix(keyPrefix, "/"), i)
			locator, err := s.bucket.UploadBytes(gctx, key, data)
			if err != nil {
				s.log.Warn("Image upload failed", "index", i, "key", key, "error", err)
				return nil
			}
			mu.Lock()
			out[i] = locator
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type imageGenRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	AspectRatio    string `json:"aspect_ratio"`
	ResponseFormat string `json:"response_format"`
	N              int    `json:"n"`
}

type imageGenResponse struct {
	Data struct {
		ImageBase64 []string `json:"image_base64"`
		ImageURLs   []string `json:"image_urls"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func (s *imageService) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("empty image prompt")
	}

	reqBody := imageGenRequest{
		Model:          s.model,
		Prompt:         prompt,
		AspectRatio:    s.aspectRatio,
		ResponseFormat: "base64",
		N:              1,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/image_generation", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image http %d: %s", resp.StatusCode, bodyTail(raw, 300))
	}

	var parsed imageGenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("image decode: %w", err)
	}
	if parsed.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("image provider status %d: %s", parsed.BaseResp.StatusCode, parsed.BaseResp.StatusMsg)
	}

	if len(parsed.Data.ImageBase64) > 0 {
		data, err := base64.StdEncoding.DecodeString(parsed.Data.ImageBase64[0])
		if err != nil {
			return nil, fmt.Errorf("image base64 decode: %w", err)
		}
		return data, nil
	}
	if len(parsed.Data.ImageURLs) > 0 {
		return s.fetchBinary(ctx, parsed.Data.ImageURLs[0])
	}
	return nil, fmt.Errorf("image response contained no payload")
}

func (s *imageService) fetchBinary(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image download http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
