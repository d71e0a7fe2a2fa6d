package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

var (
	// ErrVideoFailed is a provider-reported terminal failure.
	ErrVideoFailed = errors.New("video generation failed")
	// ErrVideoTimeout means the client-side maximum wait elapsed before the
	// task reached a terminal state.
	ErrVideoTimeout = errors.New("video generation timed out")
)

// VideoService drives the async video job API: submit, poll to a terminal
// state, resolve the download locator, fetch the binary.
type VideoService interface {
	Submit(ctx context.Context, prompt string) (string, error)
	// PollUntilDone polls the task until Success (returning the file ID),
	// a provider Fail (ErrVideoFailed) or the max wait (ErrVideoTimeout).
	PollUntilDone(ctx context.Context, taskID string) (string, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

type videoService struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	pollInterval time.Duration
	maxWait      time.Duration
	sleep        func(time.Duration)
}

func NewVideoService(log *logger.Logger) (VideoService, error) {
	serviceLog := log.With("service", "VideoService")

	apiKey := strings.TrimSpace(os.Getenv("VIDEO_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("MINIMAX_API_KEY"))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing VIDEO_API_KEY or MINIMAX_API_KEY")
	}

	baseURL := utils.GetEnv("VIDEO_BASE_URL", "https://api.minimax.io", log)
	model := utils.GetEnv("VIDEO_MODEL", "T2V-01", log)
	timeoutSec := utils.GetEnvAsInt("VIDEO_TIMEOUT_SECONDS", 120, log)
	pollSec := utils.GetEnvAsInt("VIDEO_POLL_INTERVAL_SECONDS", 5, log)
	maxWaitSec := utils.GetEnvAsInt("VIDEO_MAX_WAIT_SECONDS", 300, log)

	return &videoService{
		log:          serviceLog,
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		httpClient:   &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		pollInterval: time.Duration(pollSec) * time.Second,
		maxWait:      time.Duration(maxWaitSec) * time.Second,
		sleep:        time.Sleep,
	}, nil
}

type videoSubmitRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type videoSubmitResponse struct {
	TaskID   string `json:"task_id"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func (s *videoService) Submit(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty video prompt")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(videoSubmitRequest{Model: s.model, Prompt: prompt}); err != nil {
		return "", err
	}
	raw, err := s.doJSON(ctx, http.MethodPost, "/v1/video_generation", &buf)
	if err != nil {
		return "", fmt.Errorf("video submit: %w", err)
	}

	var parsed videoSubmitResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("video submit decode: %w", err)
	}
	if parsed.BaseResp.StatusCode != 0 {
		return "", fmt.Errorf("%w: submit status %d: %s", ErrVideoFailed, parsed.BaseResp.StatusCode, parsed.BaseResp.StatusMsg)
	}
	if parsed.TaskID == "" {
		return "", fmt.Errorf("%w: submit returned no task_id", ErrVideoFailed)
	}
	return parsed.TaskID, nil
}

type videoQueryResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	FileID   string `json:"file_id"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func (s *videoService) PollUntilDone(ctx context.Context, taskID string) (string, error) {
	waited := time.Duration(0)
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		raw, err := s.doJSON(ctx, http.MethodGet, "/v1/query/video_generation?task_id="+url.QueryEscape(taskID), nil)
		if err != nil {
			return "", fmt.Errorf("video poll: %w", err)
		}
		var parsed videoQueryResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("video poll decode: %w", err)
		}

		switch parsed.Status {
		case "Success":
			if parsed.FileID == "" {
				return "", fmt.Errorf("%w: success with no file_id", ErrVideoFailed)
			}
			return parsed.FileID, nil
		case "Fail":
			return "", fmt.Errorf("%w: task %s reported failure: %s", ErrVideoFailed, taskID, parsed.BaseResp.StatusMsg)
		}

		if waited+s.pollInterval > s.maxWait {
			return "", fmt.Errorf("%w: task %s not terminal after %s", ErrVideoTimeout, taskID, s.maxWait)
		}
		s.sleep(s.pollInterval)
		waited += s.pollInterval
	}
}

type videoFileResponse struct {
	File struct {
		DownloadURL string `json:"download_url"`
	} `json:"file"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func (s *videoService) Download(ctx context.Context, fileID string) ([]byte, error) {
	raw, err := s.doJSON(ctx, http.MethodGet, "/v1/files/retrieve?file_id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return nil, fmt.Errorf("video file retrieve: %w", err)
	}
	var parsed videoFileResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("video file decode: %w", err)
	}
	if parsed.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("%w: retrieve status %d: %s", ErrVideoFailed, parsed.BaseResp.StatusCode, parsed.BaseResp.StatusMsg)
	}
	if parsed.File.DownloadURL == "" {
		return nil, fmt.Errorf("%w: retrieve returned no download_url", ErrVideoFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.File.DownloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video download: %w", classifyVideoTransportError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("video download http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *videoService) Generate(ctx context.Context, prompt string) ([]byte, error) {
	taskID, err := s.Submit(ctx, prompt)
	if err != nil {
		return nil, err
	}
	fileID, err := s.PollUntilDone(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, fileID)
}

func (s *videoService) doJSON(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, classifyVideoTransportError(err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, bodyTail(raw, 300))
	}
	return raw, nil
}

// classifyVideoTransportError folds client-side timeouts into the same
// unavailable outcome as a provider Fail so the orchestrator can degrade.
// Context cancellation stays unclassified: the caller gave up.
func classifyVideoTransportError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrVideoTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrVideoTimeout, err)
	}
	return err
}
