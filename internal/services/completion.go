package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

var (
	// ErrNoProvider means no chat provider credential was configured.
	ErrNoProvider = errors.New("no completion provider configured")
	// ErrRegionBlocked means the provider rejected the caller's origin.
	// Remediation is switching providers, not retrying.
	ErrRegionBlocked = errors.New("completion provider blocked this region")
	// ErrUpstream is any other non-2xx provider failure.
	ErrUpstream = errors.New("completion provider request failed")
)

// CompletionService is the single entry point for chat-style LLM calls.
// Exactly one provider is selected at construction and never re-selected.
type CompletionService interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
	ProviderName() string
}

type completionProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
}

type completionService struct {
	log        *logger.Logger
	provider   completionProvider
	httpClient *http.Client

	maxRetries int
	retryBase  time.Duration
	sleep      func(time.Duration)
}

// NewCompletionService resolves the provider once from env credentials,
// walking the preference order MiniMax, OpenAI, generic OpenAI-compatible.
func NewCompletionService(log *logger.Logger) (CompletionService, error) {
	serviceLog := log.With("service", "CompletionService")

	provider, ok := resolveCompletionProvider(serviceLog)
	if !ok {
		return nil, fmt.Errorf("%w: set MINIMAX_API_KEY, OPENAI_API_KEY or LLM_API_KEY", ErrNoProvider)
	}

	timeoutSec := utils.GetEnvAsInt("COMPLETION_TIMEOUT_SECONDS", 180, log)
	serviceLog.Info("Completion provider selected", "provider", provider.name, "model", provider.model)

	return &completionService{
		log:        serviceLog,
		provider:   provider,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: 3,
		retryBase:  2 * time.Second,
		sleep:      time.Sleep,
	}, nil
}

func resolveCompletionProvider(log *logger.Logger) (completionProvider, bool) {
	if key := strings.TrimSpace(os.Getenv("MINIMAX_API_KEY")); key != "" {
		return completionProvider{
			name:    "minimax",
			baseURL: utils.GetEnv("MINIMAX_BASE_URL", "https://api.minimax.io", log),
			apiKey:  key,
			model:   utils.GetEnv("MINIMAX_CHAT_MODEL", "MiniMax-Text-01", log),
		}, true
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		return completionProvider{
			name:    "openai",
			baseURL: utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log),
			apiKey:  key,
			model:   utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log),
		}, true
	}
	if key := strings.TrimSpace(os.Getenv("LLM_API_KEY")); key != "" {
		base := strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
		if base == "" {
			return completionProvider{}, false
		}
		return completionProvider{
			name:    "generic",
			baseURL: base,
			apiKey:  key,
			model:   utils.GetEnv("LLM_MODEL", "default", log),
		}, true
	}
	return completionProvider{}, false
}

func (s *completionService) ProviderName() string {
	return s.provider.name
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *completionService) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	reqBody := chatCompletionRequest{
		Model:       s.provider.model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries+1; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		status, raw, err := s.doOnce(ctx, reqBody)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}

		if status == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w: rate limited (429)", ErrUpstream)
			if attempt > s.maxRetries {
				break
			}
			delay := time.Duration(attempt) * s.retryBase
			s.log.Warn("Completion rate limited, retrying",
				"attempt", attempt,
				"max_retries", s.maxRetries,
				"sleep", delay.String(),
			)
			s.sleep(delay)
			continue
		}

		if status < 200 || status >= 300 {
			if isRegionBlockedBody(raw) {
				return "", fmt.Errorf("%w: provider %q rejected this origin, configure a different provider", ErrRegionBlocked, s.provider.name)
			}
			return "", fmt.Errorf("%w: http %d: %s", ErrUpstream, status, bodyTail(raw, 300))
		}

		var resp chatCompletionResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: response contained no choices", ErrUpstream)
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", lastErr
}

func (s *completionService) doOnce(ctx context.Context, body chatCompletionRequest) (int, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.provider.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.provider.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.StatusCode, nil, readErr
	}
	return resp.StatusCode, raw, nil
}

func isRegionBlockedBody(raw []byte) bool {
	body := strings.ToLower(string(raw))
	if strings.Contains(body, "unsupported_country_region_territory") {
		return true
	}
	return strings.Contains(body, "region") && strings.Contains(body, "not supported")
}

func bodyTail(raw []byte, max int) string {
	s := strings.TrimSpace(string(raw))
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
