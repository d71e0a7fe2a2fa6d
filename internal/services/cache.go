package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

// ResultCache is an optional redis cache in front of the orchestrator:
// a repeated (course, topic, modality, style) request inside the TTL hits
// the stored result. Write-through on success only.
type ResultCache interface {
	Get(ctx context.Context, req types.GenerationRequest) (*types.GenerationResult, bool)
	Set(ctx context.Context, req types.GenerationRequest, result *types.GenerationResult)
}

type resultCache struct {
	log    *logger.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache returns (nil, nil) when REDIS_ADDR is unset; the
// orchestrator treats a nil cache as a miss on every request.
func NewResultCache(log *logger.Logger) (ResultCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	ttlMin := 60
	if v := strings.TrimSpace(os.Getenv("RESULT_CACHE_TTL_MINUTES")); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &ttlMin); err != nil || ttlMin <= 0 {
			ttlMin = 60
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	return &resultCache{
		log:    log.With("service", "ResultCache"),
		client: client,
		ttl:    time.Duration(ttlMin) * time.Minute,
	}, nil
}

func cacheKey(req types.GenerationRequest) string {
	return fmt.Sprintf("bp:genresult:%s:%s:%s:%s",
		req.CourseID,
		strings.ToLower(strings.TrimSpace(req.Topic)),
		req.Modality,
		req.Style,
	)
}

func (c *resultCache) Get(ctx context.Context, req types.GenerationRequest) (*types.GenerationResult, bool) {
	raw, err := c.client.Get(ctx, cacheKey(req)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Result cache read failed", "error", err)
		}
		return nil, false
	}
	var result types.GenerationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.log.Warn("Result cache entry corrupt, ignoring", "error", err)
		return nil, false
	}
	return &result, true
}

func (c *resultCache) Set(ctx context.Context, req types.GenerationRequest, result *types.GenerationResult) {
	if result == nil || !result.Success {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Warn("Result cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(req), raw, c.ttl).Err(); err != nil {
		c.log.Warn("Result cache write failed", "error", err)
	}
}
