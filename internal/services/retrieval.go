package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/platform/vector"
	"github.com/nkosei/brightpath-backend/internal/repos"
	"github.com/nkosei/brightpath-backend/internal/types"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

const (
	// DefaultContextCharBudget bounds the grounding context handed to a
	// generator.
	DefaultContextCharBudget = 12000

	maxRetrieveLimit = 20

	truncationMarker    = "...[truncated]"
	noMaterialsSentinel = "No course materials were found for this topic."
)

// RetrievalService embeds a topic, runs a course-scoped similarity search
// and assembles the ranked chunks into a bounded context string.
type RetrievalService interface {
	Retrieve(ctx context.Context, courseID, topic string, limit int) ([]types.RetrievedMaterial, error)
	PrepareContext(materials []types.RetrievedMaterial) string
}

type retrievalService struct {
	log        *logger.Logger
	embedder   EmbeddingService
	store      vector.Store
	chunks     repos.MaterialChunkRepo
	charBudget int
}

func NewRetrievalService(log *logger.Logger, embedder EmbeddingService, store vector.Store, chunks repos.MaterialChunkRepo) (RetrievalService, error) {
	if embedder == nil || store == nil || chunks == nil {
		return nil, fmt.Errorf("embedder, vector store and chunk repo required")
	}
	budget := utils.GetEnvAsInt("RETRIEVAL_CONTEXT_CHAR_BUDGET", DefaultContextCharBudget, log)
	if budget <= len(truncationMarker) {
		budget = DefaultContextCharBudget
	}
	return &retrievalService{
		log:        log.With("service", "RetrievalService"),
		embedder:   embedder,
		store:      store,
		chunks:     chunks,
		charBudget: budget,
	}, nil
}

// Retrieve returns ranked materials for the topic. An empty result is not
// an error: it is the tier-transition signal for the orchestrator.
func (s *retrievalService) Retrieve(ctx context.Context, courseID, topic string, limit int) ([]types.RetrievedMaterial, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, fmt.Errorf("courseID required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("topic required")
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxRetrieveLimit {
		limit = maxRetrieveLimit
	}

	queryVec, err := s.embedder.Embed(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("embed topic: %w", err)
	}

	matches, err := s.store.QueryMatches(ctx, courseID, queryVec, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(matches) == 0 {
		return []types.RetrievedMaterial{}, nil
	}

	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m.ID)
	}
	rows, err := s.chunks.GetByChunkKeys(ctx, nil, keys)
	if err != nil {
		return nil, fmt.Errorf("resolve chunk rows: %w", err)
	}
	byKey := make(map[string]*types.MaterialChunkRecord, len(rows))
	for _, row := range rows {
		byKey[row.ChunkKey] = row
	}

	out := make([]types.RetrievedMaterial, 0, len(matches))
	for _, m := range matches {
		row, ok := byKey[m.ID]
		if !ok {
			s.log.Warn("Vector match without a chunk row, skipping", "chunk_key", m.ID)
			continue
		}
		mat := types.RetrievedMaterial{
			ID:    m.ID,
			Text:  row.Text,
			Score: clampScore(m.Score),
		}
		if meta := decodeChunkMetadata(row.Metadata); meta != nil {
			mat.Title = meta["title"]
			mat.SourceURL = meta["source_url"]
			mat.ContentType = meta["content_type"]
		}
		out = append(out, mat)
	}
	return out, nil
}

// PrepareContext concatenates per-material blocks in rank order under the
// character budget. The final included block is truncated with an explicit
// marker rather than dropped; output length never exceeds the budget.
func (s *retrievalService) PrepareContext(materials []types.RetrievedMaterial) string {
	if len(materials) == 0 {
		return noMaterialsSentinel
	}

	var b strings.Builder
	for _, m := range materials {
		block := materialBlock(m)
		remaining := s.charBudget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(block) <= remaining {
			b.WriteString(block)
			continue
		}
		cut := runeBoundaryCut(block, remaining-len(truncationMarker))
		if cut > 0 {
			b.WriteString(block[:cut])
			b.WriteString(truncationMarker)
		}
		break
	}
	return b.String()
}

// runeBoundaryCut backs cut off to the nearest rune start so a byte-offset
// slice never splits a multi-byte character.
func runeBoundaryCut(s string, cut int) int {
	if cut <= 0 {
		return 0
	}
	if cut >= len(s) {
		return len(s)
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}

func materialBlock(m types.RetrievedMaterial) string {
	var b strings.Builder
	title := strings.TrimSpace(m.Title)
	if title == "" {
		title = "Course material"
	}
	b.WriteString("### ")
	b.WriteString(title)
	if src := strings.TrimSpace(m.SourceURL); src != "" {
		b.WriteString(" (")
		b.WriteString(src)
		b.WriteString(")")
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(m.Text))
	b.WriteString("\n\n")
	return b.String()
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func decodeChunkMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
