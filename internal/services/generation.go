package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/platform/gcp"
	"github.com/nkosei/brightpath-backend/internal/repos"
	"github.com/nkosei/brightpath-backend/internal/types"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

const (
	// DefaultRelevanceThreshold is the mean similarity below which course
	// materials are considered weak grounding.
	DefaultRelevanceThreshold = 0.55

	retrieveLimit = 8

	generalKnowledgeDisclaimer = "This lesson was generated from the model's general knowledge and has not been verified against your course materials."
)

// GenerationService is the fallback orchestrator: it classifies the request
// into a tier, drives the requested modality generator and enriches the
// lesson with audio-visual assets. It always returns a GenerationResult,
// never a bare error.
type GenerationService interface {
	GenerateLesson(ctx context.Context, req types.GenerationRequest) *types.GenerationResult
	RegenerateSlide(ctx context.Context, lessonID uuid.UUID, index int) (*types.SlidesLesson, error)
}

// GenerationDeps wires the orchestrator's collaborators. WebSearch and
// Cache may be nil; Lessons and Media may be nil in tests that skip
// persistence.
type GenerationDeps struct {
	Retrieval   RetrievalService
	WebSearch   WebSearchService
	TextGen     TextLessonGenerator
	SlidesGen   SlidesGenerator
	PodcastGen  PodcastScriptGenerator
	Speech      SpeechService
	Image       ImageService
	Video       VideoService
	Compositor  CompositorService
	Placeholder *PlaceholderVisual
	Bucket      gcp.BucketService
	Lessons     repos.LessonRepo
	Media       repos.LessonMediaRepo
	Cache       ResultCache
}

type generationService struct {
	log  *logger.Logger
	deps GenerationDeps

	relevanceThreshold float64
}

func NewGenerationService(log *logger.Logger, deps GenerationDeps) (GenerationService, error) {
	if deps.Retrieval == nil || deps.TextGen == nil || deps.SlidesGen == nil || deps.PodcastGen == nil {
		return nil, fmt.Errorf("retrieval and all modality generators required")
	}
	threshold := utils.GetEnvAsFloat("RETRIEVAL_RELEVANCE_THRESHOLD", DefaultRelevanceThreshold, log)
	return &generationService{
		log:                log.With("service", "GenerationService"),
		deps:               deps,
		relevanceThreshold: threshold,
	}, nil
}

func (s *generationService) GenerateLesson(ctx context.Context, req types.GenerationRequest) *types.GenerationResult {
	if err := validateRequest(req); err != nil {
		return failure(0, err.Error())
	}
	if req.Style == "" || !req.Style.Valid() {
		req.Style = types.StyleSupportive
	}

	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(ctx, req); ok {
			s.log.Info("Generation served from cache", "course_id", req.CourseID, "topic", req.Topic)
			return cached
		}
	}

	materials, err := s.deps.Retrieval.Retrieve(ctx, req.CourseID, req.Topic, retrieveLimit)
	if err != nil {
		return failure(0, fmt.Sprintf("retrieval failed: %v", err))
	}

	tier := s.classifyTier(materials)
	if tier == types.TierWebAugmented && s.deps.WebSearch != nil {
		snippets, searchErr := s.deps.WebSearch.Search(ctx, req.Topic, 3)
		if searchErr != nil {
			s.log.Warn("Web search augmentation failed, continuing with course materials", "error", searchErr)
		} else {
			// course materials stay ranked first
			materials = append(materials, snippets...)
		}
	}

	contextBlock := s.deps.Retrieval.PrepareContext(materials)
	if hint := strings.TrimSpace(req.ContextHint); hint != "" {
		contextBlock = contextBlock + "\n\nAdditional context from the learner:\n" + hint
	}

	result := &types.GenerationResult{
		Tier:    tier,
		Sources: sourceList(materials),
	}
	if tier == types.TierGeneralKnowledge {
		result.Disclaimer = generalKnowledgeDisclaimer
	}

	lesson, assets, genErr := s.generateModality(ctx, req, contextBlock)
	if genErr != nil {
		result.Success = false
		result.Error = genErr.Error()
		return result
	}
	result.Success = true
	result.Lesson = lesson
	result.Assets = assets

	s.persist(ctx, req, result)
	if s.deps.Cache != nil {
		s.deps.Cache.Set(ctx, req, result)
	}
	return result
}

func validateRequest(req types.GenerationRequest) error {
	if strings.TrimSpace(req.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if strings.TrimSpace(req.CourseID) == "" {
		return fmt.Errorf("course_id is required")
	}
	if !req.Modality.Valid() {
		return fmt.Errorf("unknown modality %q", req.Modality)
	}
	return nil
}

// classifyTier walks the fallback ladder by material count and mean
// similarity.
func (s *generationService) classifyTier(materials []types.RetrievedMaterial) types.FallbackTier {
	if len(materials) == 0 {
		return types.TierGeneralKnowledge
	}
	var sum float64
	for _, m := range materials {
		sum += m.Score
	}
	if sum/float64(len(materials)) >= s.relevanceThreshold {
		return types.TierCourseMaterials
	}
	return types.TierWebAugmented
}

func (s *generationService) generateModality(ctx context.Context, req types.GenerationRequest, contextBlock string) (*types.Lesson, *types.GeneratedAssets, error) {
	switch req.Modality {
	case types.ModalityText:
		text, err := s.deps.TextGen.Generate(ctx, req.Topic, contextBlock, req.Style)
		if err != nil {
			return nil, nil, fmt.Errorf("text generation failed: %w", err)
		}
		return &types.Lesson{Modality: types.ModalityText, Text: text}, nil, nil

	case types.ModalitySlides:
		deck, err := s.deps.SlidesGen.Generate(ctx, req.Topic, contextBlock, req.Style)
		if err != nil {
			return nil, nil, fmt.Errorf("slides generation failed: %w", err)
		}
		assets := s.enrichSlides(ctx, req, deck)
		return &types.Lesson{Modality: types.ModalitySlides, Slides: deck}, assets, nil

	case types.ModalityPodcast:
		script, err := s.deps.PodcastGen.Generate(ctx, req.Topic, contextBlock, req.Style)
		if err != nil {
			return nil, nil, fmt.Errorf("podcast script generation failed: %w", err)
		}
		assets, err := s.enrichPodcast(ctx, req, script)
		if err != nil {
			return nil, nil, err
		}
		return &types.Lesson{Modality: types.ModalityPodcast, Audio: script}, assets, nil

	case types.ModalityVideo:
		script, err := s.deps.PodcastGen.Generate(ctx, req.Topic, contextBlock, req.Style)
		if err != nil {
			return nil, nil, fmt.Errorf("video narration generation failed: %w", err)
		}
		assets, err := s.enrichVideo(ctx, req, script)
		if err != nil {
			return nil, nil, err
		}
		return &types.Lesson{Modality: types.ModalityVideo, Audio: script}, assets, nil
	}
	return nil, nil, fmt.Errorf("unknown modality %q", req.Modality)
}

// enrichSlides generates one image per slide with settle-all semantics and
// fills missing indices with rendered placeholder cards. Image absence is
// never an error for the slides modality.
func (s *generationService) enrichSlides(ctx context.Context, req types.GenerationRequest, deck *types.SlidesLesson) *types.GeneratedAssets {
	if s.deps.Image == nil || len(deck.Slides) == 0 {
		return nil
	}

	prompts := make([]string, len(deck.Slides))
	for i, slide := range deck.Slides {
		prompt := strings.TrimSpace(slide.Visual)
		if prompt == "" {
			prompt = fmt.Sprintf("Simple educational illustration: %s", slide.Title)
		}
		prompts[i] = prompt
	}

	keyPrefix := assetKeyPrefix(req)
	images := s.deps.Image.SynthesizeAll(ctx, keyPrefix, prompts)

	if s.deps.Placeholder != nil && s.deps.Bucket != nil {
		for i, slide := range deck.Slides {
			if _, ok := images[i]; ok {
				continue
			}
			card, err := s.deps.Placeholder.Render(slide.Title)
			if err != nil {
				s.log.Warn("Placeholder render failed", "index", i, "error", err)
				continue
			}
			key := fmt.Sprintf("%s/placeholder-%d.png", keyPrefix, i)
			locator, err := s.deps.Bucket.UploadBytes(ctx, key, card)
			if err != nil {
				s.log.Warn("Placeholder upload failed", "index", i, "error", err)
				continue
			}
			images[i] = locator
		}
	}

	if len(images) == 0 {
		return nil
	}
	return &types.GeneratedAssets{SlideImages: images}
}

// enrichPodcast synthesizes the narration. The podcast modality requires
// audio, so total synthesis failure escalates to pipeline failure.
func (s *generationService) enrichPodcast(ctx context.Context, req types.GenerationRequest, script *types.AudioLesson) (*types.GeneratedAssets, error) {
	if s.deps.Speech == nil {
		return nil, fmt.Errorf("podcast modality requested but speech synthesis is not configured")
	}

	audio, err := s.deps.Speech.Synthesize(ctx, narrationText(script), req.VoiceID)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	if audio == nil {
		return nil, fmt.Errorf("speech synthesis unavailable and the podcast modality requires audio")
	}

	locator, err := s.uploadAsset(ctx, req, "podcast.mp3", audio)
	if err != nil {
		return nil, fmt.Errorf("audio upload failed: %w", err)
	}
	return &types.GeneratedAssets{
		AudioURL:      locator,
		AudioDuration: script.EstimatedDuration,
	}, nil
}

// enrichVideo generates a clip and a voice-over and muxes them. A failed or
// timed-out video step degrades to a still-image composition when audio is
// available; with neither asset the video modality fails.
func (s *generationService) enrichVideo(ctx context.Context, req types.GenerationRequest, script *types.AudioLesson) (*types.GeneratedAssets, error) {
	if s.deps.Video == nil || s.deps.Compositor == nil {
		return nil, fmt.Errorf("video modality requested but video synthesis is not configured")
	}

	var audio []byte
	if s.deps.Speech != nil {
		var err error
		audio, err = s.deps.Speech.Synthesize(ctx, narrationText(script), req.VoiceID)
		if err != nil {
			return nil, fmt.Errorf("voice-over synthesis failed: %w", err)
		}
	}

	prompt := fmt.Sprintf("Short educational explainer clip about %s, clean minimal style", req.Topic)
	clip, videoErr := s.deps.Video.Generate(ctx, prompt)
	if videoErr != nil {
		if !errors.Is(videoErr, ErrVideoFailed) && !errors.Is(videoErr, ErrVideoTimeout) {
			return nil, fmt.Errorf("video generation failed: %w", videoErr)
		}
		s.log.Warn("Video step unavailable, degrading to still composition", "error", videoErr)
		return s.degradeToStill(ctx, req, script, audio)
	}

	final := clip
	if audio != nil {
		composed, err := s.deps.Compositor.ComposeVideoAudio(ctx, clip, audio)
		if err != nil {
			s.log.Warn("Video+audio composition failed, delivering clip without voice-over", "error", err)
		} else {
			final = composed
		}
	}

	locator, err := s.uploadAsset(ctx, req, "lesson.mp4", final)
	if err != nil {
		return nil, fmt.Errorf("video upload failed: %w", err)
	}
	return &types.GeneratedAssets{
		VideoURL:      locator,
		AudioDuration: script.EstimatedDuration,
	}, nil
}

func (s *generationService) degradeToStill(ctx context.Context, req types.GenerationRequest, script *types.AudioLesson, audio []byte) (*types.GeneratedAssets, error) {
	if audio == nil {
		return nil, fmt.Errorf("video generation unavailable and no voice-over audio to fall back to")
	}

	var still []byte
	if s.deps.Image != nil {
		if img, err := s.deps.Image.Synthesize(ctx, fmt.Sprintf("Title card for a lesson on %s", req.Topic)); err == nil {
			still = img
		}
	}
	if still == nil && s.deps.Placeholder != nil {
		card, err := s.deps.Placeholder.Render(req.Topic)
		if err != nil {
			return nil, fmt.Errorf("placeholder render for still composition failed: %w", err)
		}
		still = card
	}
	if still == nil {
		return nil, fmt.Errorf("no still image available for degraded composition")
	}

	composed, err := s.deps.Compositor.ComposeStillAudio(ctx, still, audio)
	if err != nil {
		return nil, fmt.Errorf("still+audio composition failed: %w", err)
	}

	locator, err := s.uploadAsset(ctx, req, "lesson.mp4", composed)
	if err != nil {
		return nil, fmt.Errorf("video upload failed: %w", err)
	}
	return &types.GeneratedAssets{
		VideoURL:      locator,
		AudioDuration: script.EstimatedDuration,
	}, nil
}

// RegenerateSlide loads a persisted slides lesson, regenerates one slide in
// place and stores the updated deck.
func (s *generationService) RegenerateSlide(ctx context.Context, lessonID uuid.UUID, index int) (*types.SlidesLesson, error) {
	if s.deps.Lessons == nil {
		return nil, fmt.Errorf("lesson persistence is not configured")
	}

	record, err := s.deps.Lessons.GetByID(ctx, nil, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load lesson %s: %w", lessonID, err)
	}
	if record.Modality != string(types.ModalitySlides) {
		return nil, fmt.Errorf("lesson %s is %s, not slides", lessonID, record.Modality)
	}

	var lesson types.Lesson
	if err := json.Unmarshal(record.Content, &lesson); err != nil || lesson.Slides == nil {
		return nil, fmt.Errorf("lesson %s has no parsable slide deck", lessonID)
	}

	materials, err := s.deps.Retrieval.Retrieve(ctx, record.CourseID, record.Topic, retrieveLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	contextBlock := s.deps.Retrieval.PrepareContext(materials)

	updated, err := s.deps.SlidesGen.RegenerateSlide(ctx, record.Topic, contextBlock, types.TeachingStyle(record.Style), lesson.Slides, index)
	if err != nil {
		return nil, err
	}

	lesson.Slides = updated
	raw, err := json.Marshal(lesson)
	if err != nil {
		return nil, fmt.Errorf("encode updated lesson: %w", err)
	}
	if err := s.deps.Lessons.UpdateContent(ctx, nil, lessonID, raw); err != nil {
		return nil, fmt.Errorf("persist updated lesson: %w", err)
	}
	return updated, nil
}

// persist stores the lesson row and media rows best effort; persistence
// failure never fails an otherwise successful generation.
func (s *generationService) persist(ctx context.Context, req types.GenerationRequest, result *types.GenerationResult) {
	if s.deps.Lessons == nil || result.Lesson == nil {
		return
	}

	content, err := json.Marshal(result.Lesson)
	if err != nil {
		s.log.Warn("Lesson encode for persistence failed", "error", err)
		return
	}
	sources, _ := json.Marshal(result.Sources)

	record := &types.LessonRecord{
		ID:       uuid.New(),
		CourseID: req.CourseID,
		UserID:   req.UserID,
		Topic:    req.Topic,
		Modality: string(req.Modality),
		Style:    string(req.Style),
		Tier:     int(result.Tier),
		Content:  content,
		Sources:  sources,
	}
	if _, err := s.deps.Lessons.Create(ctx, nil, record); err != nil {
		s.log.Warn("Lesson persistence failed", "error", err)
		return
	}

	if s.deps.Media == nil || result.Assets == nil {
		return
	}
	if result.Assets.AudioURL != "" {
		s.upsertMedia(ctx, record.ID, "audio", result.Assets.AudioURL, result.Assets.AudioDuration)
	}
	if result.Assets.VideoURL != "" {
		s.upsertMedia(ctx, record.ID, "video", result.Assets.VideoURL, result.Assets.AudioDuration)
	}
}

func (s *generationService) upsertMedia(ctx context.Context, lessonID uuid.UUID, mode, url string, duration float64) {
	_, err := s.deps.Media.Upsert(ctx, nil, &types.LessonMediaRecord{
		ID:       uuid.New(),
		LessonID: lessonID,
		Mode:     mode,
		MediaURL: url,
		Duration: duration,
	})
	if err != nil {
		s.log.Warn("Lesson media persistence failed", "mode", mode, "error", err)
	}
}

func (s *generationService) uploadAsset(ctx context.Context, req types.GenerationRequest, name string, data []byte) (string, error) {
	if s.deps.Bucket == nil {
		return "", fmt.Errorf("blob storage is not configured")
	}
	key := fmt.Sprintf("%s/%s", assetKeyPrefix(req), name)
	return s.deps.Bucket.UploadBytes(ctx, key, data)
}

func assetKeyPrefix(req types.GenerationRequest) string {
	return fmt.Sprintf("lessons/%s/%s", req.CourseID, slugify(req.Topic))
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "lesson"
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func narrationText(script *types.AudioLesson) string {
	var b strings.Builder
	for _, turn := range script.Turns {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(turn.Text))
	}
	return b.String()
}

func sourceList(materials []types.RetrievedMaterial) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range materials {
		label := strings.TrimSpace(m.Title)
		if src := strings.TrimSpace(m.SourceURL); src != "" {
			if label != "" {
				label = label + " (" + src + ")"
			} else {
				label = src
			}
		}
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

func failure(tier types.FallbackTier, msg string) *types.GenerationResult {
	return &types.GenerationResult{
		Success: false,
		Tier:    tier,
		Error:   msg,
	}
}
