package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

// SlidesGenerator produces the slide-deck modality. Decks are immutable
// except for RegenerateSlide, which replaces a single element by index.
type SlidesGenerator interface {
	Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.SlidesLesson, error)
	RegenerateSlide(ctx context.Context, topic, contextBlock string, style types.TeachingStyle, deck *types.SlidesLesson, index int) (*types.SlidesLesson, error)
}

type slidesGenerator struct {
	log        *logger.Logger
	completion CompletionService
	styles     *StylePack
}

func NewSlidesGenerator(log *logger.Logger, completion CompletionService, styles *StylePack) (SlidesGenerator, error) {
	if completion == nil || styles == nil {
		return nil, fmt.Errorf("completion service and style pack required")
	}
	return &slidesGenerator{
		log:        log.With("service", "SlidesGenerator"),
		completion: completion,
		styles:     styles,
	}, nil
}

const slideSchemaInstruction = `Output a JSON array only. Each element is an object with keys:
"title" (string), "bullets" (array of strings, 2-5 entries),
"speaker_notes" (string, what a presenter would say),
"visual" (string, a short description of a supporting image).`

func (g *slidesGenerator) Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.SlidesLesson, error) {
	system := strings.Join([]string{
		"You are an expert tutor building a slide deck for a study lesson.",
		g.styles.Directive(style),
		"Produce 5-8 slides covering the topic from fundamentals to application.",
		slideSchemaInstruction,
	}, "\n")

	user := fmt.Sprintf("Topic: %s\n\nCourse material context:\n%s", topic, contextBlock)

	raw, err := g.completion.Complete(ctx, system, user, 0.7)
	if err != nil {
		return nil, fmt.Errorf("slides completion: %w", err)
	}

	deck, err := normalizeSlides(raw)
	if err != nil {
		return nil, err
	}
	g.log.Debug("Slide deck generated", "topic", topic, "slides", len(deck.Slides))
	return deck, nil
}

// RegenerateSlide asks for a replacement of one slide and returns a new deck
// with only that index swapped.
func (g *slidesGenerator) RegenerateSlide(ctx context.Context, topic, contextBlock string, style types.TeachingStyle, deck *types.SlidesLesson, index int) (*types.SlidesLesson, error) {
	if deck == nil || index < 0 || index >= len(deck.Slides) {
		return nil, fmt.Errorf("slide index %d out of range", index)
	}

	system := strings.Join([]string{
		"You are an expert tutor revising one slide of an existing deck.",
		g.styles.Directive(style),
		"Replace the slide below with an improved version covering the same ground.",
		slideSchemaInstruction,
		"Output a JSON array containing exactly one slide object.",
	}, "\n")

	old := deck.Slides[index]
	user := fmt.Sprintf(
		"Topic: %s\n\nSlide %d of %d to replace:\nTitle: %s\nBullets: %s\n\nCourse material context:\n%s",
		topic, index+1, len(deck.Slides), old.Title, strings.Join(old.Bullets, "; "), contextBlock,
	)

	raw, err := g.completion.Complete(ctx, system, user, 0.7)
	if err != nil {
		return nil, fmt.Errorf("slide regeneration completion: %w", err)
	}

	replacement, err := normalizeSlides(raw)
	if err != nil {
		return nil, err
	}
	if len(replacement.Slides) == 0 {
		return nil, fmt.Errorf("%w: regeneration returned no slides", ErrUnparsable)
	}

	out := &types.SlidesLesson{Slides: make([]types.Slide, len(deck.Slides))}
	copy(out.Slides, deck.Slides)
	out.Slides[index] = replacement.Slides[0]
	return out, nil
}
