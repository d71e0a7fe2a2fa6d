package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

// TextLessonGenerator produces the structured-markdown modality.
type TextLessonGenerator interface {
	Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.TextLesson, error)
}

type textLessonGenerator struct {
	log        *logger.Logger
	completion CompletionService
	styles     *StylePack
}

func NewTextLessonGenerator(log *logger.Logger, completion CompletionService, styles *StylePack) (TextLessonGenerator, error) {
	if completion == nil || styles == nil {
		return nil, fmt.Errorf("completion service and style pack required")
	}
	return &textLessonGenerator{
		log:        log.With("service", "TextLessonGenerator"),
		completion: completion,
		styles:     styles,
	}, nil
}

func (g *textLessonGenerator) Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.TextLesson, error) {
	system := strings.Join([]string{
		"You are an expert tutor writing a study lesson.",
		g.styles.Directive(style),
		"Output clean structured markdown only: a short introductory paragraph,",
		"then 2-5 sections each starting with a '## ' heading followed by '- ' bullets,",
		"and a final '## Key Takeaways' section with '- ' bullets.",
		"Do not wrap the output in a code fence.",
	}, "\n")

	user := fmt.Sprintf("Topic: %s\n\nCourse material context:\n%s", topic, contextBlock)

	raw, err := g.completion.Complete(ctx, system, user, 0.7)
	if err != nil {
		return nil, fmt.Errorf("text lesson completion: %w", err)
	}

	lesson, err := parseTextLesson(raw)
	if err != nil {
		return nil, err
	}
	g.log.Debug("Text lesson generated", "topic", topic, "sections", len(lesson.Sections))
	return lesson, nil
}
