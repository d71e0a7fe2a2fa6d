package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

// PodcastScriptGenerator produces the narrated-podcast modality: an ordered
// script of speaker turns ready for speech synthesis.
type PodcastScriptGenerator interface {
	Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.AudioLesson, error)
}

type podcastScriptGenerator struct {
	log        *logger.Logger
	completion CompletionService
	styles     *StylePack
}

func NewPodcastScriptGenerator(log *logger.Logger, completion CompletionService, styles *StylePack) (PodcastScriptGenerator, error) {
	if completion == nil || styles == nil {
		return nil, fmt.Errorf("completion service and style pack required")
	}
	return &podcastScriptGenerator{
		log:        log.With("service", "PodcastScriptGenerator"),
		completion: completion,
		styles:     styles,
	}, nil
}

func (g *podcastScriptGenerator) Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.AudioLesson, error) {
	system := strings.Join([]string{
		"You are writing a two-voice educational podcast script.",
		g.styles.Directive(style),
		`Speakers are "host" (explains) and "learner" (asks clarifying questions).`,
		`Output a JSON array only. Each element is an object with keys "speaker" and "text".`,
		"Aim for 3-5 minutes of spoken material. Write natural spoken prose, no markdown.",
	}, "\n")

	user := fmt.Sprintf("Topic: %s\n\nCourse material context:\n%s", topic, contextBlock)

	raw, err := g.completion.Complete(ctx, system, user, 0.8)
	if err != nil {
		return nil, fmt.Errorf("podcast script completion: %w", err)
	}

	script, err := normalizeAudioScript(raw)
	if err != nil {
		return nil, err
	}
	if len(script.Turns) == 0 {
		return nil, fmt.Errorf("%w: podcast script contained no usable turns", ErrUnparsable)
	}
	g.log.Debug("Podcast script generated",
		"topic", topic,
		"turns", len(script.Turns),
		"estimated_duration", script.EstimatedDuration,
	)
	return script, nil
}
