package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nkosei/brightpath-backend/internal/types"
)

// ErrUnparsable means the model payload was not valid JSON/markdown at all.
// Distinct from upstream errors so callers can retry the same request.
var ErrUnparsable = errors.New("model output unparsable")

// stripCodeFence removes an optional ``` / ```json wrapper around a payload.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line (```json, ```markdown, bare ```)
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeSlides parses a model slide payload permissively: unknown fields
// are ignored, missing fields are defaulted per slide, and only a payload
// that is not JSON at all is rejected. Accepts either a bare array or an
// object with a "slides" key. Normalization is idempotent.
func normalizeSlides(raw string) (*types.SlidesLesson, error) {
	payload := stripCodeFence(raw)

	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: slides payload is not JSON: %v", ErrUnparsable, err)
	}

	items, ok := slideItems(parsed)
	if !ok {
		return nil, fmt.Errorf("%w: slides payload is neither an array nor an object with slides", ErrUnparsable)
	}

	deck := &types.SlidesLesson{Slides: make([]types.Slide, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			// keep deck positions stable even for junk entries
			deck.Slides = append(deck.Slides, types.Slide{
				Title:   fmt.Sprintf("Slide %d", i+1),
				Bullets: []string{},
			})
			continue
		}
		slide := types.Slide{
			Title:        stringField(obj, "title"),
			Bullets:      stringListField(obj, "bullets"),
			SpeakerNotes: stringField(obj, "speaker_notes"),
			Visual:       stringField(obj, "visual"),
		}
		if slide.Title == "" {
			slide.Title = fmt.Sprintf("Slide %d", i+1)
		}
		deck.Slides = append(deck.Slides, slide)
	}
	return deck, nil
}

func slideItems(parsed any) ([]any, bool) {
	switch v := parsed.(type) {
	case []any:
		return v, true
	case map[string]any:
		if inner, ok := v["slides"].([]any); ok {
			return inner, true
		}
	}
	return nil, false
}

// wordsPerSecond approximates a conversational narration pace (~150 wpm).
const wordsPerSecond = 2.5

// normalizeAudioScript parses a podcast script payload: an array of
// {speaker, text} turns or an object with a "turns" key. Turns without text
// are dropped; a missing speaker defaults to "host".
func normalizeAudioScript(raw string) (*types.AudioLesson, error) {
	payload := stripCodeFence(raw)

	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: audio script payload is not JSON: %v", ErrUnparsable, err)
	}

	var items []any
	switch v := parsed.(type) {
	case []any:
		items = v
	case map[string]any:
		inner, ok := v["turns"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: audio script object has no turns", ErrUnparsable)
		}
		items = inner
	default:
		return nil, fmt.Errorf("%w: audio script payload is neither an array nor an object", ErrUnparsable)
	}

	lesson := &types.AudioLesson{Turns: make([]types.NarrationTurn, 0, len(items))}
	totalWords := 0
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text := strings.TrimSpace(stringField(obj, "text"))
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(stringField(obj, "speaker"))
		if speaker == "" {
			speaker = "host"
		}
		lesson.Turns = append(lesson.Turns, types.NarrationTurn{Speaker: speaker, Text: text})
		totalWords += len(strings.Fields(text))
	}
	lesson.EstimatedDuration = float64(totalWords) / wordsPerSecond
	return lesson, nil
}

// parseTextLesson restructures markdown into introduction, sections and
// takeaways from "##" headings and "-" bullets. Prose before the first
// heading is the introduction; a heading containing "takeaway" feeds the
// takeaway list, defaulted when absent.
func parseTextLesson(raw string) (*types.TextLesson, error) {
	payload := stripCodeFence(raw)
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: empty text lesson payload", ErrUnparsable)
	}

	lesson := &types.TextLesson{Raw: payload}
	var intro []string
	var current *types.TextSection
	inTakeaways := false

	for _, line := range strings.Split(payload, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			title := strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			if strings.Contains(strings.ToLower(title), "takeaway") {
				inTakeaways = true
				current = nil
				continue
			}
			inTakeaways = false
			lesson.Sections = append(lesson.Sections, types.TextSection{Title: title, Bullets: []string{}})
			current = &lesson.Sections[len(lesson.Sections)-1]
		case strings.HasPrefix(trimmed, "- "):
			bullet := strings.TrimSpace(strings.TrimPrefix(trimmed, "- "))
			if bullet == "" {
				continue
			}
			if inTakeaways {
				lesson.Takeaways = append(lesson.Takeaways, bullet)
			} else if current != nil {
				current.Bullets = append(current.Bullets, bullet)
			} else {
				intro = append(intro, bullet)
			}
		case trimmed != "":
			if current == nil && !inTakeaways {
				intro = append(intro, trimmed)
			} else if current != nil {
				current.Bullets = append(current.Bullets, trimmed)
			}
		}
	}

	lesson.Introduction = strings.Join(intro, " ")
	if len(lesson.Takeaways) == 0 {
		lesson.Takeaways = []string{"Review the key points above to reinforce this topic."}
	}
	return lesson, nil
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func stringListField(obj map[string]any, key string) []string {
	out := []string{}
	items, ok := obj[key].([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
