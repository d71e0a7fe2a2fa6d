package services

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n[1,2]\n```  ", "[1,2]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFence(tc.in); got != tc.want {
				t.Fatalf("stripCodeFence: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestNormalizeSlidesDefaults(t *testing.T) {
	raw := "```json\n" + `[
		{"title": "Intro", "bullets": ["a", "b"], "speaker_notes": "say hi"},
		{"bullets": ["c"]},
		{"title": "Outro"}
	]` + "\n```"

	deck, err := normalizeSlides(raw)
	if err != nil {
		t.Fatalf("normalizeSlides: %v", err)
	}
	if len(deck.Slides) != 3 {
		t.Fatalf("slide count: want=3 got=%d", len(deck.Slides))
	}
	if deck.Slides[1].Title != "Slide 2" {
		t.Fatalf("missing title default: want=%q got=%q", "Slide 2", deck.Slides[1].Title)
	}
	if deck.Slides[2].Bullets == nil || len(deck.Slides[2].Bullets) != 0 {
		t.Fatalf("missing bullets default: want empty list got=%v", deck.Slides[2].Bullets)
	}
	if deck.Slides[0].SpeakerNotes != "say hi" {
		t.Fatalf("speaker notes: got=%q", deck.Slides[0].SpeakerNotes)
	}
}

func TestNormalizeSlidesObjectWrapper(t *testing.T) {
	deck, err := normalizeSlides(`{"slides": [{"title": "Only"}]}`)
	if err != nil {
		t.Fatalf("normalizeSlides: %v", err)
	}
	if len(deck.Slides) != 1 || deck.Slides[0].Title != "Only" {
		t.Fatalf("wrapped slides: got=%+v", deck.Slides)
	}
}

func TestNormalizeSlidesIdempotent(t *testing.T) {
	deck, err := normalizeSlides(`[{"title": "A", "bullets": ["x"]}, {"bullets": []}]`)
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}

	reserialized, err := json.Marshal(deck.Slides)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := normalizeSlides(string(reserialized))
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if !reflect.DeepEqual(deck.Slides, again.Slides) {
		t.Fatalf("normalization not idempotent:\nfirst=%+v\nsecond=%+v", deck.Slides, again.Slides)
	}
}

func TestNormalizeSlidesUnparsable(t *testing.T) {
	_, err := normalizeSlides("this is just prose, no JSON in sight")
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("non-JSON payload: want ErrUnparsable got=%v", err)
	}
	_, err = normalizeSlides(`"just a string"`)
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("wrong JSON shape: want ErrUnparsable got=%v", err)
	}
}

func TestNormalizeAudioScript(t *testing.T) {
	raw := `[
		{"speaker": "host", "text": "Welcome to the show."},
		{"text": "What is backpropagation?"},
		{"speaker": "host", "text": ""},
		"junk"
	]`
	script, err := normalizeAudioScript(raw)
	if err != nil {
		t.Fatalf("normalizeAudioScript: %v", err)
	}
	if len(script.Turns) != 2 {
		t.Fatalf("turn count: want=2 got=%d", len(script.Turns))
	}
	if script.Turns[1].Speaker != "host" {
		t.Fatalf("missing speaker default: want=%q got=%q", "host", script.Turns[1].Speaker)
	}
	if script.EstimatedDuration <= 0 {
		t.Fatalf("estimated duration: want > 0 got=%v", script.EstimatedDuration)
	}
}

func TestNormalizeAudioScriptUnparsable(t *testing.T) {
	_, err := normalizeAudioScript("not json either")
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("want ErrUnparsable got=%v", err)
	}
}

func TestParseTextLesson(t *testing.T) {
	md := `Backpropagation is how neural networks learn.

## The chain rule
- Gradients flow backwards
- Each layer multiplies its local derivative

## Key Takeaways
- Backprop is just the chain rule applied efficiently`

	lesson, err := parseTextLesson(md)
	if err != nil {
		t.Fatalf("parseTextLesson: %v", err)
	}
	if lesson.Introduction == "" {
		t.Fatalf("introduction missing")
	}
	if len(lesson.Sections) != 1 {
		t.Fatalf("section count: want=1 got=%d", len(lesson.Sections))
	}
	if len(lesson.Sections[0].Bullets) != 2 {
		t.Fatalf("section bullets: want=2 got=%d", len(lesson.Sections[0].Bullets))
	}
	if len(lesson.Takeaways) != 1 || lesson.Takeaways[0] != "Backprop is just the chain rule applied efficiently" {
		t.Fatalf("takeaways: got=%v", lesson.Takeaways)
	}
	if lesson.Raw == "" {
		t.Fatalf("raw form should be preserved")
	}
}

func TestParseTextLessonDefaultTakeaway(t *testing.T) {
	lesson, err := parseTextLesson("## Section\n- one bullet")
	if err != nil {
		t.Fatalf("parseTextLesson: %v", err)
	}
	if len(lesson.Takeaways) == 0 {
		t.Fatalf("missing takeaways should default to a generic closing bullet")
	}
}

func TestParseTextLessonEmpty(t *testing.T) {
	_, err := parseTextLesson("   \n  ")
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("empty payload: want ErrUnparsable got=%v", err)
	}
}
