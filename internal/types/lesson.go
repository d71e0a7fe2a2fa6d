package types

// TextLesson is the structured-markdown modality payload.
type TextLesson struct {
	Introduction string        `json:"introduction"`
	Sections     []TextSection `json:"sections"`
	Takeaways    []string      `json:"takeaways"`
	Raw          string        `json:"raw"`
}

type TextSection struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// SlidesLesson is an ordered deck. Slides are immutable after creation
// except for single-slide regeneration, which replaces one element by index.
type SlidesLesson struct {
	Slides []Slide `json:"slides"`
}

type Slide struct {
	Title        string   `json:"title"`
	Bullets      []string `json:"bullets"`
	SpeakerNotes string   `json:"speaker_notes,omitempty"`
	Visual       string   `json:"visual,omitempty"`
}

// AudioLesson is the podcast-script modality payload.
type AudioLesson struct {
	Turns             []NarrationTurn `json:"turns"`
	EstimatedDuration float64         `json:"estimated_duration"`
}

type NarrationTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}
