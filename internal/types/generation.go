package types

// Modality is the requested output form of a generated lesson.
type Modality string

const (
	ModalityText    Modality = "text"
	ModalitySlides  Modality = "slides"
	ModalityPodcast Modality = "podcast"
	ModalityVideo   Modality = "video"
)

func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalitySlides, ModalityPodcast, ModalityVideo:
		return true
	}
	return false
}

// TeachingStyle selects the instructional directive baked into prompts.
type TeachingStyle string

const (
	StyleFormal     TeachingStyle = "formal"
	StyleSupportive TeachingStyle = "supportive"
	StyleSocratic   TeachingStyle = "socratic"
)

func (s TeachingStyle) Valid() bool {
	switch s {
	case StyleFormal, StyleSupportive, StyleSocratic:
		return true
	}
	return false
}

// FallbackTier ranks how much grounding context was available before
// generation. Lower is better grounded.
type FallbackTier int

const (
	// TierCourseMaterials: indexed materials present and relevant.
	TierCourseMaterials FallbackTier = 1
	// TierWebAugmented: materials weak, merged with open-web snippets.
	TierWebAugmented FallbackTier = 2
	// TierGeneralKnowledge: nothing indexed, model knowledge only.
	TierGeneralKnowledge FallbackTier = 3
)

func (t FallbackTier) String() string {
	switch t {
	case TierCourseMaterials:
		return "course_materials"
	case TierWebAugmented:
		return "web_augmented"
	case TierGeneralKnowledge:
		return "general_knowledge"
	default:
		return "unknown"
	}
}

// GenerationRequest is immutable once issued; one per user action.
type GenerationRequest struct {
	Topic       string        `json:"topic"`
	CourseID    string        `json:"course_id"`
	ContextHint string        `json:"context_hint,omitempty"`
	Modality    Modality      `json:"modality"`
	Style       TeachingStyle `json:"style,omitempty"`
	UserID      string        `json:"user_id"`
	VoiceID     string        `json:"voice_id,omitempty"`
}

// RetrievedMaterial is one ranked chunk of course material.
type RetrievedMaterial struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Title       string  `json:"title,omitempty"`
	SourceURL   string  `json:"source_url,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Score       float64 `json:"score"`
}

// GeneratedAssets carries the audio-visual enrichment of a lesson.
type GeneratedAssets struct {
	AudioURL      string         `json:"audio_url,omitempty"`
	AudioDuration float64        `json:"audio_duration,omitempty"`
	VideoURL      string         `json:"video_url,omitempty"`
	SlideImages   map[int]string `json:"slide_images,omitempty"`
}

// GenerationResult is the sole external output of the pipeline. It is a
// tagged union: Success implies a non-nil Lesson; failure implies Error.
type GenerationResult struct {
	Success    bool             `json:"success"`
	Lesson     *Lesson          `json:"lesson,omitempty"`
	Assets     *GeneratedAssets `json:"assets,omitempty"`
	Sources    []string         `json:"sources,omitempty"`
	Tier       FallbackTier     `json:"tier"`
	Disclaimer string           `json:"disclaimer,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Lesson wraps exactly one modality-specific payload.
type Lesson struct {
	Modality Modality      `json:"modality"`
	Text     *TextLesson   `json:"text,omitempty"`
	Slides   *SlidesLesson `json:"slides,omitempty"`
	Audio    *AudioLesson  `json:"audio,omitempty"`
}
