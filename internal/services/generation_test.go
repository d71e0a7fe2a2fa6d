package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nkosei/brightpath-backend/internal/types"
)

type fakeRetrieval struct {
	materials []types.RetrievedMaterial
	err       error
}

func (f *fakeRetrieval) Retrieve(ctx context.Context, courseID, topic string, limit int) ([]types.RetrievedMaterial, error) {
	return f.materials, f.err
}

func (f *fakeRetrieval) PrepareContext(materials []types.RetrievedMaterial) string {
	if len(materials) == 0 {
		return noMaterialsSentinel
	}
	var b strings.Builder
	for _, m := range materials {
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}

type fakeWebSearch struct {
	snippets []types.RetrievedMaterial
	called   bool
}

func (f *fakeWebSearch) Search(ctx context.Context, query string, limit int) ([]types.RetrievedMaterial, error) {
	f.called = true
	return f.snippets, nil
}

type fakeTextGen struct {
	gotContext string
	err        error
}

func (f *fakeTextGen) Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.TextLesson, error) {
	f.gotContext = contextBlock
	if f.err != nil {
		return nil, f.err
	}
	return &types.TextLesson{Introduction: "intro", Raw: "raw"}, nil
}

type fakeSlidesGen struct {
	deck *types.SlidesLesson
}

func (f *fakeSlidesGen) Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.SlidesLesson, error) {
	return f.deck, nil
}

func (f *fakeSlidesGen) RegenerateSlide(ctx context.Context, topic, contextBlock string, style types.TeachingStyle, deck *types.SlidesLesson, index int) (*types.SlidesLesson, error) {
	out := &types.SlidesLesson{Slides: append([]types.Slide{}, deck.Slides...)}
	out.Slides[index] = types.Slide{Title: "regenerated", Bullets: []string{}}
	return out, nil
}

type fakePodcastGen struct{}

func (f *fakePodcastGen) Generate(ctx context.Context, topic, contextBlock string, style types.TeachingStyle) (*types.AudioLesson, error) {
	return &types.AudioLesson{
		Turns: []types.NarrationTurn{
			{Speaker: "host", Text: "Welcome."},
			{Speaker: "learner", Text: "Tell me more."},
		},
		EstimatedDuration: 42,
	}, nil
}

type fakeSpeech struct {
	audio []byte
}

func (f *fakeSpeech) Synthesize(ctx context.Context, script, voiceID string) ([]byte, error) {
	return f.audio, nil
}

type fakeImage struct {
	results map[int]string
	single  []byte
}

func (f *fakeImage) SynthesizeAll(ctx context.Context, keyPrefix string, prompts []string) map[int]string {
	out := map[int]string{}
	for i := range prompts {
		if locator, ok := f.results[i]; ok {
			out[i] = locator
		}
	}
	return out
}

func (f *fakeImage) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	if f.single == nil {
		return nil, fmt.Errorf("image unavailable")
	}
	return f.single, nil
}

type fakeVideo struct {
	clip []byte
	err  error
}

func (f *fakeVideo) Submit(ctx context.Context, prompt string) (string, error) { return "task", nil }
func (f *fakeVideo) PollUntilDone(ctx context.Context, taskID string) (string, error) {
	return "file", nil
}
func (f *fakeVideo) Download(ctx context.Context, fileID string) ([]byte, error) {
	return f.clip, nil
}
func (f *fakeVideo) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clip, nil
}

type fakeCompositor struct {
	stillCalled bool
	videoCalled bool
}

func (f *fakeCompositor) AssertReady(ctx context.Context) error { return nil }
func (f *fakeCompositor) ComposeStillAudio(ctx context.Context, image, audio []byte) ([]byte, error) {
	f.stillCalled = true
	return []byte("still+audio"), nil
}
func (f *fakeCompositor) ComposeVideoAudio(ctx context.Context, video, audio []byte) ([]byte, error) {
	f.videoCalled = true
	return []byte("video+audio"), nil
}

func newTestGenerationService(t *testing.T, deps GenerationDeps) *generationService {
	t.Helper()
	return &generationService{
		log:                newTestLogger(t),
		deps:               deps,
		relevanceThreshold: DefaultRelevanceThreshold,
	}
}

func strongMaterials() []types.RetrievedMaterial {
	return []types.RetrievedMaterial{
		{ID: "a", Text: "chunk a", Title: "Notes 1", Score: 0.9},
		{ID: "b", Text: "chunk b", Title: "Notes 2", Score: 0.9},
		{ID: "c", Text: "chunk c", Title: "Notes 3", Score: 0.9},
	}
}

func TestGenerateLessonTierCourseMaterials(t *testing.T) {
	textGen := &fakeTextGen{}
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{materials: strongMaterials()},
		TextGen:    textGen,
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Backpropagation",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalityText,
	})

	if !result.Success {
		t.Fatalf("expected success, got error=%q", result.Error)
	}
	if result.Tier != types.TierCourseMaterials {
		t.Fatalf("tier: want=%v got=%v", types.TierCourseMaterials, result.Tier)
	}
	if result.Disclaimer != "" {
		t.Fatalf("tier 1 must carry no disclaimer, got=%q", result.Disclaimer)
	}
	if textGen.gotContext == "" || textGen.gotContext == noMaterialsSentinel {
		t.Fatalf("text generator must receive non-empty material context, got=%q", textGen.gotContext)
	}
	if len(result.Sources) != 3 {
		t.Fatalf("sources: want=3 got=%d", len(result.Sources))
	}
}

func TestGenerateLessonTierGeneralKnowledge(t *testing.T) {
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{materials: []types.RetrievedMaterial{}},
		TextGen:    &fakeTextGen{},
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Quantum Foo",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalityText,
	})

	if !result.Success {
		t.Fatalf("expected success, got error=%q", result.Error)
	}
	if result.Tier != types.TierGeneralKnowledge {
		t.Fatalf("tier: want=%v got=%v", types.TierGeneralKnowledge, result.Tier)
	}
	if result.Disclaimer == "" {
		t.Fatalf("general knowledge tier must carry a disclaimer")
	}
}

func TestGenerateLessonTierWebAugmented(t *testing.T) {
	weak := []types.RetrievedMaterial{
		{ID: "a", Text: "chunk a", Score: 0.2},
		{ID: "b", Text: "chunk b", Score: 0.3},
	}
	search := &fakeWebSearch{snippets: []types.RetrievedMaterial{
		{ID: "web-0", Text: "web snippet", Title: "Some page", SourceURL: "https://x", Score: 0.5},
	}}
	textGen := &fakeTextGen{}
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{materials: weak},
		WebSearch:  search,
		TextGen:    textGen,
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Obscure Topic",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalityText,
	})

	if result.Tier != types.TierWebAugmented {
		t.Fatalf("tier: want=%v got=%v", types.TierWebAugmented, result.Tier)
	}
	if !search.called {
		t.Fatalf("web search should be invoked on the augmented tier")
	}
	// course materials come first, web snippets after
	if !strings.Contains(textGen.gotContext, "chunk a") || !strings.Contains(textGen.gotContext, "web snippet") {
		t.Fatalf("merged context missing content: %q", textGen.gotContext)
	}
	if strings.Index(textGen.gotContext, "chunk a") > strings.Index(textGen.gotContext, "web snippet") {
		t.Fatalf("course materials must rank before web snippets")
	}
}

func TestGenerateLessonPodcastRequiresAudio(t *testing.T) {
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{materials: strongMaterials()},
		TextGen:    &fakeTextGen{},
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
		Speech:     &fakeSpeech{audio: nil},
		Bucket:     newFakeBucket(),
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Backpropagation",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalityPodcast,
	})

	if result.Success {
		t.Fatalf("podcast without audio must escalate to pipeline failure")
	}
	if result.Error == "" {
		t.Fatalf("failure result must carry a human-readable reason")
	}
}

func TestGenerateLessonPodcastSuccess(t *testing.T) {
	bucket := newFakeBucket()
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{materials: strongMaterials()},
		TextGen:    &fakeTextGen{},
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
		Speech:     &fakeSpeech{audio: []byte("mp3-bytes")},
		Bucket:     bucket,
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Backpropagation",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalityPodcast,
		VoiceID:  "voice-7",
	})

	if !result.Success {
		t.Fatalf("expected success, got error=%q", result.Error)
	}
	if result.Assets == nil || result.Assets.AudioURL == "" {
		t.Fatalf("podcast result must carry an audio locator, got=%+v", result.Assets)
	}
	if result.Assets.AudioDuration != 42 {
		t.Fatalf("audio duration: want=42 got=%v", result.Assets.AudioDuration)
	}
	if result.Lesson == nil || result.Lesson.Audio == nil || len(result.Lesson.Audio.Turns) != 2 {
		t.Fatalf("podcast lesson payload missing: %+v", result.Lesson)
	}
}

func TestGenerateLessonSlidesPlaceholderFill(t *testing.T) {
	deck := &types.SlidesLesson{Slides: []types.Slide{
		{Title: "One", Bullets: []string{}},
		{Title: "Two", Bullets: []string{}},
		{Title: "Three", Bullets: []string{}},
	}}
	placeholder, err := NewPlaceholderVisual(newTestLogger(t))
	if err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	bucket := newFakeBucket()
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:   &fakeRetrieval{materials: strongMaterials()},
		TextGen:     &fakeTextGen{},
		SlidesGen:   &fakeSlidesGen{deck: deck},
		PodcastGen:  &fakePodcastGen{},
		Image:       &fakeImage{results: map[int]string{0: "https://media.test/slide-0.png"}},
		Placeholder: placeholder,
		Bucket:      bucket,
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Backpropagation",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalitySlides,
	})

	if !result.Success {
		t.Fatalf("expected success, got error=%q", result.Error)
	}
	if result.Assets == nil || len(result.Assets.SlideImages) != 3 {
		t.Fatalf("every slide index must have a visual after placeholder fill, got=%+v", result.Assets)
	}
	for i := 1; i <= 2; i++ {
		if !strings.Contains(result.Assets.SlideImages[i], "placeholder") {
			t.Fatalf("index %d should carry a placeholder visual, got=%q", i, result.Assets.SlideImages[i])
		}
	}
}

func TestGenerateLessonVideoDegradesToStill(t *testing.T) {
	comp := &fakeCompositor{}
	bucket := newFakeBucket()
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{materials: strongMaterials()},
		TextGen:    &fakeTextGen{},
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
		Speech:     &fakeSpeech{audio: []byte("voice-over")},
		Image:      &fakeImage{single: []byte("cover-png")},
		Video:      &fakeVideo{err: fmt.Errorf("poll: %w", ErrVideoTimeout)},
		Compositor: comp,
		Bucket:     bucket,
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Backpropagation",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalityVideo,
	})

	if !result.Success {
		t.Fatalf("timed-out video with audio available should degrade, got error=%q", result.Error)
	}
	if !comp.stillCalled {
		t.Fatalf("degraded path must compose still image + audio")
	}
	if result.Assets == nil || result.Assets.VideoURL == "" {
		t.Fatalf("degraded result must still carry a video locator")
	}
}

func TestGenerateLessonVideoComposesVoiceOver(t *testing.T) {
	comp := &fakeCompositor{}
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{materials: strongMaterials()},
		TextGen:    &fakeTextGen{},
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
		Speech:     &fakeSpeech{audio: []byte("voice-over")},
		Video:      &fakeVideo{clip: []byte("clip-bytes")},
		Compositor: comp,
		Bucket:     newFakeBucket(),
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "Backpropagation",
		CourseID: "course-1",
		UserID:   "user-1",
		Modality: types.ModalityVideo,
	})

	if !result.Success {
		t.Fatalf("expected success, got error=%q", result.Error)
	}
	if !comp.videoCalled {
		t.Fatalf("voice-over must be muxed onto the generated clip")
	}
}

func TestGenerateLessonValidation(t *testing.T) {
	svc := newTestGenerationService(t, GenerationDeps{
		Retrieval:  &fakeRetrieval{},
		TextGen:    &fakeTextGen{},
		SlidesGen:  &fakeSlidesGen{},
		PodcastGen: &fakePodcastGen{},
	})

	result := svc.GenerateLesson(context.Background(), types.GenerationRequest{
		CourseID: "course-1",
		Modality: types.ModalityText,
	})
	if result.Success || result.Error == "" {
		t.Fatalf("missing topic must be a failure result, got=%+v", result)
	}

	result = svc.GenerateLesson(context.Background(), types.GenerationRequest{
		Topic:    "x",
		CourseID: "course-1",
		Modality: types.Modality("hologram"),
	})
	if result.Success {
		t.Fatalf("unknown modality must fail")
	}
}
