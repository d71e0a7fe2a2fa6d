package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

// CompositorService muxes separately generated media into one playable file
// via ffmpeg. Each composition works in a private scratch directory that is
// removed on every exit path.
//
// REQUIRED BINARY in the runtime: ffmpeg.
type CompositorService interface {
	AssertReady(ctx context.Context) error
	ComposeStillAudio(ctx context.Context, image, audio []byte) ([]byte, error)
	ComposeVideoAudio(ctx context.Context, video, audio []byte) ([]byte, error)
}

type compositorService struct {
	log        *logger.Logger
	ffmpegPath string
	workRoot   string
	timeout    time.Duration
}

func NewCompositorService(log *logger.Logger) CompositorService {
	serviceLog := log.With("service", "CompositorService")
	workRoot := utils.GetEnv("COMPOSITOR_WORK_ROOT", "/tmp/brightpath-media", log)
	timeoutSec := utils.GetEnvAsInt("COMPOSITOR_TIMEOUT_SECONDS", 600, log)
	return &compositorService{
		log:        serviceLog,
		ffmpegPath: "ffmpeg",
		workRoot:   workRoot,
		timeout:    time.Duration(timeoutSec) * time.Second,
	}
}

func (c *compositorService) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(c.ffmpegPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", c.ffmpegPath, err)
	}
	if err := os.MkdirAll(c.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

// ComposeStillAudio loops a still image for the duration of the audio track
// and muxes both into an mp4.
func (c *compositorService) ComposeStillAudio(ctx context.Context, image, audio []byte) ([]byte, error) {
	if len(image) == 0 || len(audio) == 0 {
		return nil, fmt.Errorf("image and audio required")
	}
	dir, cleanup, err := c.newScratchDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	imgPath := filepath.Join(dir, "still.png")
	audioPath := filepath.Join(dir, "voice.mp3")
	outPath := filepath.Join(dir, "out.mp4")
	if err := writeInput(imgPath, image); err != nil {
		return nil, err
	}
	if err := writeInput(audioPath, audio); err != nil {
		return nil, err
	}

	if err := c.runFFmpeg(ctx, stillAudioArgs(imgPath, audioPath, outPath)); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// ComposeVideoAudio replaces the audio track of a generated clip with the
// synthesized voice-over, copying the video stream unchanged.
func (c *compositorService) ComposeVideoAudio(ctx context.Context, video, audio []byte) ([]byte, error) {
	if len(video) == 0 || len(audio) == 0 {
		return nil, fmt.Errorf("video and audio required")
	}
	dir, cleanup, err := c.newScratchDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	videoPath := filepath.Join(dir, "clip.mp4")
	audioPath := filepath.Join(dir, "voice.mp3")
	outPath := filepath.Join(dir, "out.mp4")
	if err := writeInput(videoPath, video); err != nil {
		return nil, err
	}
	if err := writeInput(audioPath, audio); err != nil {
		return nil, err
	}

	if err := c.runFFmpeg(ctx, videoAudioArgs(videoPath, audioPath, outPath)); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// stillAudioArgs builds the explicit argv for muxing a looped still image
// with an audio track. Pure so it can be unit tested.
func stillAudioArgs(imagePath, audioPath, outPath string) []string {
	return []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		outPath,
	}
}

// videoAudioArgs builds the explicit argv for swapping a clip's audio track
// for a voice-over, copying the video stream.
func videoAudioArgs(videoPath, audioPath, outPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outPath,
	}
}

func (c *compositorService) runFFmpeg(ctx context.Context, args []string) error {
	if err := c.AssertReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w; stderr=%s", err, stderrTail(stderr.String(), 800))
	}
	return nil
}

// newScratchDir allocates a private directory per composition so concurrent
// invocations, including ones fed identical bytes, never share paths. The
// cleanup removes the whole directory, inputs and output alike.
func (c *compositorService) newScratchDir() (string, func(), error) {
	if err := os.MkdirAll(c.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	dir, err := os.MkdirTemp(c.workRoot, "compose-")
	if err != nil {
		return "", func() {}, fmt.Errorf("mkdir scratch dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func writeInput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write input file: %w", err)
	}
	return nil
}

func stderrTail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
