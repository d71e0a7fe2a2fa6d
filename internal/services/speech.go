package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

// speechChunkLimit is the per-request character ceiling the TTS provider
// accepts; longer scripts are split at sentence boundaries.
const speechChunkLimit = 1800

// SpeechService converts narration text to audio bytes. A nil, nil return
// means synthesis was unavailable for the whole script, which callers must
// treat as expected absence of audio, not a failure.
type SpeechService interface {
	Synthesize(ctx context.Context, script, voiceID string) ([]byte, error)
}

type speechService struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	voiceID    string
	httpClient *http.Client
	chunkLimit int
}

func NewSpeechService(log *logger.Logger) (SpeechService, error) {
	serviceLog := log.With("service", "SpeechService")

	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("MINIMAX_API_KEY"))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing SPEECH_API_KEY or MINIMAX_API_KEY")
	}

	baseURL := utils.GetEnv("SPEECH_BASE_URL", "https://api.minimax.io", log)
	model := utils.GetEnv("SPEECH_MODEL", "speech-02-hd", log)
	voiceID := utils.GetEnv("SPEECH_DEFAULT_VOICE", "male-qn-qingse", log)
	timeoutSec := utils.GetEnvAsInt("SPEECH_TIMEOUT_SECONDS", 120, log)

	return &speechService{
		log:        serviceLog,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		voiceID:    voiceID,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		chunkLimit: speechChunkLimit,
	}, nil
}

type ttsRequest struct {
	Model        string `json:"model"`
	Text         string `json:"text"`
	VoiceSetting struct {
		VoiceID string  `json:"voice_id"`
		Speed   float64 `json:"speed"`
	} `json:"voice_setting"`
	AudioSetting struct {
		Format     string `json:"format"`
		SampleRate int    `json:"sample_rate"`
	} `json:"audio_setting"`
	OutputFormat string `json:"output_format"`
}

type ttsResponse struct {
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// Synthesize splits the script into sentence-boundary chunks, synthesizes
// each sequentially and concatenates the audio in order. Failed chunks are
// skipped; if no chunk succeeds the result is nil, nil.
func (s *speechService) Synthesize(ctx context.Context, script, voiceID string) ([]byte, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, nil
	}
	if strings.TrimSpace(voiceID) == "" {
		voiceID = s.voiceID
	}

	chunks := splitSpeechChunks(script, s.chunkLimit)

	var audio []byte
	succeeded := 0
	for i, chunk := range chunks {
		part, err := s.synthesizeChunk(ctx, chunk, voiceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("Speech chunk failed, skipping",
				"chunk", i+1,
				"chunks", len(chunks),
				"error", err,
			)
			continue
		}
		audio = append(audio, part...)
		succeeded++
	}

	if succeeded == 0 {
		s.log.Warn("Speech synthesis unavailable for entire script", "chunks", len(chunks))
		return nil, nil
	}
	return audio, nil
}

func (s *speechService) synthesizeChunk(ctx context.Context, text, voiceID string) ([]byte, error) {
	reqBody := ttsRequest{
		Model:        s.model,
		Text:         text,
		OutputFormat: "hex",
	}
	reqBody.VoiceSetting.VoiceID = voiceID
	reqBody.VoiceSetting.Speed = 1.0
	reqBody.AudioSetting.Format = "mp3"
	reqBody.AudioSetting.SampleRate = 32000

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/t2a_v2", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tts http %d: %s", resp.StatusCode, bodyTail(raw, 300))
	}

	var parsed ttsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("tts decode: %w", err)
	}
	if parsed.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("tts provider status %d: %s", parsed.BaseResp.StatusCode, parsed.BaseResp.StatusMsg)
	}
	if parsed.Data.Audio == "" {
		return nil, fmt.Errorf("tts response contained no audio")
	}

	audio, err := hex.DecodeString(parsed.Data.Audio)
	if err != nil {
		return nil, fmt.Errorf("tts audio hex decode: %w", err)
	}
	return audio, nil
}

// splitSpeechChunks splits a script at sentence boundaries into chunks no
// larger than limit chars. A single sentence over the limit is hard-split.
func splitSpeechChunks(script string, limit int) []string {
	if limit <= 0 || len(script) <= limit {
		return []string{script}
	}

	sentences := splitSentences(script)
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range sentences {
		for len(sentence) > limit {
			flush()
			cut := runeBoundaryCut(sentence, limit)
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, strings.TrimSpace(sentence[:cut]))
			sentence = sentence[cut:]
		}
		if sentence == "" {
			continue
		}
		joined := current.Len() + 1 + len(sentence)
		if current.Len() > 0 && joined > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

func splitSentences(script string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range script {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
