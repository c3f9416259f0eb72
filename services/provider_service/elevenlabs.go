package provider_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/serisow/craftvid/failure"
)

const elevenLabsName = "elevenlabs"

// VoiceSettings mirrors the ElevenLabs voice_settings object.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

var defaultVoiceSettings = VoiceSettings{
	Stability:       0.5,
	SimilarityBoost: 0.75,
	UseSpeakerBoost: true,
}

type ElevenLabsService struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiURL     string
	apiKey     string
	settings   VoiceSettings
}

func NewElevenLabsService(logger *slog.Logger, apiURL, apiKey string) *ElevenLabsService {
	return &ElevenLabsService{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		settings:   defaultVoiceSettings,
	}
}

func (s *ElevenLabsService) Configured() bool {
	return s.apiKey != "" && s.apiURL != ""
}

func (s *ElevenLabsService) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, failure.Provider(elevenLabsName, fmt.Errorf("narration text is empty"))
	}
	if req.Voice.ID == "" || req.Model.ID == "" {
		return nil, failure.Provider(elevenLabsName, fmt.Errorf("voice and model are required"))
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"text":           req.Text,
		"model_id":       req.Model.ID,
		"voice_settings": s.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request body: %w", err)
	}

	fullURL := fmt.Sprintf("%s/%s", s.apiURL, req.Voice.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, failure.Provider(elevenLabsName, fmt.Errorf("error making request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpErr := extractElevenLabsError(resp)
		s.logger.Error("ElevenLabs API error",
			slog.Int("status_code", httpErr.StatusCode),
			slog.String("error_type", httpErr.ErrorType),
			slog.String("error_message", httpErr.Message),
			slog.String("voice_id", req.Voice.ID),
			slog.String("model", req.Model.ID))
		return nil, classifyHTTP(elevenLabsName, resp.StatusCode, resp.Header, httpErr)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Provider(elevenLabsName, fmt.Errorf("failed to read audio data: %w", err))
	}
	if len(audio) == 0 {
		return nil, failure.Provider(elevenLabsName, fmt.Errorf("empty audio response"))
	}

	chars := len([]rune(req.Text))
	s.logger.Info("Voice generated",
		slog.String("voice", req.Voice.DisplayName),
		slog.Int("character_count", chars),
		slog.Int("bytes", len(audio)))

	return &SpeechResult{
		Audio:          audio,
		MimeType:       "audio/mpeg",
		Extension:      "mp3",
		CharacterCount: chars,
		Cost:           speechCost(chars),
	}, nil
}
