package provider_service

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/serisow/craftvid/script_type"
)

type SpeechRequest struct {
	Text  string
	Voice script_type.VoiceProfile
	Model script_type.ModelProfile
}

type SpeechResult struct {
	Audio          []byte
	MimeType       string
	Extension      string
	CharacterCount int
	Cost           float64
}

// SpeechSynthesizer turns narration text into audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
	// Configured reports whether credentials are present.
	Configured() bool
}

type ImageRequest struct {
	Prompt  string
	Size    string
	Quality string
	Style   string
}

// ImageResult carries either a URL to download or the image bytes.
type ImageResult struct {
	URL           string
	Data          []byte
	MimeType      string
	RevisedPrompt string
	Cost          float64
}

// ImageGenerator turns a visual prompt into an image.
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
	Configured() bool
}

const (
	// Approximate list prices used for usage reporting.
	speechCostPer1000Chars = 0.003
	imageCostStandard      = 0.04
	imageCostHD            = 0.08
)

func speechCost(chars int) float64 {
	return float64(chars) / 1000 * speechCostPer1000Chars
}

func imageCost(quality string) float64 {
	if quality == "hd" {
		return imageCostHD
	}
	return imageCostStandard
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. It returns zero when the header is absent or malformed.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
