package provider_service

import (
	"context"
)

type MockSpeechSynthesizer struct {
	SynthesizeFunc func(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
	Unconfigured   bool
}

func (m *MockSpeechSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return &SpeechResult{Audio: []byte("mock audio"), MimeType: "audio/mpeg", Extension: "mp3", CharacterCount: len(req.Text)}, nil
}

func (m *MockSpeechSynthesizer) Configured() bool {
	return !m.Unconfigured
}

type MockImageGenerator struct {
	GenerateFunc func(ctx context.Context, req ImageRequest) (*ImageResult, error)
	Unconfigured bool
}

func (m *MockImageGenerator) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &ImageResult{URL: "https://example.com/mock.png"}, nil
}

func (m *MockImageGenerator) Configured() bool {
	return !m.Unconfigured
}
