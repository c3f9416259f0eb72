package clip

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"

	"github.com/serisow/craftvid/effect"
	"github.com/serisow/craftvid/failure"
)

// Prober reports media durations.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Request describes a single scene clip.
type Request struct {
	VisualPath   string
	AudioPath    string
	Width        int
	Height       int
	Policy       Policy
	Effect       string
	EffectParams map[string]interface{}
	// Duration overrides the narration length when positive.
	Duration float64
}

// Builder turns a visual asset plus narration into a Clip.
type Builder struct {
	logger          *slog.Logger
	engine          *effect.Engine
	prober          Prober
	decoders        DecoderFactory
	defaultDuration float64
	fps             int
	background      color.RGBA
}

func NewBuilder(logger *slog.Logger, engine *effect.Engine, prober Prober, decoders DecoderFactory, defaultDuration float64, fps int) *Builder {
	if defaultDuration <= 0 {
		defaultDuration = 5
	}
	if fps <= 0 {
		fps = 30
	}
	return &Builder{
		logger:          logger,
		engine:          engine,
		prober:          prober,
		decoders:        decoders,
		defaultDuration: defaultDuration,
		fps:             fps,
		background:      color.RGBA{A: 255},
	}
}

// WithFPS returns a copy of the builder sampling video sources at fps.
func (b *Builder) WithFPS(fps int) *Builder {
	cp := *b
	if fps > 0 {
		cp.fps = fps
	}
	return &cp
}

func checkExists(path string) error {
	if path == "" {
		return failure.MissingInput("<empty path>")
	}
	if _, err := os.Stat(path); err != nil {
		return failure.MissingInput(path)
	}
	return nil
}

// Build validates the inputs, resolves the clip duration and applies the
// scene effect. A missing visual or audio file yields a missing-input error
// carrying the path.
func (b *Builder) Build(ctx context.Context, req Request) (Clip, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("clip requires an output size, got %dx%d", req.Width, req.Height)
	}
	if err := checkExists(req.VisualPath); err != nil {
		return nil, err
	}

	var audio *AudioTrack
	if req.AudioPath != "" {
		if err := checkExists(req.AudioPath); err != nil {
			return nil, err
		}
		d, err := b.prober.Duration(ctx, req.AudioPath)
		if err != nil {
			return nil, failure.Encoding("unreadable narration audio", err)
		}
		audio = &AudioTrack{Path: req.AudioPath, Duration: d}
	}

	duration := b.defaultDuration
	switch {
	case req.Duration > 0:
		duration = req.Duration
	case audio != nil && audio.Duration > 0:
		duration = audio.Duration
	case IsVideo(req.VisualPath):
		if d, err := b.prober.Duration(ctx, req.VisualPath); err == nil && d > 0 {
			duration = d
		}
	}

	policy := req.Policy
	if policy == "" {
		policy = PolicyFit
	}

	var source effect.Visual
	var closer *videoSource
	if IsVideo(req.VisualPath) {
		closer = newVideoSource(ctx, b.decoders, req.VisualPath, req.Width, req.Height, b.fps, policy, duration)
		source = closer
	} else {
		img, err := LoadImage(req.VisualPath)
		if err != nil {
			return nil, failure.Encoding("unreadable image", err)
		}
		source = NewStill(Resize(img, req.Width, req.Height, policy, b.background), duration)
	}

	visual := b.engine.Apply(req.Effect, source, duration, effect.Params(req.EffectParams))

	b.logger.Debug("Scene clip built",
		slog.String("visual", req.VisualPath),
		slog.String("audio", req.AudioPath),
		slog.String("effect", req.Effect),
		slog.Float64("duration", visual.Duration()))

	if closer != nil {
		return New(visual, audio, closer), nil
	}
	return New(visual, audio), nil
}

type fileClip struct {
	Clip
	path string
}

func (f *fileClip) SourcePath() string { return f.path }

// Open wraps an already encoded video (a scene preview, an intro or outro)
// as a file-backed clip. Its own audio track is used.
func (b *Builder) Open(ctx context.Context, path string, width, height int, policy Policy) (Clip, error) {
	if err := checkExists(path); err != nil {
		return nil, err
	}
	d, err := b.prober.Duration(ctx, path)
	if err != nil {
		return nil, failure.Encoding("unreadable video", err)
	}
	if policy == "" {
		policy = PolicyFit
	}
	src := newVideoSource(ctx, b.decoders, path, width, height, b.fps, policy, d)
	return &fileClip{
		Clip: New(src, &AudioTrack{Path: path, Duration: d}, src),
		path: path,
	}, nil
}
