package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/video"
)

// Renderer produces previews and compiled videos. *video.Service is the
// production implementation.
type Renderer interface {
	GeneratePreview(ctx context.Context, scene *script_type.Scene, opts video.PreviewOptions) (*script_type.AssetRef, error)
	CompileScript(ctx context.Context, script *script_type.Script, opts video.CompileOptions) (*script_type.CompiledVideo, error)
	Thumbnail(ctx context.Context, compiled *script_type.CompiledVideo) (string, error)
	Presets() video.Presets
}

// Downloader stores a remote file at a storage-relative path.
type Downloader interface {
	Download(ctx context.Context, url, rel string) (int64, error)
}

type ImageOptions struct {
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

// Options selects the work of one batch.
type Options struct {
	GenerateImages   bool                         `json:"generate_images"`
	GenerateVoices   bool                         `json:"generate_voices"`
	GenerateVideos   bool                         `json:"generate_videos"`
	CreateFinalVideo bool                         `json:"create_final_video"`
	Voice            script_type.VoiceProfile     `json:"voice"`
	Model            script_type.ModelProfile     `json:"model"`
	ImageOptions     ImageOptions                 `json:"image_options"`
	Quality          string                       `json:"quality,omitempty"`
	Format           script_type.Format           `json:"format,omitempty"`
	SpeechProvider   string                       `json:"speech_provider,omitempty"`
	ImageProvider    string                       `json:"image_provider,omitempty"`
	// PreviewWatermark is drawn on scene previews. Compiles use Compile.Watermark.
	PreviewWatermark *script_type.WatermarkConfig `json:"preview_watermark,omitempty"`
	Compile          CompileOptions               `json:"compile"`
}

// CompileOptions configures a final compile. Empty fields fall back to the
// renderer defaults.
type CompileOptions struct {
	Quality         string                       `json:"quality,omitempty"`
	Format          script_type.Format           `json:"format,omitempty"`
	Watermark       *script_type.WatermarkConfig `json:"watermark,omitempty"`
	BackgroundAudio string                       `json:"background_audio,omitempty"`
	Intro           string                       `json:"intro,omitempty"`
	Outro           string                       `json:"outro,omitempty"`
}

// Config holds the orchestration policy.
type Config struct {
	RetryAttempts        int
	RetryDelay           time.Duration
	MaxRateLimitRequeues int
	RateLimitDelay       time.Duration
	CompileSettle        time.Duration
	MaxCompileRearms     int
	DefaultVoice         script_type.VoiceProfile
	DefaultModel         script_type.ModelProfile
	SpeechProvider       string
	ImageProvider        string
	Quality              string
	Format               script_type.Format
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxRateLimitRequeues <= 0 {
		c.MaxRateLimitRequeues = 3
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = 30 * time.Second
	}
	if c.CompileSettle <= 0 {
		c.CompileSettle = 10 * time.Second
	}
	if c.MaxCompileRearms <= 0 {
		c.MaxCompileRearms = 5
	}
	if c.SpeechProvider == "" {
		c.SpeechProvider = "elevenlabs"
	}
	if c.ImageProvider == "" {
		c.ImageProvider = "openai_image"
	}
	return c
}

// ValidationError rejects a batch before any per-scene work starts.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid batch: " + e.Message
}

var (
	ErrNotReady          = errors.New("not every scene is completed")
	ErrCompileInProgress = errors.New("compile already running")
)

type ReportError struct {
	SceneID   string                `json:"scene_id"`
	Ordinal   int                   `json:"ordinal"`
	Component script_type.Component `json:"component"`
	Kind      failure.Kind          `json:"kind"`
	Message   string                `json:"message"`
}

// Report is the outcome of one batch. ProcessedCount counts scenes that
// finished without errors.
type Report struct {
	ScriptID         string        `json:"script_id"`
	TotalScenes      int           `json:"total_scenes"`
	ProcessedCount   int           `json:"processed_count"`
	Errors           []ReportError `json:"errors"`
	CompileScheduled bool          `json:"compile_scheduled"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      time.Time     `json:"completed_at"`

	mu sync.Mutex
}

func (r *Report) addError(scene *script_type.Scene, c script_type.Component, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, ReportError{
		SceneID:   scene.ID,
		Ordinal:   scene.Ordinal,
		Component: c,
		Kind:      failure.KindOf(err),
		Message:   err.Error(),
	})
}

// snapshot returns a copy safe to hand out while units still report.
func (r *Report) snapshot() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]ReportError, len(r.Errors))
	copy(errs, r.Errors)
	return &Report{
		ScriptID:         r.ScriptID,
		TotalScenes:      r.TotalScenes,
		ProcessedCount:   r.ProcessedCount,
		Errors:           errs,
		CompileScheduled: r.CompileScheduled,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
}

func (r *Report) failedScenes() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.Errors))
	for _, e := range r.Errors {
		out[e.SceneID] = true
	}
	return out
}

// Usage is one billable provider call.
type Usage struct {
	WorkspaceID string  `json:"workspace_id"`
	SceneID     string  `json:"scene_id"`
	Provider    string  `json:"provider"`
	Endpoint    string  `json:"endpoint"`
	Characters  int     `json:"characters,omitempty"`
	Cost        float64 `json:"cost"`
}

// UsageRecorder receives provider usage for accounting.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u Usage)
}

// LogUsageRecorder writes usage records to the logger.
type LogUsageRecorder struct {
	Logger *slog.Logger
}

func (r LogUsageRecorder) RecordUsage(ctx context.Context, u Usage) {
	r.Logger.Info("Provider usage",
		slog.String("workspace_id", u.WorkspaceID),
		slog.String("scene_id", u.SceneID),
		slog.String("provider", u.Provider),
		slog.String("endpoint", u.Endpoint),
		slog.Int("characters", u.Characters),
		slog.String("cost", fmt.Sprintf("%.4f", u.Cost)))
}
