package video

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/serisow/craftvid/clip"
	"github.com/serisow/craftvid/compositor"
	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/storage"
)

// FrameExtractor grabs still frames from encoded video.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, input string, at float64, output string) error
}

// Defaults are the service-wide render settings.
type Defaults struct {
	Quality          string
	Format           script_type.Format
	BackgroundAudio  string
	BackgroundVolume float64
	Watermark        script_type.WatermarkConfig
}

// PreviewOptions configures a single scene preview.
type PreviewOptions struct {
	Quality string
	Format  script_type.Format
	// Watermark is drawn on the preview when set and enabled.
	Watermark *script_type.WatermarkConfig
	Channel   *script_type.Channel
	Progress  func(percent float64)
}

// BackgroundNone disables background audio for a compile.
const BackgroundNone = "none"

// CompileOptions configures the final render of a script.
type CompileOptions struct {
	Quality string
	Format  script_type.Format
	// Watermark overrides the default global watermark.
	Watermark *script_type.WatermarkConfig
	// BackgroundAudio overrides the default track; BackgroundNone disables it.
	BackgroundAudio string
	Channel         *script_type.Channel
	Intro           string
	Outro           string
	Progress        func(percent float64)
}

// Service produces scene previews and compiled videos.
type Service struct {
	logger     *slog.Logger
	builder    *clip.Builder
	compositor *compositor.Compositor
	resolver   *compositor.Resolver
	renderer   *Renderer
	assembler  *Assembler
	storage    storage.Storage
	frames     FrameExtractor
	presets    Presets
	defaults   Defaults
}

func NewService(
	logger *slog.Logger,
	builder *clip.Builder,
	comp *compositor.Compositor,
	resolver *compositor.Resolver,
	renderer *Renderer,
	assembler *Assembler,
	store storage.Storage,
	frames FrameExtractor,
	presets Presets,
	defaults Defaults,
) *Service {
	if defaults.Quality == "" {
		defaults.Quality = "medium"
	}
	if defaults.Format == "" {
		defaults.Format = script_type.FormatLandscape
	}
	return &Service{
		logger:     logger,
		builder:    builder,
		compositor: comp,
		resolver:   resolver,
		renderer:   renderer,
		assembler:  assembler,
		storage:    store,
		frames:     frames,
		presets:    presets,
		defaults:   defaults,
	}
}

func (s *Service) Presets() Presets { return s.presets }

func (s *Service) preset(quality string) (Preset, error) {
	if quality == "" {
		quality = s.defaults.Quality
	}
	return s.presets.Lookup(quality)
}

func (s *Service) format(f script_type.Format) script_type.Format {
	if f == "" {
		return s.defaults.Format
	}
	return f
}

func requireAsset(scene *script_type.Scene, c script_type.Component) (*script_type.AssetRef, error) {
	ref := scene.Asset(c)
	if ref == nil || ref.Path == "" {
		return nil, failure.MissingInput(fmt.Sprintf("scene %s has no %s", scene.ID, c))
	}
	return ref, nil
}

// sceneClip builds the effect clip of a scene from its image and voice.
func (s *Service) sceneClip(ctx context.Context, scene *script_type.Scene, preset Preset, format script_type.Format) (clip.Clip, error) {
	img, err := requireAsset(scene, script_type.ComponentImage)
	if err != nil {
		return nil, err
	}
	voice, err := requireAsset(scene, script_type.ComponentVoice)
	if err != nil {
		return nil, err
	}
	enc := preset.Encoding(format)
	return s.builder.WithFPS(enc.FPS).Build(ctx, clip.Request{
		VisualPath:   s.storage.Abs(img.Path),
		AudioPath:    s.storage.Abs(voice.Path),
		Width:        enc.Width,
		Height:       enc.Height,
		Policy:       clip.PolicyFor(format),
		Effect:       scene.Effect,
		EffectParams: scene.EffectParams,
		Duration:     scene.Duration,
	})
}

// GeneratePreview renders a scene with its effect, caption and optional
// watermark. The returned ref points at a new file; releasing the previous
// preview is up to the caller.
func (s *Service) GeneratePreview(ctx context.Context, scene *script_type.Scene, opts PreviewOptions) (*script_type.AssetRef, error) {
	preset, err := s.preset(opts.Quality)
	if err != nil {
		return nil, stageError(StageLoad, err)
	}
	format := s.format(opts.Format)

	base, err := s.sceneClip(ctx, scene, preset, format)
	if err != nil {
		return nil, stageError(StageLoad, err)
	}

	var wm *compositor.Watermark
	if opts.Watermark != nil {
		wm, err = s.resolver.Resolve(*opts.Watermark, opts.Channel)
		if err != nil {
			base.Close()
			return nil, stageError(StageCompose, err)
		}
	}
	defer wm.Close()

	composed, err := s.compositor.Compose(base, compositor.NewCaption(scene.Caption), wm)
	if err != nil {
		return nil, stageError(StageCompose, err)
	}
	defer composed.Close()

	enc := preset.Encoding(format)
	rel := storage.AssetPath(script_type.AssetVideo, scene.ScriptID, scene.ID, ".mp4")
	if err := s.renderer.Render(ctx, composed, enc, s.storage.Abs(rel), opts.Progress); err != nil {
		return nil, err
	}

	ref := &script_type.AssetRef{
		Path:      rel,
		Kind:      script_type.AssetVideo,
		MimeType:  "video/mp4",
		Duration:  composed.Duration(),
		Width:     enc.Width,
		Height:    enc.Height,
		CreatedAt: time.Now(),
	}
	if info, err := s.storage.Stat(rel); err == nil {
		ref.Size = info.Size()
	}

	s.logger.Info("Scene preview generated",
		slog.String("scene_id", scene.ID),
		slog.String("path", rel),
		slog.Float64("duration", ref.Duration))
	return ref, nil
}

// CompileScript assembles every scene of script, in ordinal order, into a
// new compiled video. Scenes with a preview reuse it; the others are
// rendered from their assets. The previous compiled file is never touched;
// removing it once the new video is recorded is up to the caller.
func (s *Service) CompileScript(ctx context.Context, script *script_type.Script, opts CompileOptions) (*script_type.CompiledVideo, error) {
	if len(script.Scenes) == 0 {
		return nil, stageError(StageLoad, fmt.Errorf("script %s has no scenes", script.ID))
	}
	preset, err := s.preset(opts.Quality)
	if err != nil {
		return nil, stageError(StageLoad, err)
	}
	format := s.format(opts.Format)
	enc := preset.Encoding(format)
	builder := s.builder.WithFPS(enc.FPS)

	script.SortScenes()
	clips := make([]clip.Clip, 0, len(script.Scenes))
	for i := range script.Scenes {
		scene := &script.Scenes[i]
		var c clip.Clip
		if scene.Preview != nil && s.storage.Exists(scene.Preview.Path) {
			c, err = builder.Open(ctx, s.storage.Abs(scene.Preview.Path), enc.Width, enc.Height, clip.PolicyFor(format))
		} else {
			c, err = s.sceneClip(ctx, scene, preset, format)
			if err == nil {
				c, err = s.compositor.Compose(c, compositor.NewCaption(scene.Caption), nil)
			}
		}
		if err != nil {
			clip.CloseAll(clips)
			return nil, stageError(StageLoad, fmt.Errorf("scene %s: %w", scene.ID, err))
		}
		clips = append(clips, c)
	}

	wmCfg := s.defaults.Watermark
	if opts.Watermark != nil {
		wmCfg = *opts.Watermark
	}
	wm, err := s.resolver.Resolve(wmCfg, opts.Channel)
	if err != nil {
		clip.CloseAll(clips)
		return nil, stageError(StageCompose, err)
	}
	defer wm.Close()

	background := s.background(opts.BackgroundAudio)

	id := uuid.New().String()
	rel := storage.CompiledPath(script.ID, id)
	res, err := s.assembler.Assemble(ctx, clips, background, Params{
		Preset:           preset,
		Format:           format,
		Watermark:        wm,
		Intro:            opts.Intro,
		Outro:            opts.Outro,
		OutputPath:       s.storage.Abs(rel),
		BackgroundVolume: s.defaults.BackgroundVolume,
		Progress:         opts.Progress,
	})
	if err != nil {
		return nil, err
	}

	compiled := &script_type.CompiledVideo{
		ID:              id,
		ScriptID:        script.ID,
		Path:            rel,
		Quality:         preset.Name,
		Format:          format,
		Watermark:       wmCfg,
		BackgroundAudio: background,
		SceneCount:      len(script.Scenes),
		Duration:        res.Duration,
		Size:            res.Size,
		CreatedAt:       time.Now(),
	}

	s.logger.Info("Script compiled",
		slog.String("script_id", script.ID),
		slog.String("path", rel),
		slog.Int("scenes", compiled.SceneCount),
		slog.Float64("duration", compiled.Duration))
	return compiled, nil
}

func (s *Service) background(choice string) string {
	switch strings.ToLower(strings.TrimSpace(choice)) {
	case BackgroundNone:
		return ""
	case "":
		if s.defaults.BackgroundAudio == "" {
			return ""
		}
		if !fileExists(s.defaults.BackgroundAudio) {
			s.logger.Warn("Default background audio not found, compiling without it",
				slog.String("path", s.defaults.BackgroundAudio))
			return ""
		}
		return s.defaults.BackgroundAudio
	default:
		return choice
	}
}

// Thumbnail extracts a JPEG frame from the middle of a compiled video.
func (s *Service) Thumbnail(ctx context.Context, compiled *script_type.CompiledVideo) (string, error) {
	rel := filepath.Join("thumbnails", compiled.ScriptID, compiled.ID+".jpg")
	if err := s.storage.MakeDirs(filepath.Dir(rel)); err != nil {
		return "", stageError(StageThumbnail, err)
	}
	if err := s.frames.ExtractFrame(ctx, s.storage.Abs(compiled.Path), compiled.Duration/2, s.storage.Abs(rel)); err != nil {
		return "", stageError(StageThumbnail, err)
	}
	return rel, nil
}
