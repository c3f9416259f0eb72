package cmd

import (
	"fmt"
	"log/slog"

	"github.com/serisow/craftvid/clip"
	"github.com/serisow/craftvid/compositor"
	"github.com/serisow/craftvid/config"
	"github.com/serisow/craftvid/effect"
	"github.com/serisow/craftvid/ffmpeg"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/storage"
	"github.com/serisow/craftvid/video"
)

const defaultFPS = 30

// renderStack is the ffmpeg-backed render pipeline shared by serve and render.
type renderStack struct {
	ffmpeg  *ffmpeg.Executor
	effects *effect.Engine
	presets video.Presets
	service *video.Service
}

func newRenderStack(logger *slog.Logger, cfg config.Config, store storage.Storage) (*renderStack, error) {
	presets, err := video.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}
	if _, err := presets.Lookup(cfg.DefaultQuality); err != nil {
		return nil, fmt.Errorf("default quality: %w", err)
	}

	ff := ffmpeg.New(logger, cfg.FFmpegPath, cfg.FFprobePath, cfg.FFmpegThreads)
	engine := effect.NewEngine(logger)
	builder := clip.NewBuilder(logger, engine, ff, clip.FFmpegDecoders{Executor: ff}, cfg.DefaultSceneDuration, defaultFPS)
	renderer := video.NewRenderer(logger, video.FFmpegEncoders{Executor: ff})

	svc := video.NewService(
		logger,
		builder,
		compositor.New(logger),
		compositor.NewResolver(logger, cfg.TempDir),
		renderer,
		video.NewAssembler(logger, ff, ff, renderer, cfg.TempDir),
		store,
		ff,
		presets,
		video.Defaults{
			Quality:          cfg.DefaultQuality,
			Format:           cfg.DefaultFormat,
			BackgroundAudio:  cfg.BackgroundAudioPath,
			BackgroundVolume: cfg.BackgroundVolume,
			Watermark:        globalWatermark(cfg),
		},
	)
	return &renderStack{ffmpeg: ff, effects: engine, presets: presets, service: svc}, nil
}

func globalWatermark(cfg config.Config) script_type.WatermarkConfig {
	opacity := cfg.WatermarkOpacity
	return script_type.WatermarkConfig{
		Path:      cfg.WatermarkPath,
		Position:  cfg.WatermarkPosition,
		Opacity:   &opacity,
		SizeRatio: cfg.WatermarkSizeRatio,
		Enabled:   cfg.WatermarkPath != "",
	}
}
