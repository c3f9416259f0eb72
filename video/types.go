package video

import (
	"context"
	"image"

	"github.com/serisow/craftvid/compositor"
	"github.com/serisow/craftvid/ffmpeg"
	"github.com/serisow/craftvid/script_type"
)

// Render stages reported in VideoGenerationError.
const (
	StageLoad      = "load"
	StageCompose   = "compose"
	StageRender    = "render"
	StageAssemble  = "assemble"
	StageFinalize  = "finalize"
	StageThumbnail = "thumbnail"
)

// VideoGenerationError represents errors in the video generation process
type VideoGenerationError struct {
	Stage string
	Err   error
}

func (e *VideoGenerationError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *VideoGenerationError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &VideoGenerationError{Stage: stage, Err: err}
}

// Runner executes ffmpeg command lines.
type Runner interface {
	Run(ctx context.Context, opts ffmpeg.RunOptions) error
}

// Prober reads media metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// FrameWriter consumes rendered frames for a single output file.
type FrameWriter interface {
	WriteFrame(img *image.RGBA) error
	Close() error
	Abort()
}

// EncoderFactory starts frame writers.
type EncoderFactory interface {
	StartEncoder(ctx context.Context, opts ffmpeg.EncoderOptions) (FrameWriter, error)
}

// FFmpegEncoders adapts an ffmpeg executor to EncoderFactory.
type FFmpegEncoders struct {
	Executor *ffmpeg.Executor
}

func (f FFmpegEncoders) StartEncoder(ctx context.Context, opts ffmpeg.EncoderOptions) (FrameWriter, error) {
	enc, err := f.Executor.StartEncoder(ctx, opts)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// Params configures a timeline assembly.
type Params struct {
	Preset Preset
	Format script_type.Format
	// Watermark is overlaid on the whole timeline when set.
	Watermark *compositor.Watermark
	// Intro and Outro are optional video files placed around the scenes.
	Intro      string
	Outro      string
	OutputPath string
	// BackgroundVolume attenuates the background track, default 0.1.
	BackgroundVolume float64
	Progress         func(percent float64)
}

// Result describes a finished assembly.
type Result struct {
	Path       string
	Duration   float64
	Size       int64
	ClipCount  int
	Width      int
	Height     int
	Background bool
}
