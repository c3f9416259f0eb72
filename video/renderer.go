package video

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/serisow/craftvid/clip"
	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/ffmpeg"
)

// Renderer encodes in-memory clips frame by frame.
type Renderer struct {
	logger   *slog.Logger
	encoders EncoderFactory
}

func NewRenderer(logger *slog.Logger, encoders EncoderFactory) *Renderer {
	return &Renderer{logger: logger, encoders: encoders}
}

// Render encodes c to output. The file is written to a temporary name next
// to output and renamed into place only on success. The clip stays owned by
// the caller.
func (r *Renderer) Render(ctx context.Context, c clip.Clip, enc ffmpeg.Encoding, output string, progress func(float64)) error {
	w, h := c.Size()
	if w != enc.Width || h != enc.Height {
		return stageError(StageRender, fmt.Errorf("clip is %dx%d, output is %dx%d", w, h, enc.Width, enc.Height))
	}
	if enc.FPS <= 0 {
		enc.FPS = 30
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return stageError(StageRender, fmt.Errorf("failed to create output directory: %w", err))
	}
	tmp, err := tempOutput(output)
	if err != nil {
		return stageError(StageRender, err)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	duration := c.Duration()
	opts := ffmpeg.EncoderOptions{Encoding: enc, Duration: duration, Output: tmp}
	if a := c.Audio(); a != nil {
		opts.AudioPath = a.Path
		opts.AudioOffset = a.Offset
	}

	writer, err := r.encoders.StartEncoder(ctx, opts)
	if err != nil {
		return stageError(StageRender, err)
	}

	frames := int(math.Round(duration * float64(enc.FPS)))
	if frames < 1 {
		frames = 1
	}
	step := frames / 20
	if step < 1 {
		step = 1
	}
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			writer.Abort()
			return stageError(StageRender, failure.Cancelled(err))
		}
		img, err := c.Frame(float64(i) / float64(enc.FPS))
		if err != nil {
			writer.Abort()
			return stageError(StageRender, fmt.Errorf("frame %d: %w", i, err))
		}
		if err := writer.WriteFrame(img); err != nil {
			writer.Abort()
			return stageError(StageRender, err)
		}
		if progress != nil && i%step == 0 {
			progress(float64(i) * 100 / float64(frames))
		}
	}
	if err := writer.Close(); err != nil {
		return stageError(StageRender, err)
	}

	if err := os.Rename(tmp, output); err != nil {
		return stageError(StageFinalize, fmt.Errorf("failed to move output into place: %w", err))
	}
	committed = true
	if progress != nil {
		progress(100)
	}

	r.logger.Debug("Clip rendered",
		slog.String("output", output),
		slog.Int("frames", frames),
		slog.Float64("duration", duration))
	return nil
}

// tempOutput reserves a hidden temporary file next to output that keeps
// the extension so ffmpeg picks the same muxer.
func tempOutput(output string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(output), "."+trimExt(filepath.Base(output))+"-*"+filepath.Ext(output))
	if err != nil {
		return "", fmt.Errorf("failed to create temporary output: %w", err)
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
