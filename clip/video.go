package clip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/serisow/craftvid/ffmpeg"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".webm": true, ".mkv": true,
}

// IsVideo reports whether path names a video container.
func IsVideo(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// FrameReader yields decoded frames in order.
type FrameReader interface {
	ReadFrame() (*image.RGBA, error)
	Close() error
}

// DecoderFactory starts a frame reader for a file.
type DecoderFactory interface {
	OpenDecoder(ctx context.Context, opts ffmpeg.DecoderOptions) (FrameReader, error)
}

// FFmpegDecoders adapts an ffmpeg executor to DecoderFactory.
type FFmpegDecoders struct {
	Executor *ffmpeg.Executor
}

func (d FFmpegDecoders) OpenDecoder(ctx context.Context, opts ffmpeg.DecoderOptions) (FrameReader, error) {
	dec, err := d.Executor.StartDecoder(ctx, opts)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

// videoSource decodes frames sequentially and restarts the decoder when a
// caller seeks backwards or far ahead.
type videoSource struct {
	mu       sync.Mutex
	ctx      context.Context
	decoders DecoderFactory
	opts     ffmpeg.DecoderOptions
	duration float64

	reader FrameReader
	next   int
	last   *image.RGBA
}

func newVideoSource(ctx context.Context, decoders DecoderFactory, path string, width, height, fps int, policy Policy, duration float64) *videoSource {
	fb := ffmpeg.NewFilterBuilder()
	if policy == PolicyFill {
		fb.Fill(width, height)
	} else {
		fb.Fit(width, height, "black")
	}
	return &videoSource{
		ctx:      ctx,
		decoders: decoders,
		duration: duration,
		opts: ffmpeg.DecoderOptions{
			Input:  path,
			Width:  width,
			Height: height,
			FPS:    fps,
			Filter: fb.SetSAR().Build(),
		},
	}
}

func (v *videoSource) Duration() float64 { return v.duration }

func (v *videoSource) Size() (int, int) { return v.opts.Width, v.opts.Height }

func (v *videoSource) Frame(t float64) (*image.RGBA, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fps := float64(v.opts.FPS)
	if last := v.duration - 1/fps; t > last {
		t = last
	}
	if t < 0 {
		t = 0
	}
	idx := int(math.Floor(t*fps + 1e-6))

	if v.reader == nil || idx < v.next-1 || idx > v.next+2*v.opts.FPS {
		if err := v.restart(idx); err != nil {
			return nil, err
		}
	}

	for v.next <= idx {
		img, err := v.reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			// Past the end of the source: hold the last frame.
			if v.last != nil {
				return v.last, nil
			}
			return nil, fmt.Errorf("no frames decoded from %s", v.opts.Input)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", v.opts.Input, err)
		}
		v.last = img
		v.next++
	}
	return v.last, nil
}

func (v *videoSource) restart(idx int) error {
	if v.reader != nil {
		v.reader.Close()
		v.reader = nil
	}
	opts := v.opts
	opts.Start = float64(idx) / float64(v.opts.FPS)
	reader, err := v.decoders.OpenDecoder(v.ctx, opts)
	if err != nil {
		return err
	}
	v.reader = reader
	v.next = idx
	v.last = nil
	return nil
}

func (v *videoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reader == nil {
		return nil
	}
	err := v.reader.Close()
	v.reader = nil
	return err
}
