package clip

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/serisow/craftvid/effect"
	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/ffmpeg"
)

type fakeProber struct {
	durations map[string]float64
}

func (f *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	d, ok := f.durations[path]
	if !ok {
		return 0, errors.New("unknown media")
	}
	return d, nil
}

type fakeReader struct {
	frames []*image.RGBA
	pos    int
	closed bool
}

func (r *fakeReader) ReadFrame() (*image.RGBA, error) {
	if r.pos >= len(r.frames) {
		return nil, io.EOF
	}
	f := r.frames[r.pos]
	r.pos++
	return f, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

// fakeDecoders serves solid frames whose red channel encodes the frame index.
type fakeDecoders struct {
	total  int
	starts []float64
	opened []*fakeReader
}

func (d *fakeDecoders) OpenDecoder(ctx context.Context, opts ffmpeg.DecoderOptions) (FrameReader, error) {
	d.starts = append(d.starts, opts.Start)
	first := int(opts.Start*float64(opts.FPS) + 0.5)
	r := &fakeReader{}
	for i := first; i < d.total; i++ {
		img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p] = uint8(i)
			img.Pix[p+3] = 255
		}
		r.frames = append(r.frames, img)
	}
	d.opened = append(d.opened, r)
	return r, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func newTestBuilder(prober *fakeProber, decoders DecoderFactory) *Builder {
	return NewBuilder(testLogger(), effect.NewEngine(testLogger()), prober, decoders, 5, 10)
}

func TestBuildMissingInputs(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "scene.png")
	writePNG(t, imgPath, solid(8, 8, color.RGBA{R: 255, A: 255}))

	tests := []struct {
		name string
		req  Request
		path string
	}{
		{"missing visual", Request{VisualPath: filepath.Join(dir, "nope.png"), Width: 8, Height: 8}, filepath.Join(dir, "nope.png")},
		{"missing audio", Request{VisualPath: imgPath, AudioPath: filepath.Join(dir, "nope.mp3"), Width: 8, Height: 8}, filepath.Join(dir, "nope.mp3")},
	}

	b := newTestBuilder(&fakeProber{}, &fakeDecoders{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(context.Background(), tt.req)
			var fe *failure.Error
			if !errors.As(err, &fe) {
				t.Fatalf("expected *failure.Error, got %v", err)
			}
			if fe.Kind != failure.KindMissingInput || fe.Path != tt.path {
				t.Errorf("got kind %s path %s", fe.Kind, fe.Path)
			}
		})
	}
}

func TestBuildDurationPrecedence(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "scene.png")
	audioPath := filepath.Join(dir, "voice.mp3")
	writePNG(t, imgPath, solid(8, 8, color.RGBA{R: 255, A: 255}))
	if err := os.WriteFile(audioPath, []byte("mp3"), 0644); err != nil {
		t.Fatal(err)
	}
	prober := &fakeProber{durations: map[string]float64{audioPath: 4.2}}
	b := newTestBuilder(prober, &fakeDecoders{})

	tests := []struct {
		name string
		req  Request
		want float64
	}{
		{"narration length", Request{VisualPath: imgPath, AudioPath: audioPath}, 4.2},
		{"default without narration", Request{VisualPath: imgPath}, 5},
		{"explicit override", Request{VisualPath: imgPath, AudioPath: audioPath, Duration: 2}, 2},
		{"effect changes length", Request{VisualPath: imgPath, Effect: "speed", EffectParams: map[string]interface{}{"factor": 2.0}}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Width, tt.req.Height = 16, 16
			c, err := b.Build(context.Background(), tt.req)
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			if c.Duration() != tt.want {
				t.Errorf("Duration() = %v, want %v", c.Duration(), tt.want)
			}
			if tt.req.AudioPath != "" && (c.Audio() == nil || c.Audio().Path != audioPath) {
				t.Errorf("audio track not attached: %+v", c.Audio())
			}
		})
	}
}

func TestResizeFitLetterboxes(t *testing.T) {
	src := solid(100, 50, color.RGBA{R: 255, A: 255})
	out := Resize(src, 100, 100, PolicyFit, color.RGBA{A: 255})

	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 100 {
		t.Fatalf("size = %v", out.Bounds())
	}
	if got := out.RGBAAt(50, 5); got.R != 0 {
		t.Errorf("top bar should be background, got %v", got)
	}
	if got := out.RGBAAt(50, 50); got.R != 255 {
		t.Errorf("centre should be source, got %v", got)
	}
	if got := out.RGBAAt(50, 95); got.R != 0 {
		t.Errorf("bottom bar should be background, got %v", got)
	}
}

func TestResizeFillCrops(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 50 {
				c = color.RGBA{B: 255, A: 255}
			}
			src.SetRGBA(x, y, c)
		}
	}
	out := Resize(src, 50, 50, PolicyFill, color.RGBA{A: 255})

	if got := out.RGBAAt(0, 25); got.R != 255 {
		t.Errorf("left edge should come from the red half, got %v", got)
	}
	if got := out.RGBAAt(49, 25); got.B != 255 {
		t.Errorf("right edge should come from the blue half, got %v", got)
	}
}

func TestResizeUpscalesSmallSources(t *testing.T) {
	out := Resize(solid(10, 10, color.RGBA{G: 200, A: 255}), 40, 40, PolicyFit, color.RGBA{A: 255})
	if got := out.RGBAAt(0, 0); got.G < 190 {
		t.Errorf("upscaled source should cover the frame, got %v", got)
	}
}

func TestVideoSourceSeeks(t *testing.T) {
	dec := &fakeDecoders{total: 100}
	v := newVideoSource(context.Background(), dec, "clip.mp4", 4, 4, 10, PolicyFit, 10)
	defer v.Close()

	frameAt := func(t0 float64) uint8 {
		t.Helper()
		img, err := v.Frame(t0)
		if err != nil {
			t.Fatal(err)
		}
		return img.Pix[0]
	}

	if got := frameAt(0); got != 0 {
		t.Errorf("frame at 0 = %d", got)
	}
	if got := frameAt(0.5); got != 5 {
		t.Errorf("frame at 0.5 = %d", got)
	}
	if len(dec.starts) != 1 {
		t.Errorf("sequential reads should reuse the decoder, got %d starts", len(dec.starts))
	}

	if got := frameAt(0.2); got != 2 {
		t.Errorf("frame at 0.2 after seeking back = %d", got)
	}
	if len(dec.starts) != 2 || !dec.opened[0].closed {
		t.Errorf("backward seek should restart the decoder: starts=%v", dec.starts)
	}

	if got := frameAt(20); got != 99 {
		t.Errorf("reading past the end should hold the last frame, got %d", got)
	}
}

func TestCloseAllClosesEveryClip(t *testing.T) {
	readers := []*fakeReader{{}, {}}
	clips := []Clip{
		New(NewStill(solid(2, 2, color.RGBA{}), 1), nil, readers[0]),
		New(NewStill(solid(2, 2, color.RGBA{}), 1), nil, readers[1]),
	}
	if err := CloseAll(clips); err != nil {
		t.Fatal(err)
	}
	for i, r := range readers {
		if !r.closed {
			t.Errorf("clip %d not closed", i)
		}
	}
	// Closing twice is a no-op.
	if err := clips[0].Close(); err != nil {
		t.Fatal(err)
	}
}
