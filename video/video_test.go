package video

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/serisow/craftvid/clip"
	"github.com/serisow/craftvid/compositor"
	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/ffmpeg"
	"github.com/serisow/craftvid/script_type"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

type fileClip struct {
	clip.Clip
	path string
}

func (f *fileClip) SourcePath() string { return f.path }

func newFileClip(t *testing.T, dir, name string, duration float64, cc *closeCounter) clip.Clip {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("mp4"), 0644); err != nil {
		t.Fatal(err)
	}
	still := clip.NewStill(image.NewRGBA(image.Rect(0, 0, 64, 36)), duration)
	return &fileClip{Clip: clip.New(still, nil, cc), path: path}
}

type fakeProber struct {
	infos map[string]*ffmpeg.MediaInfo
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	if info, ok := f.infos[path]; ok {
		return info, nil
	}
	return &ffmpeg.MediaInfo{Path: path, Duration: 1, HasAudio: true}, nil
}

type fakeRunner struct {
	args []string
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, opts ffmpeg.RunOptions) error {
	f.args = opts.Args
	if f.err != nil {
		return f.err
	}
	out := opts.Args[len(opts.Args)-1]
	return os.WriteFile(out, []byte("final"), 0644)
}

type fakeWriter struct {
	output string
	frames int
}

func (w *fakeWriter) WriteFrame(img *image.RGBA) error {
	w.frames++
	return nil
}

func (w *fakeWriter) Close() error {
	return os.WriteFile(w.output, []byte("clip"), 0644)
}

func (w *fakeWriter) Abort() {}

type fakeEncoders struct {
	writers []*fakeWriter
	opts    []ffmpeg.EncoderOptions
}

func (f *fakeEncoders) StartEncoder(ctx context.Context, opts ffmpeg.EncoderOptions) (FrameWriter, error) {
	w := &fakeWriter{output: opts.Output}
	f.writers = append(f.writers, w)
	f.opts = append(f.opts, opts)
	return w, nil
}

func TestPresets(t *testing.T) {
	presets := DefaultPresets()
	tests := []struct {
		name    string
		format  script_type.Format
		w, h    int
		bitrate string
		fps     int
	}{
		{"low", script_type.FormatLandscape, 640, 360, "1000k", 24},
		{"medium", script_type.FormatLandscape, 1280, 720, "2500k", 30},
		{"high", script_type.FormatLandscape, 1920, 1080, "5000k", 30},
		{"ultra", script_type.FormatLandscape, 3840, 2160, "15000k", 60},
		{"high", script_type.FormatShorts, 1080, 1920, "5000k", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+string(tt.format), func(t *testing.T) {
			p, err := presets.Lookup(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			enc := p.Encoding(tt.format)
			if enc.Width != tt.w || enc.Height != tt.h || enc.Bitrate != tt.bitrate || enc.FPS != tt.fps {
				t.Errorf("Encoding() = %+v", enc)
			}
		})
	}

	if _, err := presets.Lookup("cinema"); err == nil {
		t.Error("unknown preset should fail")
	}
	if got := strings.Join(presets.Names(), ","); got != "low,medium,high,ultra" {
		t.Errorf("Names() = %s", got)
	}
}

func TestLoadPresetsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	yaml := "medium:\n  bitrate: 3000k\ndraft:\n  width: 320\n  height: 180\n  bitrate: 300k\n  fps: 12\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatal(err)
	}
	if m := presets["medium"]; m.Bitrate != "3000k" || m.Width != 1280 || m.FPS != 30 {
		t.Errorf("medium override = %+v", m)
	}
	if d := presets["draft"]; d.Name != "draft" || d.Width != 320 || d.FPS != 12 {
		t.Errorf("draft preset = %+v", d)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("tiny:\n  bitrate: 1k\n"), 0644)
	if _, err := LoadPresets(bad); err == nil {
		t.Error("incomplete new preset should be rejected")
	}
}

func TestBackgroundPlanCoversTimeline(t *testing.T) {
	tests := []struct {
		track, total float64
		segments     int
	}{
		{5, 12, 3},
		{3, 10, 4},
		{4, 8, 2},
		{20, 12, 1},
		{12, 12, 1},
	}
	for _, tt := range tests {
		plan := BackgroundPlan(tt.track, tt.total)
		if len(plan) != tt.segments {
			t.Errorf("BackgroundPlan(%v, %v) has %d segments, want %d", tt.track, tt.total, len(plan), tt.segments)
		}
		var sum float64
		for _, seg := range plan {
			if seg.Duration > tt.track+1e-9 {
				t.Errorf("segment longer than the track: %+v", seg)
			}
			sum += seg.Duration
		}
		if math.Abs(sum-tt.total) > 1e-9 {
			t.Errorf("BackgroundPlan(%v, %v) covers %v", tt.track, tt.total, sum)
		}
	}
	if BackgroundPlan(0, 10) != nil {
		t.Error("empty track should yield no plan")
	}
}

func TestAssembleArgs(t *testing.T) {
	inputs := []input{
		{path: "s1.mp4", duration: 4, hasAudio: true},
		{path: "intro.mp4", duration: 2, hasAudio: false},
	}
	enc := DefaultPresets()["medium"].Encoding(script_type.FormatLandscape)
	wm := &compositor.Watermark{Path: "wm.png", Position: compositor.BottomRight, Opacity: 0.7, SizeRatio: 0.15}

	args := assembleArgs(inputs, enc, script_type.FormatLandscape, "bg.mp3", BackgroundPlan(5, 6), wm, 0.1, 6, "out.mp4")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-i s1.mp4 -i intro.mp4 -i bg.mp3 -i wm.png",
		"concat=n=2:v=1:a=1[vcat][acat]",
		"anullsrc=r=44100:cl=stereo,atrim=duration=2.000[a1]",
		"[2:a]asplit=2[bgs0][bgs1]",
		"concat=n=2:v=0:a=1,volume=0.1[bg]",
		"amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
		"[3:v]scale=192:-1,format=rgba,colorchannelmixer=aa=0.7[wm]",
		"overlay=main_w-overlay_w-20:main_h-overlay_h-20",
		"-map [vout] -map [aout]",
		"-b:v 2500k",
		"-movflags +faststart",
		"-t 6.000 out.mp4",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q:\n%s", want, joined)
		}
	}

	plain := strings.Join(assembleArgs(inputs[:1], enc, script_type.FormatShorts, "", nil, nil, 0, 4, "o.mp4"), " ")
	if !strings.Contains(plain, "-map [vcat] -map [acat]") || strings.Contains(plain, "amix") {
		t.Errorf("assembly without extras should map the concat output: %s", plain)
	}
	if !strings.Contains(plain, "force_original_aspect_ratio=increase,crop=1280:720") {
		t.Errorf("shorts should crop to fill: %s", plain)
	}
}

func TestOverlayPositionMatchesAnchors(t *testing.T) {
	tests := map[compositor.Position]string{
		compositor.TopLeft:    "20:20",
		compositor.TopRight:   "main_w-overlay_w-20:20",
		compositor.BottomLeft: "20:main_h-overlay_h-20",
		compositor.Center:     "(main_w-overlay_w)/2:(main_h-overlay_h)/2",
	}
	for pos, want := range tests {
		if got := overlayPosition(pos); got != want {
			t.Errorf("overlayPosition(%s) = %s, want %s", pos, got, want)
		}
	}
}

func TestAssembleRemovesTempOutputOnFailure(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "compiled")
	tempDir := filepath.Join(dir, "tmp")
	os.MkdirAll(tempDir, 0755)

	cc := &closeCounter{}
	clips := []clip.Clip{
		newFileClip(t, dir, "a.mp4", 2, cc),
		newFileClip(t, dir, "b.mp4", 3, cc),
	}
	runner := &fakeRunner{err: failure.Encoding("boom", errors.New("exit status 1"))}
	a := NewAssembler(testLogger(), runner, &fakeProber{}, NewRenderer(testLogger(), &fakeEncoders{}), tempDir)

	_, err := a.Assemble(context.Background(), clips, "", Params{
		Preset:     DefaultPresets()["low"],
		Format:     script_type.FormatLandscape,
		OutputPath: filepath.Join(outDir, "final.mp4"),
	})

	var vErr *VideoGenerationError
	if !errors.As(err, &vErr) || vErr.Stage != StageAssemble {
		t.Fatalf("expected assemble stage error, got %v", err)
	}
	if failure.KindOf(err) != failure.KindEncoding || failure.IsRetryable(err) {
		t.Errorf("encoder failure should be a non-retryable encoding error: %v", err)
	}
	if cc.closed != 2 {
		t.Errorf("closed %d clips, want 2", cc.closed)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output directory not clean: %v", entries)
	}
	if entries, _ := os.ReadDir(tempDir); len(entries) != 0 {
		t.Errorf("temp directory not clean: %v", entries)
	}
}

func TestAssembleMissingBackground(t *testing.T) {
	dir := t.TempDir()
	cc := &closeCounter{}
	a := NewAssembler(testLogger(), &fakeRunner{}, &fakeProber{}, NewRenderer(testLogger(), &fakeEncoders{}), dir)

	_, err := a.Assemble(context.Background(), []clip.Clip{newFileClip(t, dir, "a.mp4", 2, cc)}, filepath.Join(dir, "gone.mp3"), Params{
		Preset:     DefaultPresets()["low"],
		OutputPath: filepath.Join(dir, "out", "final.mp4"),
	})
	if failure.KindOf(err) != failure.KindMissingInput {
		t.Fatalf("expected missing input, got %v", err)
	}
	if cc.closed != 1 {
		t.Error("clip not closed on failure")
	}
}

func TestAssembleRendersInMemoryClips(t *testing.T) {
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "tmp")
	os.MkdirAll(tempDir, 0755)
	bg := filepath.Join(dir, "bg.mp3")
	os.WriteFile(bg, []byte("mp3"), 0644)

	preset := Preset{Name: "tiny", Width: 64, Height: 36, Bitrate: "100k", FPS: 10}
	cc := &closeCounter{}
	memory := clip.New(clip.NewStill(image.NewRGBA(image.Rect(0, 0, 64, 36)), 1.5), &clip.AudioTrack{Path: "voice.mp3", Duration: 1.5}, cc)

	encoders := &fakeEncoders{}
	runner := &fakeRunner{}
	prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{bg: {Duration: 5, HasAudio: true}}}
	a := NewAssembler(testLogger(), runner, prober, NewRenderer(testLogger(), encoders), tempDir)

	out := filepath.Join(dir, "out", "final.mp4")
	res, err := a.Assemble(context.Background(), []clip.Clip{memory, newFileClip(t, dir, "preview.mp4", 2, cc)}, bg, Params{
		Preset:     preset,
		OutputPath: out,
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Duration != 3.5 || res.ClipCount != 2 || !res.Background {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not renamed into place: %v", err)
	}
	if len(encoders.writers) != 1 || encoders.writers[0].frames != 15 {
		t.Fatalf("in-memory clip should be rendered once with 15 frames")
	}
	if encoders.opts[0].AudioPath != "voice.mp3" {
		t.Errorf("narration not muxed: %+v", encoders.opts[0])
	}
	if cc.closed != 2 {
		t.Errorf("closed %d clips, want 2", cc.closed)
	}
	if entries, _ := os.ReadDir(tempDir); len(entries) != 0 {
		t.Errorf("intermediates left behind: %v", entries)
	}
	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 1 {
		t.Errorf("temporary output left next to the final file: %v", entries)
	}
}

func TestCleanupRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "tmp")
	media := filepath.Join(dir, "media")
	os.MkdirAll(filepath.Join(tempDir, "assemble-123"), 0755)
	os.WriteFile(filepath.Join(tempDir, "watermark-1.png"), nil, 0644)
	os.WriteFile(filepath.Join(tempDir, "keep.txt"), nil, 0644)
	os.MkdirAll(filepath.Join(media, "compiled", "s"), 0755)
	os.WriteFile(filepath.Join(media, "compiled", "s", ".final-1.mp4"), nil, 0644)
	os.WriteFile(filepath.Join(media, "compiled", "s", "final.mp4"), nil, 0644)

	s := NewCleanupService(testLogger(), tempDir, media, 7)
	s.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	if n := s.PerformCleanup(); n != 3 {
		t.Errorf("removed %d files, want 3", n)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "keep.txt")); err != nil {
		t.Error("unrelated temp file removed")
	}
	if _, err := os.Stat(filepath.Join(media, "compiled", "s", "final.mp4")); err != nil {
		t.Error("compiled video removed")
	}
}
