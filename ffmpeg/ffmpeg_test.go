package ffmpeg

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/serisow/craftvid/failure"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}
}

func testExecutor() *Executor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), "", "", 0)
}

func TestFilterBuilder(t *testing.T) {
	got := NewFilterBuilder().Fit(1280, 720, "").SetSAR().FPS(30).Build()
	want := "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=30"
	if got != want {
		t.Errorf("Build() =\n%s\nwant\n%s", got, want)
	}

	fill := NewFilterBuilder().Fill(1080, 1920).Build()
	if fill != "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920" {
		t.Errorf("Fill() = %s", fill)
	}

	if NewFilterBuilder().Scale(0, 10).Build() != "" {
		t.Error("invalid scale should be skipped")
	}
}

func TestGraph(t *testing.T) {
	g := NewGraph().
		Chain([]string{"0:v", "0:a", "1:v", "1:a"}, "concat=n=2:v=1:a=1", "v", "a").
		Chain([]string{"a"}, "volume=0.5", "aout")

	want := "[0:v][0:a][1:v][1:a]concat=n=2:v=1:a=1[v][a];[a]volume=0.5[aout]"
	if got := g.Build(); got != want {
		t.Errorf("Build() = %s, want %s", got, want)
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d", g.Len())
	}
}

func TestStreamProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=30",
		"fps=29.97",
		"out_time_us=1000000",
		"speed=1.5x",
		"progress=continue",
		"frame=60",
		"out_time_us=2000000",
		"progress=end",
	}, "\n")

	var got []Progress
	streamProgress(strings.NewReader(input), RunOptions{
		Duration:        4,
		ProgressHandler: func(p Progress) { got = append(got, p) },
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 progress reports, got %d", len(got))
	}
	if got[0].Frame != 30 || math.Abs(got[0].Percentage-25) > 1e-9 || got[0].Speed != "1.5x" {
		t.Errorf("first report = %+v", got[0])
	}
	if got[1].Percentage != 100 {
		t.Errorf("final report should be 100%%, got %v", got[1].Percentage)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := newTailBuffer(8)
	tb.Write([]byte("0123456789"))
	tb.Write([]byte("ab"))
	if got := tb.String(); got != "456789ab" {
		t.Errorf("String() = %q", got)
	}
	if newTailBuffer(4).String() == "" {
		t.Error("empty buffer should still describe the failure")
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{
		"format": {"duration": "12.480000", "bit_rate": "2500000"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "r_frame_rate": "30000/1001"},
			{"codec_type": "audio", "codec_name": "aac"}
		]
	}`)
	info, err := parseProbe("final.mp4", out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Duration != 12.48 || info.Width != 1280 || info.Height != 720 {
		t.Errorf("unexpected info %+v", info)
	}
	if math.Abs(info.FPS-29.97) > 0.01 {
		t.Errorf("FPS = %v", info.FPS)
	}
	if !info.HasAudio || info.AudioCodec != "aac" {
		t.Errorf("audio not detected: %+v", info)
	}
}

func TestEncoderArgs(t *testing.T) {
	args := encoderArgs(EncoderOptions{
		Encoding:  Encoding{Width: 640, Height: 360, FPS: 24, Bitrate: "1000k"},
		AudioPath: "voice.mp3",
		Duration:  4,
		Output:    "out.mp4",
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-s 640x360", "-r 24", "-i pipe:0", "-i voice.mp3", "-b:v 1000k", "-t 4.000", "-c:v libx264"} {
		if !strings.Contains(joined, want) {
			t.Errorf("encoder args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "out.mp4" {
		t.Errorf("output must be last, got %s", args[len(args)-1])
	}

	silent := strings.Join(encoderArgs(EncoderOptions{Encoding: Encoding{Width: 2, Height: 2}, Output: "o.mp4"}), " ")
	if !strings.Contains(silent, "anullsrc") || !strings.Contains(silent, "-shortest") {
		t.Errorf("silent encode should synthesize audio: %s", silent)
	}
}

func TestRunReportsEncodingError(t *testing.T) {
	skipIfNoFFmpeg(t)

	err := testExecutor().Run(context.Background(), RunOptions{Args: []string{"-i", "/does/not/exist.mp4", filepath.Join(t.TempDir(), "o.mp4")}})
	if failure.KindOf(err) != failure.KindEncoding {
		t.Fatalf("expected encoding error, got %v", err)
	}
}

func TestEncoderRoundTrip(t *testing.T) {
	skipIfNoFFmpeg(t)

	e := testExecutor()
	out := filepath.Join(t.TempDir(), "frames.mp4")
	enc, err := e.StartEncoder(context.Background(), EncoderOptions{
		Encoding: Encoding{Width: 64, Height: 36, FPS: 10, Preset: "ultrafast"},
		Duration: 1,
		Output:   out,
	})
	if err != nil {
		t.Fatal(err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for i := range frame.Pix {
		frame.Pix[i] = 200
	}
	frame.Set(0, 0, color.RGBA{A: 255})
	for i := 0; i < 10; i++ {
		if err := enc.WriteFrame(frame); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := e.Probe(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 64 || info.Height != 36 || !info.HasAudio {
		t.Errorf("unexpected output %+v", info)
	}
	if math.Abs(info.Duration-1) > 0.15 {
		t.Errorf("duration = %v, want ~1s", info.Duration)
	}

	dec, err := e.StartDecoder(context.Background(), DecoderOptions{Input: out, Width: 32, Height: 18, FPS: 10})
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	img, err := dec.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 32 {
		t.Errorf("decoded width = %d", img.Bounds().Dx())
	}
}
