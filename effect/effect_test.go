package effect

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"testing"
)

type stillVisual struct {
	img      *image.RGBA
	duration float64
	calls    []float64
}

func (s *stillVisual) Duration() float64 { return s.duration }
func (s *stillVisual) Size() (int, int)  { return s.img.Bounds().Dx(), s.img.Bounds().Dy() }
func (s *stillVisual) Frame(t float64) (*image.RGBA, error) {
	s.calls = append(s.calls, t)
	return s.img, nil
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func testEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEffectDurations(t *testing.T) {
	engine := testEngine()
	const d = 4.0

	for _, name := range engine.Names() {
		t.Run(name, func(t *testing.T) {
			v := &stillVisual{img: gradient(32, 18), duration: d}
			out := engine.Apply(name, v, d, nil)

			want := d
			switch name {
			case "speed":
				want = d / 1.5
			case "loop":
				want = d * 2
			}
			if math.Abs(out.Duration()-want) > 1e-9 {
				t.Errorf("Duration() = %v, want %v", out.Duration(), want)
			}
		})
	}
}

func TestSpeedAndLoopHonourParams(t *testing.T) {
	engine := testEngine()
	v := &stillVisual{img: gradient(8, 8), duration: 6}

	if got := engine.Apply("speed", v, 6, Params{"factor": 2}).Duration(); got != 3 {
		t.Errorf("speed factor 2: Duration() = %v, want 3", got)
	}
	if got := engine.Apply("loop", v, 6, Params{"n_loops": 3}).Duration(); got != 18 {
		t.Errorf("loop n=3: Duration() = %v, want 18", got)
	}
}

func TestUnknownEffectPassesThrough(t *testing.T) {
	engine := testEngine()
	v := &stillVisual{img: gradient(16, 9), duration: 3}

	for _, name := range []string{"does_not_exist", "", "none"} {
		out := engine.Apply(name, v, 3, nil)
		if out != Visual(v) {
			t.Errorf("Apply(%q) should return the input visual unchanged", name)
		}
	}
}

func TestMalformedParamsPassThrough(t *testing.T) {
	engine := testEngine()
	v := &stillVisual{img: gradient(16, 9), duration: 3}

	tests := []struct {
		name   string
		effect string
		params Params
	}{
		{"non numeric zoom", "ken_burns", Params{"zoom_ratio": "abc"}},
		{"wrong type", "blur", Params{"radius": []int{1, 2}}},
		{"zero speed", "speed", Params{"factor": 0}},
		{"bad direction", "slide", Params{"direction": "sideways"}},
		{"fade out of range", "fade", Params{"fade_in": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := engine.Apply(tt.effect, v, 3, tt.params); out != Visual(v) {
				t.Errorf("expected pass-through for %s with %v", tt.effect, tt.params)
			}
		})
	}
}

type panicky struct{}

func (panicky) Name() string        { return "panicky" }
func (panicky) Description() string { return "fails after one second" }
func (panicky) Duration(src float64, p Params) (float64, error) {
	return src, nil
}
func (panicky) At(t, d float64, p Params) (Op, error) {
	if t > 1 {
		panic("boom")
	}
	op := Identity(t)
	op.Pixel = grayscale
	return op, nil
}

func TestPanickingEffectDegradesToPassThrough(t *testing.T) {
	var logs bytes.Buffer
	engine := NewEngine(slog.New(slog.NewTextHandler(&logs, nil)))
	engine.Register(panicky{})

	src := gradient(16, 9)
	v := &stillVisual{img: src, duration: 3}
	out := engine.Apply("panicky", v, 3, nil)

	frame, err := out.Frame(2)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if !bytes.Equal(frame.Pix, src.Pix) {
		t.Error("expected untouched frame after panic")
	}
	if !bytes.Contains(logs.Bytes(), []byte("panicky")) {
		t.Error("expected the failure to be logged")
	}
}

func TestKenBurnsZoomAndFade(t *testing.T) {
	op, err := kenBurns(2, 4, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(op.Scale-1.05) > 1e-9 {
		t.Errorf("scale at midpoint = %v, want 1.05", op.Scale)
	}
	if op.Opacity != 1 {
		t.Errorf("opacity at midpoint = %v, want 1", op.Opacity)
	}

	start, _ := kenBurns(0, 4, Params{})
	if start.Opacity != 0 {
		t.Errorf("opacity at start = %v, want 0", start.Opacity)
	}
	end, _ := kenBurns(4, 4, Params{"zoom_ratio": 0.2})
	if math.Abs(end.Scale-1.2) > 1e-9 {
		t.Errorf("scale at end = %v, want 1.2", end.Scale)
	}
}

func TestFadeEnvelope(t *testing.T) {
	tests := []struct {
		t, want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{5, 1},
		{9.5, 0.5},
		{10, 0},
	}
	for _, tt := range tests {
		if got := fadeEnvelope(tt.t, 10, 0.1, 0.1); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("fadeEnvelope(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestTimeRemapping(t *testing.T) {
	tests := []struct {
		name   string
		at     func(t, d float64, p Params) (Op, error)
		t, d   float64
		params Params
		want   float64
	}{
		{"loop wraps", loopAt, 5, 8, Params{"n_loops": 2}, 1},
		{"speed samples ahead", speedAt, 2, 4, Params{"factor": 2}, 4},
		{"reverse", reverse, 1, 4, Params{}, 3},
		{"time mirror first half", timeMirror, 1, 4, Params{}, 2},
		{"time mirror turns at the end of the source", timeMirror, 2, 4, Params{}, 4},
		{"time mirror second half", timeMirror, 3, 4, Params{}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := tt.at(tt.t, tt.d, tt.params)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(op.SourceTime-tt.want) > 1e-9 {
				t.Errorf("SourceTime = %v, want %v", op.SourceTime, tt.want)
			}
		})
	}
}

func TestSlideRollsFullFrameByDefault(t *testing.T) {
	op, err := slide(2, 4, Params{"direction": "right"})
	if err != nil {
		t.Fatal(err)
	}
	if op.ShiftX != 0.5 || op.OffsetX != 0 {
		t.Errorf("half way: ShiftX = %v, OffsetX = %v, want 0.5 and 0", op.ShiftX, op.OffsetX)
	}
	if x, _ := op.offset(640, 360); x != 320 {
		t.Errorf("pixel offset at half way = %v, want 320", x)
	}

	op, err = slide(2, 4, Params{"direction": "up", "distance": 100})
	if err != nil {
		t.Fatal(err)
	}
	if op.OffsetY != -50 || op.ShiftY != 0 {
		t.Errorf("explicit distance: OffsetY = %v, ShiftY = %v", op.OffsetY, op.ShiftY)
	}
}

func TestReverseSamplesBaseBackwards(t *testing.T) {
	engine := testEngine()
	v := &stillVisual{img: gradient(8, 8), duration: 4}
	out := engine.Apply("reverse", v, 4, nil)

	v.calls = nil
	if _, err := out.Frame(1); err != nil {
		t.Fatal(err)
	}
	if len(v.calls) != 1 || v.calls[0] != 3 {
		t.Errorf("base sampled at %v, want [3]", v.calls)
	}
}

func TestGrayscaleUsesLuminanceWeights(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	out := grayscale(img)
	want := uint8(math.Round(0.2989 * 255))
	if out.Pix[0] != want || out.Pix[1] != want || out.Pix[2] != want {
		t.Errorf("grayscale = %v, want %d", out.Pix[:3], want)
	}
	if img.Pix[1] != 0 {
		t.Error("grayscale modified its input")
	}
}

func TestMirrorFlipsHorizontally(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	op, _ := mirror(0, 1, Params{})
	out := render(img, op)

	if out.RGBAAt(0, 0).B != 255 || out.RGBAAt(1, 0).R != 255 {
		t.Errorf("mirror did not swap pixels: %v", out.Pix)
	}
}

func TestRenderNeverModifiesSource(t *testing.T) {
	engine := testEngine()
	src := gradient(32, 18)
	orig := append([]uint8(nil), src.Pix...)

	for _, name := range engine.Names() {
		v := &stillVisual{img: src, duration: 4}
		out := engine.Apply(name, v, 4, nil)
		for _, ts := range []float64{0, 0.3, 1.7, 3.9} {
			frame, err := out.Frame(ts)
			if err != nil {
				t.Fatalf("%s: Frame(%v) error = %v", name, ts, err)
			}
			if w, h := frame.Bounds().Dx(), frame.Bounds().Dy(); w != 32 || h != 18 {
				t.Errorf("%s: frame size %dx%d, want 32x18", name, w, h)
			}
		}
		if !bytes.Equal(src.Pix, orig) {
			t.Fatalf("%s modified the source frame", name)
		}
	}
}

func TestParamsFloat(t *testing.T) {
	p := Params{"a": 2, "b": "1.5", "c": true}
	if v, err := p.Float("a", 0); err != nil || v != 2 {
		t.Errorf("int param: %v, %v", v, err)
	}
	if v, err := p.Float("b", 0); err != nil || v != 1.5 {
		t.Errorf("string param: %v, %v", v, err)
	}
	if _, err := p.Float("c", 0); err == nil {
		t.Error("bool param should be rejected")
	}
	if v, err := p.Float("missing", 7); err != nil || v != 7 {
		t.Errorf("missing param: %v, %v", v, err)
	}
}
