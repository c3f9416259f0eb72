package effect

import (
	"fmt"
	"math"
)

type builtin struct {
	name        string
	description string
	// duration is nil for effects that keep the source duration.
	duration func(src float64, p Params) (float64, error)
	at       func(t, d float64, p Params) (Op, error)
}

func (b *builtin) Name() string        { return b.name }
func (b *builtin) Description() string { return b.description }

func (b *builtin) Duration(src float64, p Params) (float64, error) {
	if b.duration == nil {
		return src, nil
	}
	return b.duration(src, p)
}

func (b *builtin) At(t, d float64, p Params) (Op, error) {
	return b.at(t, d, p)
}

func builtins() []Effect {
	return []Effect{
		&builtin{name: "ken_burns", description: "slow zoom with a subtle pan and soft fades", at: kenBurns},
		&builtin{name: "fade", description: "fade in from and out to black", at: fade},
		&builtin{name: "mirror", description: "mirror the frame horizontally or vertically", at: mirror},
		&builtin{name: "rotate", description: "rotate the frame by a fixed angle", at: rotate},
		&builtin{name: "pulse", description: "rhythmic zoom in and out", at: pulse},
		&builtin{name: "slide", description: "scroll the frame with wrap-around", at: slide},
		&builtin{name: "zoom", description: "continuous zoom in or out", at: zoom},
		&builtin{name: "zoom_bounce", description: "zoom that bounces back and forth", at: zoomBounce},
		&builtin{name: "shake", description: "camera shake", at: shake},
		&builtin{name: "grayscale", description: "black and white", at: pixelOnly(func(float64, Params) (PixelFunc, error) { return grayscale, nil })},
		&builtin{name: "sepia", description: "sepia tone", at: pixelOnly(func(float64, Params) (PixelFunc, error) { return sepia, nil })},
		&builtin{name: "color", description: "scale colour intensity", at: pixelOnly(colorFx)},
		&builtin{name: "blur", description: "box blur", at: pixelOnly(blurFx)},
		&builtin{name: "vignette", description: "darken the frame edges", at: pixelOnly(vignetteFx)},
		&builtin{name: "pixelate", description: "blocky mosaic", at: pixelOnly(pixelateFx)},
		&builtin{name: "ripple", description: "horizontal wave distortion", at: pixelOnly(rippleFx)},
		&builtin{name: "flash", description: "pulsing white flashes", at: flash},
		&builtin{name: "speed", description: "play faster or slower", duration: speedDuration, at: speedAt},
		&builtin{name: "loop", description: "repeat the clip", duration: loopDuration, at: loopAt},
		&builtin{name: "reverse", description: "play backwards", at: reverse},
		&builtin{name: "time_mirror", description: "play forwards then backwards", at: timeMirror},
	}
}

// fadeEnvelope returns the opacity at t for fades covering fadeIn and
// fadeOut fractions of d.
func fadeEnvelope(t, d, fadeIn, fadeOut float64) float64 {
	o := 1.0
	if in := fadeIn * d; in > 0 && t < in {
		o = math.Min(o, t/in)
	}
	if out := fadeOut * d; out > 0 && t > d-out {
		o = math.Min(o, (d-t)/out)
	}
	return clampFloat(o, 0, 1)
}

func fraction(p Params, key string, def float64) (float64, error) {
	f, err := p.Float(key, def)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("param %q: %v must be between 0 and 1", key, f)
	}
	return f, nil
}

func kenBurns(t, d float64, p Params) (Op, error) {
	ratio, err := p.Float("zoom_ratio", 0.1)
	if err != nil {
		return Op{}, err
	}
	pan, err := p.Float("pan", 10)
	if err != nil {
		return Op{}, err
	}
	fades, err := fraction(p, "fade", 0.1)
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	op.Scale = 1 + ratio*t/d
	op.OffsetX = pan * math.Sin(2*math.Pi*t/d)
	op.OffsetY = pan * math.Cos(2*math.Pi*t/d)
	op.Border = BorderClamp
	op.Opacity = fadeEnvelope(t, d, fades, fades)
	return op, nil
}

func fade(t, d float64, p Params) (Op, error) {
	in, err := fraction(p, "fade_in", 0.2)
	if err != nil {
		return Op{}, err
	}
	out, err := fraction(p, "fade_out", 0.2)
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	op.Opacity = fadeEnvelope(t, d, in, out)
	return op, nil
}

func mirror(t, d float64, p Params) (Op, error) {
	dir, err := p.oneOf("direction", "horizontal", "horizontal", "vertical")
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	op.FlipH = dir == "horizontal"
	op.FlipV = dir == "vertical"
	return op, nil
}

func rotate(t, d float64, p Params) (Op, error) {
	angle, err := p.Float("angle", 90)
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	op.Rotate = math.Mod(angle, 360)
	return op, nil
}

func pulse(t, d float64, p Params) (Op, error) {
	amplitude, err := p.Float("amplitude", 0.05)
	if err != nil {
		return Op{}, err
	}
	period, err := p.Float("period", 2)
	if err != nil {
		return Op{}, err
	}
	if period <= 0 {
		return Op{}, fmt.Errorf("param %q must be positive", "period")
	}
	op := Identity(t)
	op.Scale = 1 + amplitude*math.Sin(2*math.Pi*t/period)
	op.Border = BorderClamp
	return op, nil
}

// slide rolls the frame once across its full size over the clip, or by
// distance pixels when that parameter is set.
func slide(t, d float64, p Params) (Op, error) {
	dir, err := p.oneOf("direction", "left", "left", "right", "up", "down")
	if err != nil {
		return Op{}, err
	}
	distance, err := p.Float("distance", 0)
	if err != nil {
		return Op{}, err
	}

	progress := t / d
	op := Identity(t)
	op.Border = BorderWrap
	x, y := &op.ShiftX, &op.ShiftY
	if distance != 0 {
		progress *= distance
		x, y = &op.OffsetX, &op.OffsetY
	}
	switch dir {
	case "left":
		*x = -progress
	case "right":
		*x = progress
	case "up":
		*y = -progress
	case "down":
		*y = progress
	}
	return op, nil
}

func zoom(t, d float64, p Params) (Op, error) {
	dir, err := p.oneOf("direction", "in", "in", "out")
	if err != nil {
		return Op{}, err
	}
	ratio, err := p.Float("zoom_ratio", 0.5)
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	progress := t / d
	if dir == "out" {
		progress = 1 - progress
	}
	op.Scale = 1 + ratio*progress
	return op, nil
}

func zoomBounce(t, d float64, p Params) (Op, error) {
	ratio, err := p.Float("zoom_ratio", 0.1)
	if err != nil {
		return Op{}, err
	}
	bounces, err := p.Float("bounces", 2)
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	op.Scale = 1 + ratio*math.Abs(math.Sin(math.Pi*bounces*t/d))
	return op, nil
}

func shake(t, d float64, p Params) (Op, error) {
	intensity, err := p.Float("intensity", 5)
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	op.OffsetX = intensity * math.Sin(2*math.Pi*13*t)
	op.OffsetY = intensity * math.Cos(2*math.Pi*17*t)
	op.Border = BorderClamp
	return op, nil
}

func flash(t, d float64, p Params) (Op, error) {
	frequency, err := p.Float("frequency", 1)
	if err != nil {
		return Op{}, err
	}
	strength, err := fraction(p, "strength", 0.5)
	if err != nil {
		return Op{}, err
	}
	op := Identity(t)
	op.Flash = strength * math.Abs(math.Sin(math.Pi*frequency*t))
	return op, nil
}

func pixelOnly(build func(t float64, p Params) (PixelFunc, error)) func(t, d float64, p Params) (Op, error) {
	return func(t, d float64, p Params) (Op, error) {
		fn, err := build(t, p)
		if err != nil {
			return Op{}, err
		}
		op := Identity(t)
		op.Pixel = fn
		return op, nil
	}
}

func colorFx(t float64, p Params) (PixelFunc, error) {
	factor, err := p.Float("factor", 1.5)
	if err != nil {
		return nil, err
	}
	if factor < 0 {
		return nil, fmt.Errorf("param %q must not be negative", "factor")
	}
	return colorMultiply(factor), nil
}

func blurFx(t float64, p Params) (PixelFunc, error) {
	radius, err := p.Int("radius", 5)
	if err != nil {
		return nil, err
	}
	return boxBlur(radius), nil
}

func vignetteFx(t float64, p Params) (PixelFunc, error) {
	intensity, err := fraction(p, "intensity", 0.5)
	if err != nil {
		return nil, err
	}
	return vignette(intensity), nil
}

func pixelateFx(t float64, p Params) (PixelFunc, error) {
	blocks, err := p.Int("blocks", 20)
	if err != nil {
		return nil, err
	}
	return pixelate(blocks), nil
}

func rippleFx(t float64, p Params) (PixelFunc, error) {
	intensity, err := p.Float("intensity", 0.5)
	if err != nil {
		return nil, err
	}
	return ripple(intensity, t), nil
}

func speedFactor(p Params) (float64, error) {
	factor, err := p.Float("factor", 1.5)
	if err != nil {
		return 0, err
	}
	if factor <= 0 {
		return 0, fmt.Errorf("param %q must be positive", "factor")
	}
	return factor, nil
}

func speedDuration(src float64, p Params) (float64, error) {
	factor, err := speedFactor(p)
	if err != nil {
		return 0, err
	}
	return src / factor, nil
}

func speedAt(t, d float64, p Params) (Op, error) {
	factor, err := speedFactor(p)
	if err != nil {
		return Op{}, err
	}
	return Identity(t * factor), nil
}

func loopCount(p Params) (int, error) {
	n, err := p.Int("n_loops", 2)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("param %q must be at least 1", "n_loops")
	}
	return n, nil
}

func loopDuration(src float64, p Params) (float64, error) {
	n, err := loopCount(p)
	if err != nil {
		return 0, err
	}
	return src * float64(n), nil
}

func loopAt(t, d float64, p Params) (Op, error) {
	n, err := loopCount(p)
	if err != nil {
		return Op{}, err
	}
	return Identity(math.Mod(t, d/float64(n))), nil
}

func reverse(t, d float64, p Params) (Op, error) {
	return Identity(d - t), nil
}

// timeMirror plays the whole source at double speed, then backwards.
func timeMirror(t, d float64, p Params) (Op, error) {
	if t < d/2 {
		return Identity(2 * t), nil
	}
	return Identity(d - (t-d/2)*2), nil
}
