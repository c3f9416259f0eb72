package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/nfnt/resize"
	"github.com/serisow/craftvid/clip"
	"github.com/serisow/craftvid/script_type"
)

// Position anchors a watermark on the frame.
type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
	Center      Position = "center"
)

// Padding is the distance in pixels between a watermark and the frame edge.
const Padding = 20

const (
	DefaultOpacity   = 0.7
	DefaultSizeRatio = 0.15
	defaultBrand     = "CraftVid"
)

// ParsePosition normalizes a position name. Unknown names fall back to
// bottom-right.
func ParsePosition(s string) Position {
	switch p := Position(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))); p {
	case TopLeft, TopRight, BottomLeft, BottomRight, Center:
		return p
	}
	return BottomRight
}

// Anchor returns the top-left corner of a w x h overlay on a frameW x frameH
// frame.
func (p Position) Anchor(frameW, frameH, w, h int) image.Point {
	switch p {
	case TopLeft:
		return image.Pt(Padding, Padding)
	case TopRight:
		return image.Pt(frameW-w-Padding, Padding)
	case BottomLeft:
		return image.Pt(Padding, frameH-h-Padding)
	case Center:
		return image.Pt((frameW-w)/2, (frameH-h)/2)
	default:
		return image.Pt(frameW-w-Padding, frameH-h-Padding)
	}
}

// Source records where a watermark image came from.
type Source string

const (
	SourceExplicit    Source = "explicit"
	SourceChannelLogo Source = "channel_logo"
	SourceText        Source = "text"
)

// Watermark is a resolved watermark image plus its placement. A watermark
// synthesized from text owns a temp file that Close removes; callers defer
// Close on every path.
type Watermark struct {
	Path      string
	Position  Position
	Opacity   float64
	SizeRatio float64
	Source    Source

	temp bool
}

// Close removes the synthesized image, if any. It is safe to call on nil.
func (w *Watermark) Close() error {
	if w == nil || !w.temp {
		return nil
	}
	w.temp = false
	if err := os.Remove(w.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temporary watermark %s: %w", w.Path, err)
	}
	return nil
}

// Width returns the watermark width for a frame of the given width.
func (w *Watermark) Width(frameWidth int) int {
	width := int(float64(frameWidth) * w.SizeRatio)
	if width < 1 {
		width = 1
	}
	return width
}

// render loads and scales the watermark for a frame, with opacity applied.
func (w *Watermark) render(frameW, frameH int) (*overlay, error) {
	src, err := clip.LoadImage(w.Path)
	if err != nil {
		return nil, err
	}
	width := w.Width(frameW)
	sb := src.Bounds()
	height := int(float64(width) * float64(sb.Dy()) / float64(sb.Dx()))
	if height < 1 {
		height = 1
	}
	scaled := toRGBA(resize.Resize(uint(width), uint(height), src, resize.Lanczos3))
	return &overlay{
		img: withOpacity(scaled, w.Opacity),
		at:  w.Position.Anchor(frameW, frameH, width, height),
	}, nil
}

// Resolver picks the watermark image for a render.
type Resolver struct {
	logger  *slog.Logger
	tempDir string
}

func NewResolver(logger *slog.Logger, tempDir string) *Resolver {
	return &Resolver{logger: logger, tempDir: tempDir}
}

// Resolve applies the precedence explicit path > channel logo > synthesized
// text. It returns nil when cfg is disabled.
func (r *Resolver) Resolve(cfg script_type.WatermarkConfig, channel *script_type.Channel) (*Watermark, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	wm := &Watermark{
		Position:  ParsePosition(cfg.Position),
		Opacity:   DefaultOpacity,
		SizeRatio: cfg.SizeRatio,
	}
	if cfg.Opacity != nil {
		wm.Opacity = math.Min(math.Max(*cfg.Opacity, 0), 1)
	}
	if wm.SizeRatio <= 0 || wm.SizeRatio > 1 {
		wm.SizeRatio = DefaultSizeRatio
	}

	if cfg.Path != "" {
		if fileExists(cfg.Path) {
			wm.Path, wm.Source = cfg.Path, SourceExplicit
			return wm, nil
		}
		r.logger.Warn("Watermark file not found, falling back", slog.String("path", cfg.Path))
	}

	if channel != nil && channel.LogoPath != "" {
		if fileExists(channel.LogoPath) {
			wm.Path, wm.Source = channel.LogoPath, SourceChannelLogo
			return wm, nil
		}
		r.logger.Warn("Channel logo not found, using text watermark",
			slog.String("channel_id", channel.ID),
			slog.String("path", channel.LogoPath))
	}

	text := defaultBrand
	if channel != nil && strings.TrimSpace(channel.Name) != "" {
		text = strings.TrimSpace(channel.Name)
	}
	path, err := r.writeTextWatermark(text)
	if err != nil {
		return nil, err
	}
	wm.Path, wm.Source, wm.temp = path, SourceText, true
	r.logger.Info("Created text watermark", slog.String("path", path), slog.String("text", text))
	return wm, nil
}

// writeTextWatermark renders text centred on a transparent 400x100 PNG.
func (r *Resolver) writeTextWatermark(text string) (string, error) {
	const canvasW, canvasH = 400, 100

	glyphs := renderLines([]string{text}, color.RGBA{R: 255, G: 255, B: 255, A: 200}, color.RGBA{A: 128})
	gb := glyphs.Bounds()
	factor := float64(canvasH) * 0.5 / float64(gb.Dy())
	if fit := float64(canvasW) * 0.9 / float64(gb.Dx()); fit < factor {
		factor = fit
	}
	scaled := scaleText(glyphs, factor)
	sb := scaled.Bounds()

	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	at := image.Pt((canvasW-sb.Dx())/2, (canvasH-sb.Dy())/2)
	draw.Draw(canvas, sb.Sub(sb.Min).Add(at), scaled, sb.Min, draw.Over)

	f, err := os.CreateTemp(r.tempDir, "watermark-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create watermark file: %w", err)
	}
	if err := png.Encode(f, canvas); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to encode watermark: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write watermark: %w", err)
	}
	return f.Name(), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
