package compositor

import (
	"image"
	"image/draw"
	"log/slog"

	"github.com/serisow/craftvid/clip"
)

// Compositor layers captions and watermarks over scene clips.
type Compositor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Compositor {
	return &Compositor{logger: logger}
}

// Compose returns c with the caption and watermark drawn on every frame,
// watermark topmost. An empty caption and a nil watermark are skipped; with
// neither, c is returned as is. The returned clip takes ownership of c.
// The watermark stays owned by the caller. On error c is closed.
func (cp *Compositor) Compose(c clip.Clip, caption Caption, wm *Watermark) (clip.Clip, error) {
	w, h := c.Size()

	var layers []*overlay
	if !caption.Empty() {
		layers = append(layers, renderCaption(caption, w, h))
	}
	if wm != nil {
		layer, err := wm.render(w, h)
		if err != nil {
			c.Close()
			return nil, err
		}
		layers = append(layers, layer)
	}
	if len(layers) == 0 {
		return c, nil
	}

	cp.logger.Debug("Compositing scene overlays",
		slog.Int("layers", len(layers)),
		slog.Bool("caption", !caption.Empty()),
		slog.Bool("watermark", wm != nil))

	return clip.New(&layered{base: c, layers: layers}, c.Audio(), c), nil
}

type layered struct {
	base   clip.Clip
	layers []*overlay
}

func (l *layered) Duration() float64 { return l.base.Duration() }

func (l *layered) Size() (int, int) { return l.base.Size() }

func (l *layered) Frame(t float64) (*image.RGBA, error) {
	src, err := l.base.Frame(t)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	for _, layer := range l.layers {
		r := layer.img.Bounds()
		draw.Draw(out, r.Sub(r.Min).Add(layer.at), layer.img, r.Min, draw.Over)
	}
	return out, nil
}
