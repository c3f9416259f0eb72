package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
)

// Caption describes a text overlay. The zero value of each field falls back
// to the defaults used by NewCaption.
type Caption struct {
	Text       string
	Vertical   string // top, center, bottom
	Horizontal string // left, center, right
	// VerticalOffset is the distance from the anchored edge as a fraction
	// of the frame height.
	VerticalOffset float64
	// FontSize is the rendered glyph height in pixels.
	FontSize   int
	Color      color.RGBA
	Background *color.RGBA
	Opacity    float64
}

// NewCaption returns a bottom-centred white caption.
func NewCaption(text string) Caption {
	return Caption{
		Text:           text,
		Vertical:       "bottom",
		Horizontal:     "center",
		VerticalOffset: 0.1,
		Color:          color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Opacity:        1,
	}
}

// Empty reports whether the caption has nothing to draw.
func (c Caption) Empty() bool {
	return strings.TrimSpace(c.Text) == ""
}

func (c Caption) withDefaults(frameHeight int) Caption {
	if c.Vertical == "" {
		c.Vertical = "bottom"
	}
	if c.Horizontal == "" {
		c.Horizontal = "center"
	}
	if c.VerticalOffset <= 0 {
		c.VerticalOffset = 0.1
	}
	if c.FontSize <= 0 {
		c.FontSize = frameHeight / 20
	}
	if c.Color == (color.RGBA{}) {
		c.Color = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	if c.Opacity <= 0 || c.Opacity > 1 {
		c.Opacity = 1
	}
	return c
}

// overlay is a pre-rendered layer and its top-left position on the frame.
type overlay struct {
	img *image.RGBA
	at  image.Point
}

// renderCaption rasterizes the caption once for a frame of the given size.
func renderCaption(c Caption, frameW, frameH int) *overlay {
	c = c.withDefaults(frameH)
	factor := float64(c.FontSize) / baseFontHeight
	if factor < 1 {
		factor = 1
	}

	maxWidth := int(float64(frameW) * 0.9 / factor)
	lines := wrap(strings.TrimSpace(c.Text), maxWidth)
	text := scaleText(renderLines(lines, c.Color, color.RGBA{A: 160}), factor)

	img := text
	if c.Background != nil {
		pad := c.FontSize / 3
		tb := text.Bounds()
		img = image.NewRGBA(image.Rect(0, 0, tb.Dx()+2*pad, tb.Dy()+2*pad))
		draw.Draw(img, img.Bounds(), image.NewUniform(*c.Background), image.Point{}, draw.Src)
		draw.Draw(img, tb.Add(image.Pt(pad, pad)), text, tb.Min, draw.Over)
	}
	img = withOpacity(img, c.Opacity)

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	margin := int(float64(frameH) * c.VerticalOffset)

	var x int
	switch c.Horizontal {
	case "left":
		x = frameW / 20
	case "right":
		x = frameW - w - frameW/20
	default:
		x = (frameW - w) / 2
	}

	var y int
	switch c.Vertical {
	case "top":
		y = margin
	case "center":
		y = (frameH - h) / 2
	default:
		y = frameH - h - margin
	}
	return &overlay{img: img, at: image.Pt(x, y)}
}
