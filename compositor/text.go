package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// baseFontHeight is the pixel height of basicfont.Face7x13.
const baseFontHeight = 13

var face = basicfont.Face7x13

// textWidth returns the unscaled advance of s.
func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// wrap splits text into lines no wider than maxWidth unscaled pixels.
// Words longer than a line are kept whole.
func wrap(text string, maxWidth int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if textWidth(candidate) > maxWidth {
				lines = append(lines, line)
				line = w
				continue
			}
			line = candidate
		}
		lines = append(lines, line)
	}
	return lines
}

// renderLines draws lines centred on a transparent canvas at the native
// font size, optionally with a 1px drop shadow.
func renderLines(lines []string, fg color.Color, shadow color.Color) *image.RGBA {
	width := 0
	for _, l := range lines {
		if w := textWidth(l); w > width {
			width = w
		}
	}
	lineHeight := baseFontHeight + 2
	img := image.NewRGBA(image.Rect(0, 0, width+2, lineHeight*len(lines)+2))

	d := &font.Drawer{Dst: img, Face: face}
	for i, l := range lines {
		x := (width - textWidth(l)) / 2
		baseline := lineHeight*i + face.Ascent + 1
		if shadow != nil {
			d.Src = image.NewUniform(shadow)
			d.Dot = fixed.P(x+1, baseline+1)
			d.DrawString(l)
		}
		d.Src = image.NewUniform(fg)
		d.Dot = fixed.P(x, baseline)
		d.DrawString(l)
	}
	return img
}

// scaleText enlarges a native-size text image by factor. Nearest-neighbour
// keeps the bitmap glyph edges crisp.
func scaleText(img *image.RGBA, factor float64) *image.RGBA {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w := uint(float64(b.Dx()) * factor)
	h := uint(float64(b.Dy()) * factor)
	return toRGBA(resize.Resize(w, h, img, resize.NearestNeighbor))
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// withOpacity scales every alpha (and premultiplied colour) by opacity.
func withOpacity(img *image.RGBA, opacity float64) *image.RGBA {
	if opacity >= 1 {
		return img
	}
	if opacity < 0 {
		opacity = 0
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:b.Dx()*4]
		dst := out.Pix[out.PixOffset(0, y):][:b.Dx()*4]
		for i, v := range src {
			dst[i] = uint8(float64(v)*opacity + 0.5)
		}
	}
	return out
}
