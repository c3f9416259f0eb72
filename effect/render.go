package effect

import (
	"image"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

func (op Op) geometric() bool {
	scale := op.Scale
	return (scale != 0 && scale != 1) || op.OffsetX != 0 || op.OffsetY != 0 ||
		op.ShiftX != 0 || op.ShiftY != 0 ||
		op.Rotate != 0 || op.FlipH || op.FlipV
}

// offset is the total translation in pixels for a w x h frame.
func (op Op) offset(w, h int) (float64, float64) {
	return op.OffsetX + op.ShiftX*float64(w), op.OffsetY + op.ShiftY*float64(h)
}

// render applies op to src. src is never modified; when op is the identity
// src itself is returned.
func render(src *image.RGBA, op Op) *image.RGBA {
	out := src
	owned := false

	if op.geometric() {
		out = transform(out, op)
		owned = true
	}
	if op.Pixel != nil {
		out = op.Pixel(out)
		owned = true
	}
	if op.Opacity < 1 || op.Flash > 0 {
		if !owned {
			out = cloneRGBA(out)
		}
		blend(out, op.Opacity, op.Flash)
	}
	return out
}

func transform(src *image.RGBA, op Op) *image.RGBA {
	if op.Scale > 1 && op.Rotate == 0 && !op.FlipH && !op.FlipV && op.Border != BorderWrap {
		return zoomCrop(src, op)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	scale := op.Scale
	if scale <= 0 {
		scale = 1
	}
	cx, cy := float64(w)/2, float64(h)/2
	offX, offY := op.offset(w, h)
	rad := op.Rotate * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			u := float64(x) + 0.5 - cx - offX
			v := float64(y) + 0.5 - cy - offY
			ru := (u*cos + v*sin) / scale
			rv := (-u*sin + v*cos) / scale
			if op.FlipH {
				ru = -ru
			}
			if op.FlipV {
				rv = -rv
			}
			sx := int(math.Floor(ru + cx))
			sy := int(math.Floor(rv + cy))

			switch op.Border {
			case BorderWrap:
				sx = mod(sx, w)
				sy = mod(sy, h)
			case BorderClamp:
				sx = clampInt(sx, 0, w-1)
				sy = clampInt(sy, 0, h-1)
			default:
				if sx < 0 || sy < 0 || sx >= w || sy >= h {
					dst.Pix[dst.PixOffset(x, y)+3] = 255
					continue
				}
			}

			si := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// zoomCrop scales the frame up and crops a frame-sized window around the
// centre shifted by the op offset.
func zoomCrop(src *image.RGBA, op Op) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	sw := int(math.Round(float64(w) * op.Scale))
	sh := int(math.Round(float64(h) * op.Scale))
	scaled := toRGBA(resize.Resize(uint(sw), uint(sh), src, resize.Bilinear))

	sb := scaled.Bounds()
	offX, offY := op.offset(w, h)
	x0 := (sb.Dx()-w)/2 - int(math.Round(offX))
	y0 := (sb.Dy()-h)/2 - int(math.Round(offY))
	x0 = clampInt(x0, 0, sb.Dx()-w)
	y0 = clampInt(y0, 0, sb.Dy()-h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), scaled, sb.Min.Add(image.Pt(x0, y0)), draw.Src)
	return dst
}

func blend(img *image.RGBA, opacity, flash float64) {
	opacity = clampFloat(opacity, 0, 1)
	flash = clampFloat(flash, 0, 1)
	eachPixel(img, func(p []uint8) {
		for c := 0; c < 3; c++ {
			v := float64(p[c]) * opacity
			v += (255 - v) * flash
			p[c] = uint8(clampFloat(math.Round(v), 0, 255))
		}
	})
}

// toRGBA converts any image to an *image.RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func eachPixel(img *image.RGBA, fn func(p []uint8)) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			i := row + x*4
			fn(img.Pix[i : i+4 : i+4])
		}
	}
}

func mod(a, n int) int {
	if n == 0 {
		return 0
	}
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
