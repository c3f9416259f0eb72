package effect

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

func grayscale(src *image.RGBA) *image.RGBA {
	dst := cloneRGBA(src)
	eachPixel(dst, func(p []uint8) {
		l := 0.2989*float64(p[0]) + 0.5870*float64(p[1]) + 0.1140*float64(p[2])
		v := uint8(clampFloat(math.Round(l), 0, 255))
		p[0], p[1], p[2] = v, v, v
	})
	return dst
}

func sepia(src *image.RGBA) *image.RGBA {
	dst := cloneRGBA(src)
	eachPixel(dst, func(p []uint8) {
		r, g, b := float64(p[0]), float64(p[1]), float64(p[2])
		p[0] = uint8(clampFloat(0.393*r+0.769*g+0.189*b, 0, 255))
		p[1] = uint8(clampFloat(0.349*r+0.686*g+0.168*b, 0, 255))
		p[2] = uint8(clampFloat(0.272*r+0.534*g+0.131*b, 0, 255))
	})
	return dst
}

func colorMultiply(factor float64) PixelFunc {
	return func(src *image.RGBA) *image.RGBA {
		dst := cloneRGBA(src)
		eachPixel(dst, func(p []uint8) {
			for c := 0; c < 3; c++ {
				p[c] = uint8(clampFloat(math.Round(float64(p[c])*factor), 0, 255))
			}
		})
		return dst
	}
}

// boxBlur runs a separable box blur of the given radius.
func boxBlur(radius int) PixelFunc {
	return func(src *image.RGBA) *image.RGBA {
		if radius < 1 {
			return cloneRGBA(src)
		}
		tmp := cloneRGBA(src)
		w, h := tmp.Bounds().Dx(), tmp.Bounds().Dy()
		out := image.NewRGBA(tmp.Bounds())

		blurPass(tmp, out, w, h, radius, true)
		blurPass(out, tmp, w, h, radius, false)
		return tmp
	}
}

func blurPass(src, dst *image.RGBA, w, h, radius int, horizontal bool) {
	lines, length := h, w
	if !horizontal {
		lines, length = w, h
	}
	at := func(line, i int) int {
		if horizontal {
			return src.PixOffset(i, line)
		}
		return src.PixOffset(line, i)
	}

	window := float64(2*radius + 1)
	for line := 0; line < lines; line++ {
		var sum [4]float64
		for i := -radius; i <= radius; i++ {
			o := at(line, clampInt(i, 0, length-1))
			for c := 0; c < 4; c++ {
				sum[c] += float64(src.Pix[o+c])
			}
		}
		for i := 0; i < length; i++ {
			o := at(line, i)
			for c := 0; c < 4; c++ {
				dst.Pix[o+c] = uint8(math.Round(sum[c] / window))
			}
			out := at(line, clampInt(i-radius, 0, length-1))
			in := at(line, clampInt(i+radius+1, 0, length-1))
			for c := 0; c < 4; c++ {
				sum[c] += float64(src.Pix[in+c]) - float64(src.Pix[out+c])
			}
		}
	}
}

func vignette(intensity float64) PixelFunc {
	return func(src *image.RGBA) *image.RGBA {
		dst := cloneRGBA(src)
		w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
		cx, cy := float64(w)/2, float64(h)/2
		maxD := cx*cx + cy*cy
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
				f := clampFloat(1-intensity*(dx*dx+dy*dy)/maxD, 0, 1)
				i := dst.PixOffset(x, y)
				for c := 0; c < 3; c++ {
					dst.Pix[i+c] = uint8(math.Round(float64(dst.Pix[i+c]) * f))
				}
			}
		}
		return dst
	}
}

// pixelate downsamples to the given number of horizontal blocks and scales
// back with nearest-neighbour sampling.
func pixelate(blocks int) PixelFunc {
	return func(src *image.RGBA) *image.RGBA {
		w, h := src.Bounds().Dx(), src.Bounds().Dy()
		if blocks < 1 || blocks >= w {
			return cloneRGBA(src)
		}
		bh := blocks * h / w
		if bh < 1 {
			bh = 1
		}
		small := resize.Resize(uint(blocks), uint(bh), src, resize.Bilinear)
		return toRGBA(resize.Resize(uint(w), uint(h), small, resize.NearestNeighbor))
	}
}

// ripple shifts each row horizontally along a sine wave travelling with t.
func ripple(intensity, t float64) PixelFunc {
	return func(src *image.RGBA) *image.RGBA {
		w, h := src.Bounds().Dx(), src.Bounds().Dy()
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		amplitude := 20 * intensity
		for y := 0; y < h; y++ {
			shift := int(math.Round(amplitude * math.Sin(2*math.Pi*(float64(y)/100+t))))
			for x := 0; x < w; x++ {
				si := src.PixOffset(src.Bounds().Min.X+mod(x-shift, w), src.Bounds().Min.Y+y)
				di := dst.PixOffset(x, y)
				copy(dst.Pix[di:di+4], src.Pix[si:si+4])
			}
		}
		return dst
	}
}
