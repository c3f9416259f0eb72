package clip

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/nfnt/resize"
	"github.com/serisow/craftvid/effect"
	_ "golang.org/x/image/webp"
)

// LoadImage decodes png, jpeg, gif and webp files.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// Resize maps src onto a width x height frame. Smaller sources are
// upscaled; aspect mismatches are letterboxed on bg (fit) or centre-cropped
// (fill).
func Resize(src image.Image, width, height int, policy Policy, bg color.Color) *image.RGBA {
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if sw == 0 || sh == 0 {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
		return dst
	}

	scale := math.Min(float64(width)/sw, float64(height)/sh)
	if policy == PolicyFill {
		scale = math.Max(float64(width)/sw, float64(height)/sh)
	}
	rw := int(math.Round(sw * scale))
	rh := int(math.Round(sh * scale))
	if rw < 1 {
		rw = 1
	}
	if rh < 1 {
		rh = 1
	}

	var scaled image.Image = src
	if rw != sb.Dx() || rh != sb.Dy() {
		scaled = resize.Resize(uint(rw), uint(rh), src, resize.Lanczos3)
	}
	rb := scaled.Bounds()

	if policy == PolicyFill {
		offset := image.Pt((rb.Dx()-width)/2, (rb.Dy()-height)/2)
		draw.Draw(dst, dst.Bounds(), scaled, rb.Min.Add(offset), draw.Src)
		return dst
	}

	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	at := image.Pt((width-rb.Dx())/2, (height-rb.Dy())/2)
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(rb.Size())}, scaled, rb.Min, draw.Over)
	return dst
}

// still is a visual that shows the same frame for its whole duration.
type still struct {
	frame    *image.RGBA
	duration float64
}

func (s *still) Duration() float64 { return s.duration }

func (s *still) Size() (int, int) { return s.frame.Bounds().Dx(), s.frame.Bounds().Dy() }

func (s *still) Frame(float64) (*image.RGBA, error) { return s.frame, nil }

// NewStill returns a visual showing frame for duration seconds.
func NewStill(frame *image.RGBA, duration float64) effect.Visual {
	return &still{frame: frame, duration: duration}
}
