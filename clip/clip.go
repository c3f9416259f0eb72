package clip

import (
	"errors"
	"io"
	"sync"

	"github.com/serisow/craftvid/effect"
	"github.com/serisow/craftvid/script_type"
)

// AudioTrack is the sound attached to a clip.
type AudioTrack struct {
	Path string
	// Offset skips into the file, in seconds.
	Offset   float64
	Duration float64
}

// Clip is a renderable visual with optional audio. Callers own the clip and
// must Close it on every path.
type Clip interface {
	effect.Visual
	Audio() *AudioTrack
	Close() error
}

// FileBacked is implemented by clips that already exist as an encoded file
// with the final geometry.
type FileBacked interface {
	SourcePath() string
}

// Policy decides how a source with a different aspect ratio is mapped onto
// the output frame.
type Policy string

const (
	// PolicyFit letterboxes onto a solid background.
	PolicyFit Policy = "fit"
	// PolicyFill scales to cover and centre-crops.
	PolicyFill Policy = "fill"
)

// PolicyFor returns the resize policy used for an output format.
func PolicyFor(format script_type.Format) Policy {
	if format == script_type.FormatShorts {
		return PolicyFill
	}
	return PolicyFit
}

type clip struct {
	effect.Visual
	audio     *AudioTrack
	closers   []io.Closer
	closeOnce sync.Once
	closeErr  error
}

// New wraps a visual and its audio into a Clip. closers are released, in
// order, by Close.
func New(visual effect.Visual, audio *AudioTrack, closers ...io.Closer) Clip {
	return &clip{Visual: visual, audio: audio, closers: closers}
}

func (c *clip) Audio() *AudioTrack {
	return c.audio
}

func (c *clip) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for _, cl := range c.closers {
			if cl == nil {
				continue
			}
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// CloseAll closes every clip and returns the joined errors.
func CloseAll(clips []Clip) error {
	var errs []error
	for _, c := range clips {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
