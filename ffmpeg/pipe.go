package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/serisow/craftvid/failure"
)

// EncoderOptions configures a raw-frame encode.
type EncoderOptions struct {
	Encoding Encoding
	// AudioPath is muxed as the audio track; silence is generated when empty.
	AudioPath string
	// AudioOffset skips into the audio input, in seconds.
	AudioOffset float64
	// Duration caps the output. Audio shorter than this is padded.
	Duration float64
	Output   string
}

// Encoder accepts RGBA frames on ffmpeg's stdin.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	tail   *tailBuffer
	width  int
	height int
	logger *slog.Logger
	closed bool
}

func encoderArgs(opts EncoderOptions) []string {
	enc := opts.Encoding
	fps := enc.FPS
	if fps <= 0 {
		fps = 30
	}

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", enc.Width, enc.Height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
	}
	if opts.AudioPath != "" {
		if opts.AudioOffset > 0 {
			args = append(args, "-ss", formatSeconds(opts.AudioOffset))
		}
		args = append(args, "-i", opts.AudioPath)
	} else {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", DefaultAudioRate))
	}

	args = append(args, "-map", "0:v:0", "-map", "1:a:0", "-af", "apad")
	args = append(args, enc.OutputArgs()...)
	if opts.Duration > 0 {
		args = append(args, "-t", formatSeconds(opts.Duration))
	} else {
		args = append(args, "-shortest")
	}
	return append(args, opts.Output)
}

// StartEncoder launches ffmpeg reading raw RGBA frames of the configured
// size from stdin.
func (e *Executor) StartEncoder(ctx context.Context, opts EncoderOptions) (*Encoder, error) {
	if opts.Encoding.Width <= 0 || opts.Encoding.Height <= 0 {
		return nil, fmt.Errorf("encoder requires a frame size")
	}

	args := append(e.baseArgs(), encoderArgs(opts)...)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	tail := newTailBuffer(4096)
	cmd.Stderr = tail

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, failure.Encoding("failed to start ffmpeg encoder", err)
	}

	return &Encoder{
		cmd:    cmd,
		stdin:  stdin,
		tail:   tail,
		width:  opts.Encoding.Width,
		height: opts.Encoding.Height,
		logger: e.logger,
	}, nil
}

// WriteFrame sends one frame. Frames must match the encoder size.
func (enc *Encoder) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != enc.width || b.Dy() != enc.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), enc.width, enc.height)
	}

	rowLen := enc.width * 4
	if img.Stride == rowLen {
		start := img.PixOffset(b.Min.X, b.Min.Y)
		if _, err := enc.stdin.Write(img.Pix[start : start+rowLen*enc.height]); err != nil {
			return failure.Encoding(enc.tail.String(), err)
		}
		return nil
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		if _, err := enc.stdin.Write(img.Pix[start : start+rowLen]); err != nil {
			return failure.Encoding(enc.tail.String(), err)
		}
	}
	return nil
}

// Close flushes stdin and waits for ffmpeg to finish writing the output.
func (enc *Encoder) Close() error {
	if enc.closed {
		return nil
	}
	enc.closed = true
	enc.stdin.Close()
	if err := enc.cmd.Wait(); err != nil {
		enc.logger.Error("ffmpeg encoder failed",
			slog.Int("exit_code", exitCode(err)),
			slog.String("stderr", enc.tail.String()))
		return failure.Encoding(enc.tail.String(), err)
	}
	return nil
}

// Abort stops the encoder without waiting for a complete output.
func (enc *Encoder) Abort() {
	if enc.closed {
		return
	}
	enc.closed = true
	enc.stdin.Close()
	if enc.cmd.Process != nil {
		enc.cmd.Process.Kill()
	}
	enc.cmd.Wait()
}

// DecoderOptions configures a raw-frame decode.
type DecoderOptions struct {
	Input  string
	Start  float64
	Width  int
	Height int
	FPS    int
	// Filter is the -vf chain producing Width x Height frames.
	Filter string
}

// Decoder reads RGBA frames from ffmpeg's stdout.
type Decoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	tail   *tailBuffer
	width  int
	height int
}

func decoderArgs(opts DecoderOptions) []string {
	args := []string{}
	if opts.Start > 0 {
		args = append(args, "-ss", formatSeconds(opts.Start))
	}
	args = append(args, "-i", opts.Input, "-an")
	filter := opts.Filter
	if filter == "" {
		filter = NewFilterBuilder().Scale(opts.Width, opts.Height).Build()
	}
	if opts.FPS > 0 {
		filter = NewFilterBuilder().Custom(filter).FPS(opts.FPS).Build()
	}
	args = append(args, "-vf", filter, "-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")
	return args
}

func (e *Executor) StartDecoder(ctx context.Context, opts DecoderOptions) (*Decoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("decoder requires a frame size")
	}
	args := append([]string{"-hide_banner", "-loglevel", "error"}, decoderArgs(opts)...)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	tail := newTailBuffer(2048)
	cmd.Stderr = tail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg decoder: %w", err)
	}
	return &Decoder{cmd: cmd, stdout: stdout, tail: tail, width: opts.Width, height: opts.Height}, nil
}

// ReadFrame reads the next frame. io.EOF marks the end of the stream.
func (d *Decoder) ReadFrame() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	if _, err := io.ReadFull(d.stdout, img.Pix); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return img, nil
}

func (d *Decoder) Close() error {
	d.stdout.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	return nil
}

// ExtractFrame writes a single frame at the given time to output.
func (e *Executor) ExtractFrame(ctx context.Context, input string, at float64, output string) error {
	return e.Run(ctx, RunOptions{Args: []string{
		"-ss", formatSeconds(at),
		"-i", input,
		"-frames:v", "1",
		output,
	}})
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
