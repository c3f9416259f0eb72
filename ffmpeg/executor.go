package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/serisow/craftvid/failure"
)

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      *slog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor. Empty paths resolve through PATH.
func New(logger *slog.Logger, ffmpegPath, ffprobePath string, threads int) *Executor {
	return &Executor{
		logger:      logger.With(slog.String("component", "ffmpeg")),
		ffmpegPath:  orDefault(ffmpegPath, "ffmpeg"),
		ffprobePath: orDefault(ffprobePath, "ffprobe"),
		threads:     threads,
	}
}

// Available reports whether both binaries can be found.
func (e *Executor) Available() error {
	if _, err := exec.LookPath(e.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if _, err := exec.LookPath(e.ffprobePath); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}
	return nil
}

func (e *Executor) baseArgs() []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	return args
}

// Run executes ffmpeg with the given arguments and streams progress. A
// failing process yields an encoding error carrying the tail of stderr.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	args := append(e.baseArgs(), "-nostats", "-progress", "pipe:1")
	args = append(args, opts.Args...)

	e.logger.Debug("Executing ffmpeg", slog.String("args", strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	tail := newTailBuffer(4096)
	cmd.Stderr = tail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return failure.Encoding("failed to start ffmpeg", err)
	}

	// stdout must be drained before Wait closes the pipe.
	streamProgress(stdout, opts)

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failure.Cancelled(ctxErr)
		}
		e.logger.Error("ffmpeg failed",
			slog.Int("exit_code", exitCode(err)),
			slog.String("stderr", tail.String()))
		return failure.Encoding(tail.String(), err)
	}
	return nil
}

// streamProgress parses the key=value blocks written by -progress.
func streamProgress(r io.Reader, opts RunOptions) {
	scanner := bufio.NewScanner(r)
	p := Progress{}

	for scanner.Scan() {
		line := scanner.Text()
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "frame":
			p.Frame, _ = strconv.Atoi(value)
		case "fps":
			p.FPS, _ = strconv.ParseFloat(value, 64)
		case "out_time_us", "out_time_ms":
			// ffmpeg reports microseconds under both keys.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				p.OutTime = float64(us) / 1e6
			}
		case "speed":
			p.Speed = value
		case "progress":
			if opts.Duration > 0 {
				p.Percentage = p.OutTime / opts.Duration * 100
				if p.Percentage > 100 || value == "end" {
					p.Percentage = 100
				}
			}
			if opts.ProgressHandler != nil {
				opts.ProgressHandler(p)
			}
			p = Progress{}
		}
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := strings.TrimSpace(string(t.buf))
	if s == "" {
		return "ffmpeg exited with an error"
	}
	return s
}

// exitCode extracts the process exit code for logging.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
