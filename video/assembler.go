package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/serisow/craftvid/clip"
	"github.com/serisow/craftvid/compositor"
	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/ffmpeg"
	"github.com/serisow/craftvid/script_type"
)

// Assembler concatenates clips into the final timeline.
type Assembler struct {
	logger   *slog.Logger
	runner   Runner
	prober   Prober
	renderer *Renderer
	tempDir  string
}

func NewAssembler(logger *slog.Logger, runner Runner, prober Prober, renderer *Renderer, tempDir string) *Assembler {
	return &Assembler{
		logger:   logger,
		runner:   runner,
		prober:   prober,
		renderer: renderer,
		tempDir:  tempDir,
	}
}

// input is one timeline entry handed to ffmpeg.
type input struct {
	path     string
	duration float64
	hasAudio bool
}

// Assemble concatenates clips in order, mixes in the background track and
// overlays the watermark. Every clip is closed before Assemble returns, and
// intermediate files are removed. The output is written to a temporary file
// and renamed into place only on success.
func (a *Assembler) Assemble(ctx context.Context, clips []clip.Clip, background string, p Params) (*Result, error) {
	defer func() {
		if err := clip.CloseAll(clips); err != nil {
			a.logger.Warn("Failed to close clips", slog.String("error", err.Error()))
		}
	}()

	if len(clips) == 0 {
		return nil, stageError(StageAssemble, errors.New("no clips to assemble"))
	}
	if p.OutputPath == "" {
		return nil, stageError(StageAssemble, errors.New("no output path"))
	}
	enc := p.Preset.Encoding(p.Format)
	if enc.Width <= 0 || enc.Height <= 0 {
		return nil, stageError(StageAssemble, fmt.Errorf("preset %q has no resolution", p.Preset.Name))
	}

	workDir, err := os.MkdirTemp(a.tempDir, "assemble-*")
	if err != nil {
		return nil, stageError(StageAssemble, fmt.Errorf("failed to create work directory: %w", err))
	}
	defer os.RemoveAll(workDir)

	inputs, err := a.collectInputs(ctx, clips, enc, workDir, p)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, in := range inputs {
		total += in.duration
	}

	var plan []Segment
	if background != "" {
		if _, err := os.Stat(background); err != nil {
			return nil, stageError(StageAssemble, failure.MissingInput(background))
		}
		info, err := a.prober.Probe(ctx, background)
		if err != nil {
			return nil, stageError(StageAssemble, failure.Encoding("unreadable background audio", err))
		}
		plan = BackgroundPlan(info.Duration, total)
	}

	if err := os.MkdirAll(filepath.Dir(p.OutputPath), 0755); err != nil {
		return nil, stageError(StageFinalize, fmt.Errorf("failed to create output directory: %w", err))
	}
	tmp, err := tempOutput(p.OutputPath)
	if err != nil {
		return nil, stageError(StageFinalize, err)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	args := assembleArgs(inputs, enc, p.Format, background, plan, p.Watermark, p.BackgroundVolume, total, tmp)

	a.logger.Info("Assembling timeline",
		slog.Int("inputs", len(inputs)),
		slog.Float64("duration", total),
		slog.String("preset", p.Preset.Name),
		slog.String("format", string(p.Format)),
		slog.Bool("background", len(plan) > 0),
		slog.Bool("watermark", p.Watermark != nil))

	err = a.runner.Run(ctx, ffmpeg.RunOptions{
		Args:     args,
		Duration: total,
		ProgressHandler: func(pr ffmpeg.Progress) {
			if p.Progress != nil {
				p.Progress(pr.Percentage)
			}
		},
	})
	if err != nil {
		return nil, stageError(StageAssemble, err)
	}

	if err := os.Rename(tmp, p.OutputPath); err != nil {
		return nil, stageError(StageFinalize, fmt.Errorf("failed to move output into place: %w", err))
	}
	committed = true

	res := &Result{
		Path:       p.OutputPath,
		Duration:   total,
		ClipCount:  len(clips),
		Width:      enc.Width,
		Height:     enc.Height,
		Background: len(plan) > 0,
	}
	if info, err := os.Stat(p.OutputPath); err == nil {
		res.Size = info.Size()
	}
	return res, nil
}

// collectInputs resolves every clip to a file: file-backed clips are used
// directly, the rest are rendered into workDir. Intro and outro files
// bracket the scenes when they exist.
func (a *Assembler) collectInputs(ctx context.Context, clips []clip.Clip, enc ffmpeg.Encoding, workDir string, p Params) ([]input, error) {
	var inputs []input

	if p.Intro != "" {
		in, err := a.probeInput(ctx, p.Intro)
		if err != nil {
			a.logger.Warn("Skipping intro", slog.String("path", p.Intro), slog.String("error", err.Error()))
		} else {
			inputs = append(inputs, in)
		}
	}

	for i, c := range clips {
		if fb, ok := c.(clip.FileBacked); ok {
			in, err := a.probeInput(ctx, fb.SourcePath())
			if err != nil {
				return nil, stageError(StageLoad, err)
			}
			in.duration = c.Duration()
			inputs = append(inputs, in)
			continue
		}

		path := filepath.Join(workDir, "clip-"+strconv.Itoa(i)+".mp4")
		if err := a.renderer.Render(ctx, c, enc, path, nil); err != nil {
			return nil, err
		}
		inputs = append(inputs, input{path: path, duration: c.Duration(), hasAudio: true})
	}

	if p.Outro != "" {
		in, err := a.probeInput(ctx, p.Outro)
		if err != nil {
			a.logger.Warn("Skipping outro", slog.String("path", p.Outro), slog.String("error", err.Error()))
		} else {
			inputs = append(inputs, in)
		}
	}
	return inputs, nil
}

func (a *Assembler) probeInput(ctx context.Context, path string) (input, error) {
	if _, err := os.Stat(path); err != nil {
		return input{}, failure.MissingInput(path)
	}
	info, err := a.prober.Probe(ctx, path)
	if err != nil {
		return input{}, failure.Encoding("unreadable video", err)
	}
	return input{path: path, duration: info.Duration, hasAudio: info.HasAudio}, nil
}

// assembleArgs builds the single ffmpeg invocation for the timeline.
func assembleArgs(inputs []input, enc ffmpeg.Encoding, format script_type.Format, background string, plan []Segment, wm *compositor.Watermark, volume, total float64, output string) []string {
	var args []string
	for _, in := range inputs {
		args = append(args, "-i", in.path)
	}
	next := len(inputs)

	bgIndex := -1
	if len(plan) > 0 {
		bgIndex = next
		next++
		args = append(args, "-i", background)
	}
	wmIndex := -1
	if wm != nil {
		wmIndex = next
		args = append(args, "-i", wm.Path)
	}

	g := ffmpeg.NewGraph()
	concatIn := make([]string, 0, 2*len(inputs))
	for i, in := range inputs {
		fb := ffmpeg.NewFilterBuilder()
		if format == script_type.FormatShorts {
			fb.Fill(enc.Width, enc.Height)
		} else {
			fb.Fit(enc.Width, enc.Height, "black")
		}
		v, au := fmt.Sprintf("v%d", i), fmt.Sprintf("a%d", i)
		g.Chain([]string{fmt.Sprintf("%d:v", i)}, fb.SetSAR().FPS(enc.FPS).Format(ffmpeg.DefaultPixelFormat).Build(), v)

		audioFormat := "aformat=sample_rates=44100:channel_layouts=stereo"
		if in.hasAudio {
			g.Chain([]string{fmt.Sprintf("%d:a", i)}, fmt.Sprintf("%s,apad,atrim=duration=%s", audioFormat, secs(in.duration)), au)
		} else {
			g.Chain(nil, fmt.Sprintf("anullsrc=r=44100:cl=stereo,atrim=duration=%s", secs(in.duration)), au)
		}
		concatIn = append(concatIn, v, au)
	}
	g.Chain(concatIn, fmt.Sprintf("concat=n=%d:v=1:a=1", len(inputs)), "vcat", "acat")

	audioOut := "acat"
	if bgIndex >= 0 {
		backgroundFilter(g, fmt.Sprintf("%d:a", bgIndex), "bg", plan, volume)
		g.Chain([]string{"acat", "bg"}, "amix=inputs=2:duration=first:dropout_transition=0:normalize=0", "aout")
		audioOut = "aout"
	}

	videoOut := "vcat"
	if wmIndex >= 0 {
		width := wm.Width(enc.Width)
		g.Chain([]string{fmt.Sprintf("%d:v", wmIndex)},
			fmt.Sprintf("scale=%d:-1,format=rgba,colorchannelmixer=aa=%s", width, trimFloat(wm.Opacity)), "wm")
		g.Chain([]string{"vcat", "wm"}, "overlay="+overlayPosition(wm.Position)+":format=auto", "vout")
		videoOut = "vout"
	}

	args = append(args,
		"-filter_complex", g.Build(),
		"-map", "["+videoOut+"]",
		"-map", "["+audioOut+"]",
	)
	args = append(args, enc.OutputArgs()...)
	args = append(args, "-t", secs(total), output)
	return args
}

// overlayPosition returns the overlay x:y expressions matching
// compositor.Position.Anchor.
func overlayPosition(p compositor.Position) string {
	pad := strconv.Itoa(compositor.Padding)
	switch p {
	case compositor.TopLeft:
		return pad + ":" + pad
	case compositor.TopRight:
		return "main_w-overlay_w-" + pad + ":" + pad
	case compositor.BottomLeft:
		return pad + ":main_h-overlay_h-" + pad
	case compositor.Center:
		return "(main_w-overlay_w)/2:(main_h-overlay_h)/2"
	default:
		return "main_w-overlay_w-" + pad + ":main_h-overlay_h-" + pad
	}
}
