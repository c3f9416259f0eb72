package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/serisow/craftvid/config"
	"github.com/serisow/craftvid/logging"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/storage"
	"github.com/spf13/cobra"
)

var (
	manifestPath  string
	outputPath    string
	renderQuality string
	renderFormat  string
	logLevel      string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Compile a local scene manifest into a video",
	Long: `Render compiles the scenes listed in a YAML manifest from existing images
and audio files. No provider, database or server is involved.

Example manifest:

  title: Demo
  quality: medium
  format: landscape
  background_audio: none
  scenes:
    - image: one.png
      audio: one.mp3
      caption: First scene
      effect: zoom
    - image: two.png
      audio: two.mp3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRender(cmd.Context())
	},
}

func init() {
	renderCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Scene manifest (YAML)")
	renderCmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output MP4 path")
	renderCmd.Flags().StringVarP(&renderQuality, "quality", "q", "", "Quality preset, overrides the manifest")
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "", "landscape or shorts, overrides the manifest")
	renderCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	renderCmd.MarkFlagRequired("manifest")
	renderCmd.MarkFlagRequired("out")
}

func runRender(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(logLevel)}))
	cfg := config.Load()

	m, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	script, err := m.Script()
	if err != nil {
		return err
	}
	opts := m.CompileOptions()
	if renderQuality != "" {
		opts.Quality = renderQuality
	}
	if renderFormat != "" {
		opts.Format = script_type.Format(renderFormat)
	}

	store, err := storage.NewLocal(m.Dir())
	if err != nil {
		return err
	}
	stack, err := newRenderStack(logger, cfg, store)
	if err != nil {
		return err
	}
	if err := stack.ffmpeg.Available(); err != nil {
		return err
	}

	last := -1
	opts.Progress = func(p float64) {
		if step := int(p) / 10; step > last {
			last = step
			fmt.Fprintf(os.Stderr, "\rRendering... %3d%%", step*10)
		}
	}
	compiled, err := stack.service.CompileScript(ctx, script, opts)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if err := moveFile(store.Abs(compiled.Path), outputPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d scenes, %.1fs)\n", outputPath, compiled.SceneCount, compiled.Duration)
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
// A failed copy leaves no partial dst behind.
func moveFile(src, dst string) error {
	return moveFileWith(os.Rename, src, dst)
}

func moveFileWith(rename func(string, string) error, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
