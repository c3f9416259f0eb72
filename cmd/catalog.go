package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/serisow/craftvid/config"
	"github.com/serisow/craftvid/effect"
	"github.com/serisow/craftvid/video"
	"github.com/spf13/cobra"
)

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List the available scene effects",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := effect.NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return printEffects(os.Stdout, engine)
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the quality presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		presets, err := video.LoadPresets(config.Load().PresetsFile)
		if err != nil {
			return err
		}
		return printPresets(os.Stdout, presets)
	},
}

func printEffects(w io.Writer, engine *effect.Engine) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, name := range engine.Names() {
		e, _ := engine.Lookup(name)
		fmt.Fprintf(tw, "%s\t%s\n", name, e.Description())
	}
	return tw.Flush()
}

func printPresets(w io.Writer, presets video.Presets) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLANDSCAPE\tSHORTS\tBITRATE\tFPS")
	for _, name := range presets.Names() {
		p := presets[name]
		fmt.Fprintf(tw, "%s\t%dx%d\t%dx%d\t%s\t%d\n",
			name, p.Width, p.Height, video.ShortsWidth, video.ShortsHeight, p.Bitrate, p.FPS)
	}
	return tw.Flush()
}
