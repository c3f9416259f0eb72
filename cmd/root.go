package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "craftvid",
	Short: "Scene-based narrated video generation",
	Long: `CraftVid turns scripts of scenes into narrated videos. It generates
images and voice-overs through external providers, renders a preview clip per
scene and compiles the previews into a final video.

Run "craftvid serve" to start the HTTP API, or "craftvid render" to compile a
local manifest without any provider or database.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(effectsCmd)
	rootCmd.AddCommand(presetsCmd)
}
