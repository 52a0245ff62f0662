// Package cli wires the interactive front end: flags, prompts, the
// progress display, and artifact write-out. Anything not supplied as a
// flag is asked for interactively, with persisted preferences as
// defaults.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"clipsqueeze/internal/ui"
)

const version = "1.2.0"

type options struct {
	input      string
	output     string
	sizeMB     float64
	resolution int
	gif        bool
	twoPass    bool
	noAudio    bool
	trimStart  float64
	trimEnd    float64
	gifFPS     int
	useSaved   bool
	verbose    bool
}

// NewRootCommand builds the clipsqueeze command.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "clipsqueeze",
		Short:   "Compress a video to a target size, or turn it into a GIF",
		Long:    "clipsqueeze fits a video clip into a size budget by planning per-stream bitrates\nand driving a two-pass (or single-pass) encode, or renders a palette-based GIF.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindFlags(cmd, opts)
	return cmd
}

func bindFlags(cmd *cobra.Command, opts *options) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "source video file")
	flags.StringVarP(&opts.output, "output", "o", "", "destination file")
	flags.Float64VarP(&opts.sizeMB, "size", "s", 8, "target output size in MB")
	flags.IntVarP(&opts.resolution, "resolution", "r", 720, "output height (480, 720 or 1080)")
	flags.BoolVar(&opts.gif, "gif", false, "produce an animated GIF instead of MP4")
	flags.BoolVar(&opts.twoPass, "two-pass", true, "use two-pass encoding for a tighter size fit")
	flags.BoolVar(&opts.noAudio, "no-audio", false, "strip the audio stream")
	flags.Float64Var(&opts.trimStart, "start", 0, "trim start in seconds")
	flags.Float64Var(&opts.trimEnd, "end", 0, "trim end in seconds")
	flags.IntVar(&opts.gifFPS, "fps", 15, "GIF frame rate")
	flags.BoolVarP(&opts.useSaved, "yes", "y", false, "skip prompts, use flags and saved preferences")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "show engine diagnostics")
}

// Execute runs the root command with interrupt handling.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Println(ui.ErrorStyle.Render("Error: " + err.Error()))
		return err
	}
	return nil
}
