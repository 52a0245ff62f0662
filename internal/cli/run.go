package cli

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"clipsqueeze/internal/engine"
	"clipsqueeze/internal/job"
	"clipsqueeze/internal/planner"
	"clipsqueeze/internal/prefs"
	"clipsqueeze/internal/probe"
	"clipsqueeze/internal/ui"
	"clipsqueeze/internal/validation"
)

var stageLabels = map[job.Stage]string{
	job.StageProbing:    "Probing source",
	job.StagePlanning:   "Planning bitrates",
	job.StageEncoding:   "Encoding",
	job.StagePass1:      "Pass 1 (analysis)",
	job.StagePass2:      "Pass 2 (encoding)",
	job.StagePaletteGen: "Generating palette",
	job.StagePaintGif:   "Painting GIF",
	job.StageFinalizing: "Finalizing",
}

func run(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()

	level := hclog.Warn
	if opts.verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "clipsqueeze",
		Level:  level,
		Output: os.Stderr,
	})

	fmt.Println(ui.TitleStyle.Render("clipsqueeze"))

	saved, err := prefs.Load()
	if err != nil {
		logger.Debug("could not load preferences", "error", err)
	}

	// --- Source file ---
	input := opts.input
	if input == "" {
		if opts.useSaved {
			return fmt.Errorf("--input is required with --yes")
		}
		input, err = ui.PromptString("Source video file", "", validation.ValidateInputPath)
		if err != nil {
			return err
		}
	}
	if err := validation.ValidateInputPath(input); err != nil {
		return err
	}
	input, err = validation.CleanPath(input)
	if err != nil {
		return err
	}

	// --- Engine ---
	eng := engine.New(logger.Named("engine"))
	defer func() {
		if err := eng.Dispose(); err != nil {
			logger.Warn("engine dispose failed", "error", err)
		}
	}()
	if err := eng.EnsureLoaded(ctx); err != nil {
		return err
	}

	// An upfront probe drives the info panel and trim validation. The job
	// probes again as its first stage; that run hits the same code path.
	src, err := probe.Probe(ctx, eng, input)
	if err != nil {
		return err
	}
	ui.DisplaySourceInfo(src)

	cfg, err := buildConfig(cmd, opts, saved, src)
	if err != nil {
		return err
	}

	// --- Output path ---
	ext := ".mp4"
	if cfg.Format == job.FormatGIF {
		ext = ".gif"
	}
	output := opts.output
	if output == "" && !opts.useSaved {
		output, err = ui.PromptString("Output file", "output"+ext, nil)
		if err != nil {
			return err
		}
	}
	if output == "" {
		output = "output" + ext
	}
	output, err = validation.ResolveOutputPath(output, ext)
	if err != nil {
		return err
	}

	savePreferences(logger, cfg)

	// --- Run the job ---
	orch := job.New(eng, logger.Named("job"))
	events, err := orch.StartJob(ctx, input, cfg)
	if err != nil {
		return err
	}

	artifact, err := renderEvents(events)
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, artifact.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	ratio := int64(0)
	if src.SizeBytes > 0 {
		ratio = artifact.SizeBytes * 100 / src.SizeBytes
	}
	fmt.Println(ui.SuccessStyle.Render("Done!"))
	fmt.Printf("Saved %s (%s, %d%% of the original)\n",
		output, ui.FormatFileSize(artifact.SizeBytes), ratio)
	return nil
}

// buildConfig resolves each setting from, in order: an explicitly set
// flag, the saved preference (when prompts are skipped), or a prompt
// defaulting to the saved preference.
func buildConfig(cmd *cobra.Command, opts *options, saved prefs.Preferences, src *probe.SourceMedia) (job.Config, error) {
	flags := cmd.Flags()
	interactive := !opts.useSaved

	cfg := job.Config{
		TargetSizeMB:     saved.TargetSizeMB,
		ResolutionHeight: saved.ResolutionHeight,
		RemoveAudio:      saved.RemoveAudio,
		Format:           job.Format(saved.Format),
		TwoPass:          saved.TwoPass,
		GIFFrameRate:     saved.GIFFrameRate,
	}

	// Format first; it decides which further questions make sense.
	if flags.Changed("gif") {
		cfg.Format = job.FormatMP4
		if opts.gif {
			cfg.Format = job.FormatGIF
		}
	} else if interactive {
		def := 0
		if cfg.Format == job.FormatGIF {
			def = 1
		}
		choice, err := ui.PromptSelect("Output format", []string{"MP4 (compressed video)", "GIF (animated image)"}, def)
		if err != nil {
			return cfg, err
		}
		cfg.Format = job.FormatMP4
		if choice[:3] == "GIF" {
			cfg.Format = job.FormatGIF
		}
	}

	if flags.Changed("resolution") {
		cfg.ResolutionHeight = opts.resolution
	} else if interactive {
		items := []string{"480", "720", "1080"}
		def := 1
		for i, it := range items {
			if it == fmt.Sprint(cfg.ResolutionHeight) {
				def = i
			}
		}
		choice, err := ui.PromptSelect("Output height", items, def)
		if err != nil {
			return cfg, err
		}
		fmt.Sscan(choice, &cfg.ResolutionHeight)
	}

	if cfg.Format == job.FormatMP4 {
		if flags.Changed("size") {
			cfg.TargetSizeMB = opts.sizeMB
		} else if interactive {
			v, err := ui.PromptFloat("Target size (MB)", cfg.TargetSizeMB, func(v float64) error {
				if v <= 0 {
					return fmt.Errorf("must be positive")
				}
				return nil
			})
			if err != nil {
				return cfg, err
			}
			cfg.TargetSizeMB = v
		}

		if flags.Changed("no-audio") {
			cfg.RemoveAudio = opts.noAudio
		} else if interactive {
			v, err := ui.PromptConfirm("Keep audio?", !cfg.RemoveAudio)
			if err != nil {
				return cfg, err
			}
			cfg.RemoveAudio = !v
		}

		if flags.Changed("two-pass") {
			cfg.TwoPass = opts.twoPass
		} else if interactive {
			v, err := ui.PromptConfirm("Two-pass encoding (slower, tighter size fit)?", cfg.TwoPass)
			if err != nil {
				return cfg, err
			}
			cfg.TwoPass = v
		}
	} else {
		if flags.Changed("fps") {
			cfg.GIFFrameRate = opts.gifFPS
		} else if interactive {
			v, err := ui.PromptFloat("GIF frame rate", float64(cfg.GIFFrameRate), func(v float64) error {
				if v < 1 || v > 30 {
					return fmt.Errorf("must be between 1 and 30")
				}
				return nil
			})
			if err != nil {
				return cfg, err
			}
			cfg.GIFFrameRate = int(v)
		}
	}

	trim, err := resolveTrim(flags.Changed("start") || flags.Changed("end"), opts, interactive, src.Duration)
	if err != nil {
		return cfg, err
	}
	cfg.Trim = trim

	return cfg, nil
}

func resolveTrim(fromFlags bool, opts *options, interactive bool, duration float64) (planner.TrimRange, error) {
	if fromFlags {
		start, end := opts.trimStart, opts.trimEnd
		if end == 0 {
			end = duration
		}
		if start < 0 || end <= start || end > duration {
			return planner.TrimRange{}, fmt.Errorf(
				"trim range [%.2f, %.2f] is outside the clip (duration %.2fs)", start, end, duration)
		}
		if start == 0 && end == duration {
			return planner.TrimRange{}, nil
		}
		return planner.TrimRange{Start: start, End: end}, nil
	}

	if !interactive {
		return planner.TrimRange{}, nil
	}

	start, err := ui.PromptFloat(fmt.Sprintf("Start time in seconds (0 - %.2f)", duration), 0, func(v float64) error {
		if v < 0 || v >= duration {
			return fmt.Errorf("must be between 0 and %.2f", duration)
		}
		return nil
	})
	if err != nil {
		return planner.TrimRange{}, err
	}
	end, err := ui.PromptFloat(fmt.Sprintf("End time in seconds (%.2f - %.2f)", start, duration), duration, func(v float64) error {
		if v <= start || v > duration {
			return fmt.Errorf("must be between %.2f and %.2f", start, duration)
		}
		return nil
	})
	if err != nil {
		return planner.TrimRange{}, err
	}
	if start == 0 && end == duration {
		return planner.TrimRange{}, nil
	}
	return planner.TrimRange{Start: start, End: end}, nil
}

// renderEvents drives the progress bar off the job's event stream and
// returns the artifact or the job's failure.
func renderEvents(events <-chan job.Event) (*job.Artifact, error) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)

	var artifact *job.Artifact
	var jobErr error
	for ev := range events {
		switch ev.Kind {
		case job.EventStageChanged:
			if label, ok := stageLabels[ev.Stage]; ok {
				bar.Describe(label)
			}
		case job.EventProgress:
			bar.Set(ev.Percent)
		case job.EventCompleted:
			artifact = ev.Artifact
		case job.EventFailed:
			jobErr = fmt.Errorf("%s: %s", ev.ErrorKind, ev.Message)
		}
	}
	bar.Finish()
	fmt.Println()

	if jobErr != nil {
		return nil, jobErr
	}
	if artifact == nil {
		return nil, fmt.Errorf("job ended without producing an artifact")
	}
	return artifact, nil
}

func savePreferences(logger hclog.Logger, cfg job.Config) {
	p := prefs.Preferences{
		TargetSizeMB:     cfg.TargetSizeMB,
		ResolutionHeight: cfg.ResolutionHeight,
		RemoveAudio:      cfg.RemoveAudio,
		Format:           string(cfg.Format),
		TwoPass:          cfg.TwoPass,
		GIFFrameRate:     cfg.GIFFrameRate,
	}
	if err := prefs.Save(p); err != nil {
		logger.Debug("could not save preferences", "error", err)
	}
}
