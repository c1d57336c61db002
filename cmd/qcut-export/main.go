package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Quriosity-agent/qcut-sub012/internal/config"
	"github.com/Quriosity-agent/qcut-sub012/internal/export"
	"github.com/Quriosity-agent/qcut-sub012/internal/ffmpeg"
	"github.com/Quriosity-agent/qcut-sub012/internal/logging"
	"github.com/Quriosity-agent/qcut-sub012/internal/project"
)

var (
	cfgFile string
	verbose bool

	outputPath string
	sessionID  string
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qcut-export",
	Short: "qcut-export - timeline export compiler",
	Long:  "Compiles a declarative editing timeline into an ffmpeg invocation and drives it to a finished video.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./qcut.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	exportCmd.Flags().StringVar(&sessionID, "session", "", "session id (at most one export per session)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(analyzeCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [project file]",
	Short: "Export a project to a video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		proj, err := loadProject(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}

		manager, err := export.NewManager(log.Logger, cfg)
		if err != nil {
			return err
		}

		handle, err := manager.Start(cmd.Context(), export.Job{
			SessionID:  sessionID,
			Timeline:   proj.Timeline,
			Media:      proj.Media,
			Settings:   proj.Settings,
			OutputPath: outputPath,
		})
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription("exporting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		for event := range handle.Progress {
			bar.Describe(event.Stage)
			_ = bar.Set(int(event.Percent))
		}
		_ = bar.Finish()

		result, err := handle.Wait()
		if err != nil {
			return err
		}

		cliLog := logging.WithComponent("cli")
		for _, warn := range result.Warnings {
			cliLog.Warn().Msg(warn)
		}
		cliLog.Info().
			Str("strategy", string(result.Analysis.Strategy)).
			Str("output", result.OutputPath).
			Msg("export complete")

		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [project file]",
	Short: "Report the export strategy for a project without exporting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		proj, err := loadProject(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}

		analysis := export.Analyze(proj.Timeline, proj.Media)

		fmt.Printf("strategy:              %s\n", analysis.Strategy)
		fmt.Printf("reason:                %s\n", analysis.Reason)
		fmt.Printf("needs frame rendering: %t\n", analysis.NeedsFrameRendering)
		fmt.Printf("needs filter encoding: %t\n", analysis.NeedsFilterEncoding)
		fmt.Printf("direct copy possible:  %t\n", analysis.CanUseDirectCopy)
		fmt.Printf("timeline duration:     %.3fs\n", proj.Timeline.Duration())

		return nil
	},
}

// loadProject parses the project file and probes missing media durations
func loadProject(ctx context.Context, cfg *config.Config, path string) (*project.Project, error) {
	proj, err := project.Load(path)
	if err != nil {
		return nil, err
	}

	ff, err := ffmpeg.New(log.Logger, cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.Threads)
	if err != nil {
		// Analysis of fully described projects works without ffmpeg.
		logger := logging.WithComponent("cli")
		logger.Debug().Err(err).Msg("ffmpeg unavailable, skipping media probing")
		return proj, nil
	}
	if err := proj.ProbeDurations(ctx, ff); err != nil {
		return nil, err
	}

	return proj, nil
}
