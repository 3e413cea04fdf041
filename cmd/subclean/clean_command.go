package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"subclean/internal/config"
	"subclean/internal/daemonrun"
	"subclean/internal/fileutil"
	"subclean/internal/logging"
	"subclean/internal/queue"
	"subclean/internal/storage"
	"subclean/internal/workflow"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var inpaintRadius int
	var maxResolution int
	var intensityThreshold float64

	cmd := &cobra.Command{
		Use:   "clean <video>",
		Short: "Clean one video file in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			inputPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(inputPath)
			if err != nil {
				return fmt.Errorf("inspect input %q: %w", inputPath, err)
			}
			if info.IsDir() {
				return fmt.Errorf("input %q is a directory", inputPath)
			}

			logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}

			deliverer, err := storage.NewDeliverer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			snapshot := workflow.SnapshotConfig(cfg, workflow.Overrides{
				MaxResolution:      maxResolution,
				InpaintRadius:      inpaintRadius,
				IntensityThreshold: intensityThreshold,
			})
			configJSON, err := workflow.MarshalTaskConfig(snapshot)
			if err != nil {
				return err
			}

			runner := workflow.NewCleanRunner(cfg, logger, deliverer)
			var bar *progressbar.ProgressBar
			runner.Progress = func(done, total int64) {
				if bar == nil {
					bar = progressbar.NewOptions64(total,
						progressbar.OptionSetDescription("cleaning"),
						progressbar.OptionSetWriter(cmd.ErrOrStderr()),
						progressbar.OptionShowCount())
				}
				_ = bar.Set64(done)
			}

			task := &queue.Task{
				UUID:       uuid.NewString(),
				Status:     queue.StatusProcessing,
				InputPath:  inputPath,
				ConfigJSON: configJSON,
			}
			result, err := runner.Run(cmd.Context(), task)
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}

			finalPath := result.VideoURL
			if outputPath != "" {
				if result.OutputPath == "" {
					return errors.New("--output requires local delivery; configured storage is remote")
				}
				target, err := config.ExpandPath(outputPath)
				if err != nil {
					return err
				}
				if err := fileutil.MoveFile(result.OutputPath, target); err != nil {
					return fmt.Errorf("move output: %w", err)
				}
				finalPath = target
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cleaned video: %s\n", finalPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the cleaned video to this path")
	cmd.Flags().IntVar(&inpaintRadius, "inpaint-radius", 0, "Override the inpaint blend radius in pixels")
	cmd.Flags().IntVar(&maxResolution, "max-resolution", 0, "Override the processing height cap")
	cmd.Flags().Float64Var(&intensityThreshold, "intensity-threshold", 0, "Override the detection confidence floor")

	return cmd
}

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the task daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
