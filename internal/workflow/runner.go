package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subclean/internal/classify"
	"subclean/internal/config"
	"subclean/internal/detect"
	"subclean/internal/inpaint"
	"subclean/internal/logging"
	"subclean/internal/maskbuild"
	"subclean/internal/media"
	"subclean/internal/pipeline"
	"subclean/internal/queue"
	"subclean/internal/storage"
)

// Result is the successful outcome of one task run.
type Result struct {
	OutputPath string
	VideoURL   string
	StatsJSON  string
}

// Runner executes one claimed task end to end.
type Runner interface {
	Run(ctx context.Context, task *queue.Task) (Result, error)
}

// taskError pairs an error with the failure kind recorded on the task.
type taskError struct {
	kind queue.FailureKind
	err  error
}

func (e *taskError) Error() string { return e.err.Error() }
func (e *taskError) Unwrap() error { return e.err }

func failInput(err error) error      { return &taskError{kind: queue.FailureInput, err: err} }
func failProcessing(err error) error { return &taskError{kind: queue.FailureProcessing, err: err} }
func failResource(err error) error   { return &taskError{kind: queue.FailureResource, err: err} }

// FailureKindOf extracts the failure kind from a runner error, defaulting to
// a processing failure.
func FailureKindOf(err error) queue.FailureKind {
	var te *taskError
	if errors.As(err, &te) {
		return te.kind
	}
	return queue.FailureProcessing
}

// CleanRunner is the production Runner: ffmpeg in, cleaned frames through
// the pipeline, ffmpeg out, then delivery.
type CleanRunner struct {
	cfg       *config.Config
	logger    *slog.Logger
	deliverer storage.Deliverer

	// Progress, when set, receives per-frame progress for one-shot CLI runs.
	Progress func(done, total int64)
}

// NewCleanRunner builds the production runner.
func NewCleanRunner(cfg *config.Config, logger *slog.Logger, deliverer storage.Deliverer) *CleanRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CleanRunner{cfg: cfg, logger: logger, deliverer: deliverer}
}

// Run processes one task. The input file is consumed: it is removed after a
// successful run, and the partial output is removed after a failed one.
func (r *CleanRunner) Run(ctx context.Context, task *queue.Task) (Result, error) {
	logger := logging.WithContext(logging.WithTaskID(ctx, task.UUID), r.logger)

	taskCfg, err := ParseTaskConfig(r.cfg, task.ConfigJSON)
	if err != nil {
		return Result{}, failProcessing(err)
	}
	inputPath := strings.TrimSpace(task.InputPath)
	if inputPath == "" {
		return Result{}, failInput(errors.New("task has no input file"))
	}

	info, err := media.Probe(ctx, r.cfg.FFprobeBinary(), inputPath)
	if err != nil {
		return Result{}, failInput(err)
	}
	logger.Info("input probed",
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
		logging.Float64("fps", info.FrameRate),
		logging.Float64("duration_s", info.DurationSeconds))

	ruleset, err := classify.LoadRuleSet(r.cfg.Paths.RulesPath)
	if err != nil {
		return Result{}, failProcessing(err)
	}

	decoder, err := media.OpenDecoder(ctx, media.DecodeOptions{
		Binary:    r.cfg.FFmpegBinary(),
		Path:      inputPath,
		Info:      info,
		MaxHeight: taskCfg.MaxResolution,
	})
	if err != nil {
		return Result{}, failResource(err)
	}
	defer decoder.Close()

	outputPath := filepath.Join(r.cfg.Paths.WorkDir, task.UUID+"-clean.mp4")
	encoder, err := media.OpenEncoder(ctx, media.EncodeOptions{
		Binary:     r.cfg.FFmpegBinary(),
		OutputPath: outputPath,
		SourcePath: inputPath,
		Width:      decoder.Width(),
		Height:     decoder.Height(),
		FrameRate:  info.FrameRate,
		CopyAudio:  info.HasAudio,
	})
	if err != nil {
		return Result{}, failResource(err)
	}

	detector := detect.New(&detect.TesseractEngine{
		Binary:    r.cfg.TesseractBinary(),
		Languages: r.cfg.Detection.Languages,
	}, detect.Options{
		MinConfidence: r.cfg.Detection.MinConfidence,
		MinRegionPx:   r.cfg.Detection.MinRegionPx,
	})
	builder := maskbuild.New(decoder.Width(), decoder.Height(), maskbuild.Options{
		ConfirmFrames: r.cfg.Mask.ConfirmFrames,
		HoldFrames:    r.cfg.Mask.HoldFrames,
		WindowFrames:  r.cfg.Mask.WindowFrames,
		PaddingPx:     r.cfg.Mask.PaddingPx,
	})

	opts := pipeline.Options{
		Detector:          detector,
		Classifier:        classify.New(ruleset),
		Builder:           builder,
		Inpaint:           inpaint.Options{Radius: taskCfg.InpaintRadius},
		ConfidenceFloor:   taskCfg.IntensityThreshold,
		FrameErrorCeiling: taskCfg.FrameErrorCeiling,
		Logger:            logger,
	}
	if r.Progress != nil {
		total := info.EstimatedFrames()
		opts.Progress = func(done int64) { r.Progress(done, total) }
	}

	started := time.Now()
	stats, err := pipeline.Process(ctx, decoder, encoder, opts)
	if err != nil {
		_ = encoder.Close()
		_ = os.Remove(outputPath)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, failProcessing(err)
	}
	if err := encoder.Close(); err != nil {
		_ = os.Remove(outputPath)
		return Result{}, failProcessing(err)
	}
	if err := decoder.Close(); err != nil {
		logger.Warn("decoder exit", logging.Error(err))
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return Result{}, failProcessing(fmt.Errorf("marshal stats: %w", err))
	}

	deliveredURL, err := r.deliverer.Deliver(ctx, outputPath, task.UUID+".mp4")
	if err != nil {
		_ = os.Remove(outputPath)
		return Result{}, failResource(err)
	}

	// The landed input lives in the work directory and is no longer needed.
	if strings.HasPrefix(inputPath, r.cfg.Paths.WorkDir) {
		_ = os.Remove(inputPath)
	}

	result := Result{VideoURL: deliveredURL, StatsJSON: string(statsJSON)}
	if filepath.IsAbs(deliveredURL) {
		result.OutputPath = deliveredURL
	}
	logger.Info("task processed",
		logging.Int64("frames", stats.Frames),
		logging.Int64("masked_frames", stats.MaskedFrames),
		logging.Duration("elapsed", time.Since(started)))
	return result, nil
}
