// Package pipeline drives the per-video frame loop: detect text, classify
// it, build the temporal mask, inpaint, and hand the frame to the sink.
// Frames move strictly in order through a bounded window, so memory use does
// not grow with video length.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"subclean/internal/classify"
	"subclean/internal/inpaint"
	"subclean/internal/logging"
	"subclean/internal/maskbuild"
	"subclean/internal/media"
	"subclean/internal/vision"
)

// Detector is the text detection seam. detect.Detector satisfies it; tests
// substitute fakes.
type Detector interface {
	Detect(ctx context.Context, frame *vision.Frame) ([]vision.TextRegion, error)
}

// ErrAllFramesFailed reports that per-frame recovery was exhausted: the share
// of failed frames reached the configured ceiling.
var ErrAllFramesFailed = errors.New("pipeline: frame error ceiling reached")

// Options wires the pipeline stages together for one video.
type Options struct {
	Detector   Detector
	Classifier *classify.Classifier
	Builder    *maskbuild.Builder
	Inpaint    inpaint.Options

	// ConfidenceFloor is the minimum OCR confidence a region needs before the
	// subtitle rules consider it.
	ConfidenceFloor float64
	// FrameErrorCeiling is the failed-frame fraction in (0, 1] at which the
	// whole task fails instead of limping through on pass-through frames.
	FrameErrorCeiling float64

	// Progress, when set, is invoked after every frame with the number of
	// frames completed so far.
	Progress func(done int64)

	Logger *slog.Logger
}

// Stats summarizes one pipeline run. It is serialized into the task result
// payload, so field names are part of the task API.
type Stats struct {
	Frames              int64   `json:"frames"`
	MaskedFrames        int64   `json:"masked_frames"`
	MaskedPixelFraction float64 `json:"masked_pixel_fraction"`
	DetectorErrors      int64   `json:"detector_errors"`
	ElapsedMS           int64   `json:"elapsed_ms"`
}

// Process pulls frames from src until EOF, cleans them, and writes them to
// sink in the same order. Detector failures degrade to pass-through frames;
// source and sink failures abort the run. The caller owns src and sink
// lifecycles.
func Process(ctx context.Context, src media.FrameSource, sink media.FrameSink, opts Options) (Stats, error) {
	if opts.Detector == nil || opts.Classifier == nil || opts.Builder == nil {
		return Stats{}, errors.New("pipeline: detector, classifier, and builder are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ceiling := opts.FrameErrorCeiling
	if ceiling <= 0 || ceiling > 1 {
		ceiling = 1
	}

	start := time.Now()
	var stats Stats
	var maskedFractionSum float64

	for {
		if err := ctx.Err(); err != nil {
			return finish(stats, maskedFractionSum, start), err
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return finish(stats, maskedFractionSum, start), fmt.Errorf("pipeline: decode: %w", err)
		}

		results := classifyFrame(ctx, frame, opts, &stats, logger)
		mask := opts.Builder.Observe(frame.Index, results)
		if mask.Any() {
			stats.MaskedFrames++
			maskedFractionSum += mask.Fraction()
			inpaint.Inpaint(frame, mask, opts.Inpaint)
		}

		if err := sink.Write(ctx, frame); err != nil {
			return finish(stats, maskedFractionSum, start), fmt.Errorf("pipeline: encode: %w", err)
		}
		stats.Frames++
		if opts.Progress != nil {
			opts.Progress(stats.Frames)
		}
	}

	out := finish(stats, maskedFractionSum, start)
	if out.Frames > 0 && float64(out.DetectorErrors)/float64(out.Frames) >= ceiling {
		return out, fmt.Errorf("%w: %d of %d frames", ErrAllFramesFailed, out.DetectorErrors, out.Frames)
	}
	return out, nil
}

// classifyFrame runs detection and classification for one frame. A detector
// failure is recoverable: the frame passes through with whatever mask the
// builder still holds from prior confirmations.
func classifyFrame(ctx context.Context, frame *vision.Frame, opts Options, stats *Stats, logger *slog.Logger) []classify.Classification {
	regions, err := opts.Detector.Detect(ctx, frame)
	if err != nil {
		stats.DetectorErrors++
		logger.Warn("text detection failed, passing frame through",
			logging.Int("frame", frame.Index),
			logging.Error(err))
		return nil
	}

	results := make([]classify.Classification, 0, len(regions))
	for _, region := range regions {
		rctx := classify.Context{
			FrameWidth:      frame.Width(),
			FrameHeight:     frame.Height(),
			OverlapStreak:   opts.Builder.OverlapStreak(frame.Index, region.Box),
			ConfidenceFloor: opts.ConfidenceFloor,
		}
		results = append(results, opts.Classifier.Classify(region, rctx))
	}
	return results
}

// FramePreview is the before/after pair produced for one frame.
type FramePreview struct {
	Before       *vision.Frame
	After        *vision.Frame
	Detections   int
	MaskedBoxes  int
	MaskFraction float64
}

// PreviewFrame advances src to frameIndex and cleans that single frame. A
// lone frame carries no temporal history, so the classifier is handed
// assumedStreak prior sightings for every region and the builder should be
// configured to confirm on one frame; the result shows the steady-state mask
// the full run would converge on. Raw rgb24 pipes cannot seek, so frames
// before the target are decoded and discarded.
func PreviewFrame(ctx context.Context, src media.FrameSource, opts Options, frameIndex, assumedStreak int) (FramePreview, error) {
	if opts.Detector == nil || opts.Classifier == nil || opts.Builder == nil {
		return FramePreview{}, errors.New("pipeline: detector, classifier, and builder are required")
	}
	if frameIndex < 0 {
		return FramePreview{}, fmt.Errorf("pipeline: negative frame index %d", frameIndex)
	}

	var frame *vision.Frame
	for {
		if err := ctx.Err(); err != nil {
			return FramePreview{}, err
		}
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return FramePreview{}, fmt.Errorf("pipeline: frame %d is past the end of the video", frameIndex)
		}
		if err != nil {
			return FramePreview{}, fmt.Errorf("pipeline: decode: %w", err)
		}
		if f.Index == frameIndex {
			frame = f
			break
		}
	}

	regions, err := opts.Detector.Detect(ctx, frame)
	if err != nil {
		return FramePreview{}, fmt.Errorf("pipeline: detect: %w", err)
	}
	results := make([]classify.Classification, 0, len(regions))
	maskedBoxes := 0
	for _, region := range regions {
		rctx := classify.Context{
			FrameWidth:      frame.Width(),
			FrameHeight:     frame.Height(),
			OverlapStreak:   assumedStreak,
			ConfidenceFloor: opts.ConfidenceFloor,
		}
		res := opts.Classifier.Classify(region, rctx)
		if res.Label == classify.LabelSubtitle {
			maskedBoxes++
		}
		results = append(results, res)
	}

	mask := opts.Builder.Observe(frame.Index, results)
	preview := FramePreview{
		Before:      frame.Clone(),
		After:       frame,
		Detections:  len(regions),
		MaskedBoxes: maskedBoxes,
	}
	if mask.Any() {
		preview.MaskFraction = mask.Fraction()
		inpaint.Inpaint(frame, mask, opts.Inpaint)
	}
	return preview, nil
}

func finish(stats Stats, maskedFractionSum float64, start time.Time) Stats {
	if stats.MaskedFrames > 0 {
		stats.MaskedPixelFraction = maskedFractionSum / float64(stats.MaskedFrames)
	}
	stats.ElapsedMS = time.Since(start).Milliseconds()
	return stats
}
