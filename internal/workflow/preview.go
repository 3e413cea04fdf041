package workflow

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"

	"subclean/internal/classify"
	"subclean/internal/detect"
	"subclean/internal/inpaint"
	"subclean/internal/maskbuild"
	"subclean/internal/media"
	"subclean/internal/pipeline"
	"subclean/internal/vision"
)

// PreviewOptions are the per-request knobs of a preview run. Zero values fall
// back to the configured defaults.
type PreviewOptions struct {
	FrameNumber   int
	MaxResolution int
	InpaintRadius int
}

// Preview is the before/after pair for one frame, PNG-encoded for the API.
type Preview struct {
	FrameNumber  int     `json:"frame_number"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Detections   int     `json:"detections"`
	MaskedBoxes  int     `json:"masked_regions"`
	MaskFraction float64 `json:"mask_fraction"`
	BeforePNG    string  `json:"before_png"`
	AfterPNG     string  `json:"after_png"`
}

// PreviewFrame cleans a single frame of inputPath and returns the pair as
// base64 PNGs, for tuning inpaint parameters without queueing a task. The
// input file is left in place; the caller owns its lifecycle.
func (r *CleanRunner) PreviewFrame(ctx context.Context, inputPath string, opts PreviewOptions) (Preview, error) {
	if opts.FrameNumber < 0 {
		return Preview{}, failInput(fmt.Errorf("negative frame number %d", opts.FrameNumber))
	}
	maxResolution := opts.MaxResolution
	if maxResolution <= 0 {
		maxResolution = r.cfg.Processing.MaxResolution
	}
	radius := opts.InpaintRadius
	if radius <= 0 {
		radius = r.cfg.Processing.InpaintRadius
	}

	info, err := media.Probe(ctx, r.cfg.FFprobeBinary(), inputPath)
	if err != nil {
		return Preview{}, failInput(err)
	}
	ruleset, err := classify.LoadRuleSet(r.cfg.Paths.RulesPath)
	if err != nil {
		return Preview{}, failProcessing(err)
	}

	decoder, err := media.OpenDecoder(ctx, media.DecodeOptions{
		Binary:    r.cfg.FFmpegBinary(),
		Path:      inputPath,
		Info:      info,
		MaxHeight: maxResolution,
	})
	if err != nil {
		return Preview{}, failResource(err)
	}
	defer decoder.Close()

	detector := detect.New(&detect.TesseractEngine{
		Binary:    r.cfg.TesseractBinary(),
		Languages: r.cfg.Detection.Languages,
	}, detect.Options{
		MinConfidence: r.cfg.Detection.MinConfidence,
		MinRegionPx:   r.cfg.Detection.MinRegionPx,
	})
	// Single-frame confirmation: hysteresis needs history a preview does not
	// have, so persistence is assumed satisfied.
	builder := maskbuild.New(decoder.Width(), decoder.Height(), maskbuild.Options{
		ConfirmFrames: 1,
		PaddingPx:     r.cfg.Mask.PaddingPx,
	})

	frame, err := pipeline.PreviewFrame(ctx, decoder, pipeline.Options{
		Detector:        detector,
		Classifier:      classify.New(ruleset),
		Builder:         builder,
		Inpaint:         inpaint.Options{Radius: radius},
		ConfidenceFloor: r.cfg.Processing.SubtitleIntensityThreshold,
		Logger:          r.logger,
	}, opts.FrameNumber, ruleset.Persistence.MinFrames)
	if err != nil {
		return Preview{}, failProcessing(err)
	}

	before, err := encodePNG(frame.Before)
	if err != nil {
		return Preview{}, failProcessing(err)
	}
	after, err := encodePNG(frame.After)
	if err != nil {
		return Preview{}, failProcessing(err)
	}

	return Preview{
		FrameNumber:  opts.FrameNumber,
		Width:        decoder.Width(),
		Height:       decoder.Height(),
		Detections:   frame.Detections,
		MaskedBoxes:  frame.MaskedBoxes,
		MaskFraction: frame.MaskFraction,
		BeforePNG:    before,
		AfterPNG:     after,
	}, nil
}

func encodePNG(frame *vision.Frame) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
