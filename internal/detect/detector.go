package detect

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"subclean/internal/textutil"
	"subclean/internal/vision"
)

// Word is a single recognized token with its bounding box. Confidence is
// normalized to [0,1].
type Word struct {
	Box        Rect
	Line       LineKey
	Text       string
	Confidence float64
}

// Rect mirrors the engine's pixel geometry (left/top/width/height).
type Rect struct {
	Left, Top, Width, Height int
}

// LineKey identifies the text line a word belongs to within a frame.
type LineKey struct {
	Block, Paragraph, Line int
}

// Engine recognizes text in an encoded PNG image.
type Engine interface {
	Recognize(ctx context.Context, pngData []byte) ([]Word, error)
}

// Options tunes region filtering.
type Options struct {
	// MinConfidence drops lines whose mean confidence falls below the floor.
	MinConfidence float64
	// MinRegionPx drops degenerate boxes narrower or shorter than this.
	MinRegionPx int
}

// Detector converts frames into candidate text regions.
type Detector struct {
	engine Engine
	opts   Options
}

// New constructs a detector around the provided engine.
func New(engine Engine, opts Options) *Detector {
	if opts.MinRegionPx <= 0 {
		opts.MinRegionPx = 1
	}
	return &Detector{engine: engine, opts: opts}
}

// Detect returns candidate text regions for a frame. Regions may overlap;
// reconciling overlaps is the mask builder's job. The result is deterministic
// for a fixed frame and engine configuration. An engine failure is returned
// to the caller, which treats it as an empty set.
func (d *Detector) Detect(ctx context.Context, frame *vision.Frame) ([]vision.TextRegion, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Img); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.Index, err)
	}

	words, err := d.engine.Recognize(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("recognize frame %d: %w", frame.Index, err)
	}

	regions := groupLines(words, frame.Index)
	filtered := regions[:0]
	for _, region := range regions {
		if region.Confidence < d.opts.MinConfidence {
			continue
		}
		if region.Box.Dx() < d.opts.MinRegionPx || region.Box.Dy() < d.opts.MinRegionPx {
			continue
		}
		if textutil.NormalizeOCR(region.Text) == "" {
			continue
		}
		filtered = append(filtered, region)
	}
	return filtered, nil
}

// groupLines merges word boxes that share a line into one region per text
// line: union box, space-joined text, mean confidence.
func groupLines(words []Word, frameIndex int) []vision.TextRegion {
	type lineAccum struct {
		region vision.TextRegion
		total  float64
		count  int
		order  int
	}

	lines := make(map[LineKey]*lineAccum)
	order := make([]LineKey, 0, 8)
	for _, word := range words {
		text := textutil.NormalizeOCR(word.Text)
		if text == "" {
			continue
		}
		box := word.Box.toRectangle()
		accum, ok := lines[word.Line]
		if !ok {
			accum = &lineAccum{
				region: vision.TextRegion{Box: box, Text: text, FrameIndex: frameIndex},
				order:  len(order),
			}
			lines[word.Line] = accum
			order = append(order, word.Line)
		} else {
			accum.region.Box = accum.region.Box.Union(box)
			accum.region.Text += " " + text
		}
		accum.total += word.Confidence
		accum.count++
	}

	regions := make([]vision.TextRegion, 0, len(order))
	for _, key := range order {
		accum := lines[key]
		if accum.count > 0 {
			accum.region.Confidence = accum.total / float64(accum.count)
		}
		regions = append(regions, accum.region)
	}
	return regions
}
