package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"subclean/internal/classify"
	"subclean/internal/inpaint"
	"subclean/internal/maskbuild"
	"subclean/internal/vision"
)

const (
	testW = 320
	testH = 180
)

type fakeSource struct {
	frames []*vision.Frame
	pos    int
	err    error // returned instead of the frame at errAt
	errAt  int
}

func (s *fakeSource) Next(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil && s.pos == s.errAt {
		return nil, s.err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

func (s *fakeSource) Width() int   { return testW }
func (s *fakeSource) Height() int  { return testH }
func (s *fakeSource) Close() error { return nil }

type fakeSink struct {
	frames []*vision.Frame
	err    error
}

func (s *fakeSink) Write(_ context.Context, frame *vision.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Close() error { return nil }

// scriptedDetector returns canned regions per frame index.
type scriptedDetector struct {
	regions map[int][]vision.TextRegion
	errs    map[int]error
	calls   int
}

func (d *scriptedDetector) Detect(_ context.Context, frame *vision.Frame) ([]vision.TextRegion, error) {
	d.calls++
	if err, ok := d.errs[frame.Index]; ok {
		return nil, err
	}
	return d.regions[frame.Index], nil
}

func makeFrames(n int) []*vision.Frame {
	frames := make([]*vision.Frame, n)
	for i := range frames {
		frames[i] = vision.NewFrame(i, testW, testH)
		for y := 0; y < testH; y++ {
			for x := 0; x < testW; x++ {
				frames[i].Img.SetRGBA(x, y, color.RGBA{60, 60, 60, 255})
			}
		}
	}
	return frames
}

func subtitleRegion() vision.TextRegion {
	return vision.TextRegion{
		Box:        image.Rect(80, 150, 240, 172),
		Text:       "stop loss triggered here",
		Confidence: 0.9,
	}
}

func testOptions(t *testing.T, det Detector) Options {
	t.Helper()
	set, err := classify.LoadRuleSet("")
	if err != nil {
		t.Fatalf("LoadRuleSet: %v", err)
	}
	return Options{
		Detector:   det,
		Classifier: classify.New(set),
		Builder: maskbuild.New(testW, testH, maskbuild.Options{
			ConfirmFrames: 2,
			HoldFrames:    2,
			WindowFrames:  8,
			PaddingPx:     2,
		}),
		Inpaint:           inpaint.Options{Radius: 2},
		ConfidenceFloor:   0.5,
		FrameErrorCeiling: 1.0,
	}
}

func TestProcessCleanVideoPassesThrough(t *testing.T) {
	src := &fakeSource{frames: makeFrames(5)}
	sink := &fakeSink{}
	det := &scriptedDetector{}

	stats, err := Process(context.Background(), src, sink, testOptions(t, det))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if stats.Frames != 5 || stats.MaskedFrames != 0 || stats.DetectorErrors != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(sink.frames) != 5 {
		t.Fatalf("sink got %d frames", len(sink.frames))
	}
	for i, frame := range sink.frames {
		if frame.Index != i {
			t.Fatalf("frame order broken: position %d has index %d", i, frame.Index)
		}
	}
}

func TestProcessMasksPersistentSubtitle(t *testing.T) {
	frames := makeFrames(8)
	// Paint a white "subtitle" block on every frame.
	for _, frame := range frames {
		for y := 150; y < 172; y++ {
			for x := 80; x < 240; x++ {
				frame.Img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	regions := make(map[int][]vision.TextRegion, len(frames))
	for i := range frames {
		regions[i] = []vision.TextRegion{subtitleRegion()}
	}

	src := &fakeSource{frames: frames}
	sink := &fakeSink{}
	stats, err := Process(context.Background(), src, sink, testOptions(t, &scriptedDetector{regions: regions}))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if stats.MaskedFrames == 0 {
		t.Fatal("persistent subtitle produced no masked frames")
	}
	if stats.MaskedPixelFraction <= 0 || stats.MaskedPixelFraction > 0.2 {
		t.Fatalf("masked pixel fraction out of range: %v", stats.MaskedPixelFraction)
	}

	// The last frame's subtitle block must have been inpainted toward the
	// dark background.
	last := sink.frames[len(sink.frames)-1]
	center := last.Img.RGBAAt(160, 160)
	if center.R > 120 {
		t.Errorf("subtitle pixels not inpainted: %v", center)
	}
}

func TestProcessRecoversFromDetectorErrors(t *testing.T) {
	src := &fakeSource{frames: makeFrames(6)}
	sink := &fakeSink{}
	det := &scriptedDetector{errs: map[int]error{2: errors.New("tesseract crashed"), 4: errors.New("tesseract crashed")}}

	stats, err := Process(context.Background(), src, sink, testOptions(t, det))
	if err != nil {
		t.Fatalf("Process failed despite recoverable errors: %v", err)
	}
	if stats.DetectorErrors != 2 {
		t.Fatalf("detector errors = %d, want 2", stats.DetectorErrors)
	}
	if stats.Frames != 6 || len(sink.frames) != 6 {
		t.Fatalf("frames dropped: stats=%d sink=%d", stats.Frames, len(sink.frames))
	}
}

func TestProcessFailsAtErrorCeiling(t *testing.T) {
	src := &fakeSource{frames: makeFrames(4)}
	errs := make(map[int]error, 4)
	for i := 0; i < 4; i++ {
		errs[i] = errors.New("no text layer")
	}

	opts := testOptions(t, &scriptedDetector{errs: errs})
	stats, err := Process(context.Background(), src, &fakeSink{}, opts)
	if !errors.Is(err, ErrAllFramesFailed) {
		t.Fatalf("expected ErrAllFramesFailed, got %v", err)
	}
	if stats.Frames != 4 {
		t.Fatalf("frames = %d, want 4 (pass-through still writes)", stats.Frames)
	}
}

func TestProcessDecodeErrorIsFatal(t *testing.T) {
	src := &fakeSource{frames: makeFrames(5), err: errors.New("pipe closed"), errAt: 3}
	_, err := Process(context.Background(), src, &fakeSink{}, testOptions(t, &scriptedDetector{}))
	if err == nil || errors.Is(err, ErrAllFramesFailed) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestProcessEncodeErrorIsFatal(t *testing.T) {
	src := &fakeSource{frames: makeFrames(5)}
	sink := &fakeSink{err: errors.New("disk full")}
	_, err := Process(context.Background(), src, sink, testOptions(t, &scriptedDetector{}))
	if err == nil {
		t.Fatal("expected encode error")
	}
}

func TestProcessHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	frames := makeFrames(100)
	src := &fakeSource{frames: frames}
	sink := &fakeSink{}

	opts := testOptions(t, &scriptedDetector{})
	opts.Progress = func(done int64) {
		if done == 3 {
			cancel()
		}
	}

	stats, err := Process(ctx, src, sink, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.Frames >= 100 {
		t.Fatal("cancellation ignored")
	}
}

func TestPreviewFrameCleansTargetOnly(t *testing.T) {
	frames := makeFrames(6)
	for y := 150; y < 172; y++ {
		for x := 80; x < 240; x++ {
			frames[4].Img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	regions := map[int][]vision.TextRegion{4: {subtitleRegion()}}

	opts := testOptions(t, &scriptedDetector{regions: regions})
	opts.Builder = maskbuild.New(testW, testH, maskbuild.Options{ConfirmFrames: 1, PaddingPx: 2})

	preview, err := PreviewFrame(context.Background(), &fakeSource{frames: frames}, opts, 4, 8)
	if err != nil {
		t.Fatalf("PreviewFrame failed: %v", err)
	}
	if preview.Detections != 1 || preview.MaskedBoxes != 1 {
		t.Fatalf("detections=%d masked=%d, want 1/1", preview.Detections, preview.MaskedBoxes)
	}
	if preview.MaskFraction <= 0 {
		t.Fatalf("mask fraction = %v", preview.MaskFraction)
	}
	if got := preview.Before.Img.RGBAAt(160, 160); got.R != 255 {
		t.Fatalf("before frame mutated: %v", got)
	}
	if got := preview.After.Img.RGBAAt(160, 160); got.R > 120 {
		t.Fatalf("subtitle pixels not inpainted: %v", got)
	}
	if preview.Before.Index != 4 || preview.After.Index != 4 {
		t.Fatalf("wrong frame selected: before=%d after=%d", preview.Before.Index, preview.After.Index)
	}
}

func TestPreviewFramePastEndOfVideo(t *testing.T) {
	src := &fakeSource{frames: makeFrames(3)}
	if _, err := PreviewFrame(context.Background(), src, testOptions(t, &scriptedDetector{}), 10, 8); err == nil {
		t.Fatal("expected error for frame index past the last frame")
	}
}

func TestPreviewFrameRejectsNegativeIndex(t *testing.T) {
	src := &fakeSource{frames: makeFrames(3)}
	if _, err := PreviewFrame(context.Background(), src, testOptions(t, &scriptedDetector{}), -1, 8); err == nil {
		t.Fatal("expected error for negative frame index")
	}
}

func TestProcessReportsProgress(t *testing.T) {
	src := &fakeSource{frames: makeFrames(3)}
	var seen []int64

	opts := testOptions(t, &scriptedDetector{})
	opts.Progress = func(done int64) { seen = append(seen, done) }

	if _, err := Process(context.Background(), src, &fakeSink{}, opts); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("progress callbacks = %v", seen)
	}
}
