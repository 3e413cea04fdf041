// Package maskbuild turns per-frame subtitle classifications into binary
// masks with temporal hysteresis. A region must be labeled subtitle in
// ConfirmFrames consecutive frames before it is masked, and once active it
// keeps being masked for HoldFrames frames after its last subtitle-labeled
// sighting, so one-frame OCR blips neither trigger nor break the mask.
package maskbuild

import (
	"image"

	"subclean/internal/classify"
	"subclean/internal/vision"
)

// Options tunes the hysteresis window. All values are frame counts except
// PaddingPx, which inflates each confirmed box before rasterization.
type Options struct {
	ConfirmFrames int
	HoldFrames    int
	WindowFrames  int
	PaddingPx     int
}

// quantum is the box-position quantization step, in pixels. Regions whose
// quantized boxes coincide are treated as the same on-screen text across
// frames even when OCR jitters their bounds slightly.
const quantum = 16

type trackKey struct {
	x0, y0, x1, y1 int
}

type track struct {
	box            image.Rectangle // union of observed boxes
	seenStreak     int             // consecutive frames detected, any label
	subtitleStreak int             // consecutive frames labeled subtitle
	lastSeen       int             // frame index of last sighting, any label
	lastSubtitle   int             // frame index of last subtitle-labeled sighting
	confirmed      bool
}

// Builder accumulates classifications frame by frame and emits one mask per
// frame. It keeps only a bounded window of track state; memory use is
// independent of video length.
type Builder struct {
	opts   Options
	width  int
	height int
	frame  int
	tracks map[trackKey]*track
}

// New builds a mask builder for frames of the given dimensions.
func New(width, height int, opts Options) *Builder {
	if opts.ConfirmFrames < 1 {
		opts.ConfirmFrames = 1
	}
	if opts.HoldFrames < 0 {
		opts.HoldFrames = 0
	}
	if opts.WindowFrames < opts.ConfirmFrames+opts.HoldFrames {
		opts.WindowFrames = opts.ConfirmFrames + opts.HoldFrames
	}
	return &Builder{
		opts:   opts,
		width:  width,
		height: height,
		tracks: make(map[trackKey]*track),
	}
}

// OverlapStreak reports how many consecutive prior frames contained a region
// matching box, regardless of how those sightings were labeled. The
// classifier consumes this as its persistence signal, so the caller must
// invoke it before Observe ingests the current frame.
func (b *Builder) OverlapStreak(frameIndex int, box image.Rectangle) int {
	if tr, ok := b.tracks[keyFor(box)]; ok && tr.lastSeen == frameIndex-1 {
		return tr.seenStreak
	}
	return 0
}

// Observe ingests the classifications for frameIndex and returns the mask for
// that frame. Frames must be observed in order. All detections feed the
// persistence tracker, but only regions labeled subtitle count toward
// confirmation; a frame with no subtitles yields an all-zero mask unless a
// recently confirmed track is still holding.
func (b *Builder) Observe(frameIndex int, results []classify.Classification) *vision.Mask {
	b.frame = frameIndex

	for _, res := range results {
		key := keyFor(res.Region.Box)
		tr, ok := b.tracks[key]
		if !ok {
			tr = &track{box: res.Region.Box, lastSeen: -1, lastSubtitle: -1}
			b.tracks[key] = tr
		}
		if tr.lastSeen == frameIndex-1 {
			tr.seenStreak++
		} else if tr.lastSeen != frameIndex {
			tr.seenStreak = 1
			tr.subtitleStreak = 0
		}
		if res.Label == classify.LabelSubtitle {
			tr.subtitleStreak++
			tr.lastSubtitle = frameIndex
		} else if tr.lastSeen != frameIndex {
			tr.subtitleStreak = 0
		}
		tr.box = tr.box.Union(res.Region.Box)
		tr.lastSeen = frameIndex
		if tr.subtitleStreak >= b.opts.ConfirmFrames {
			tr.confirmed = true
		}
	}

	mask := vision.NewMask(b.width, b.height)
	for key, tr := range b.tracks {
		if frameIndex-tr.lastSeen > b.opts.WindowFrames {
			delete(b.tracks, key)
			continue
		}
		if !tr.confirmed {
			continue
		}
		// The hold is anchored to the last subtitle-labeled sighting, not the
		// last sighting of any label. Otherwise a confirmed track whose
		// position keeps matching NOT_SUBTITLE chart text would never release.
		if frameIndex-tr.lastSubtitle > b.opts.HoldFrames {
			// Hold expired; drop confirmation so a re-appearance must
			// re-confirm from scratch.
			tr.confirmed = false
			tr.subtitleStreak = 0
			continue
		}
		mask.SetRect(inflate(tr.box, b.opts.PaddingPx))
	}
	return mask
}

// Reset clears all track state, for reuse across videos.
func (b *Builder) Reset() {
	b.frame = 0
	b.tracks = make(map[trackKey]*track)
}

func keyFor(box image.Rectangle) trackKey {
	return trackKey{
		x0: box.Min.X / quantum,
		y0: box.Min.Y / quantum,
		x1: box.Max.X / quantum,
		y1: box.Max.Y / quantum,
	}
}

func inflate(box image.Rectangle, pad int) image.Rectangle {
	return image.Rect(box.Min.X-pad, box.Min.Y-pad, box.Max.X+pad, box.Max.Y+pad)
}
