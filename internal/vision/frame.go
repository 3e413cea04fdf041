package vision

import "image"

// Frame is a decoded raster image with its source position.
type Frame struct {
	Index int
	Img   *image.RGBA
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(index, width, height int) *Frame {
	return &Frame{
		Index: index,
		Img:   image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Img.Rect.Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Img.Rect.Dy() }

// Clone returns a deep copy sharing no pixel storage with the receiver.
func (f *Frame) Clone() *Frame {
	clone := NewFrame(f.Index, f.Width(), f.Height())
	copy(clone.Img.Pix, f.Img.Pix)
	return clone
}

// TextRegion is a candidate text bounding box produced by the detector.
type TextRegion struct {
	Box        image.Rectangle
	Text       string
	Confidence float64
	FrameIndex int
}

// Overlaps reports whether two regions share any pixels.
func (r TextRegion) Overlaps(other TextRegion) bool {
	return r.Box.Overlaps(other.Box)
}
