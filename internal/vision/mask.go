package vision

import "image"

// Mask is a single-channel bitmap matching frame dimensions. A value of 1
// marks a pixel for inpainting.
type Mask struct {
	W, H int
	Pix  []uint8
}

// NewMask allocates an all-zero mask.
func NewMask(width, height int) *Mask {
	return &Mask{W: width, H: height, Pix: make([]uint8, width*height)}
}

// At reports whether the pixel is marked. Out-of-bounds reads are zero.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Pix[y*m.W+x] != 0
}

// SetRect marks every pixel in the rectangle, clamped to mask bounds.
func (m *Mask) SetRect(rect image.Rectangle) {
	rect = rect.Intersect(image.Rect(0, 0, m.W, m.H))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := m.Pix[y*m.W : y*m.W+m.W]
		for x := rect.Min.X; x < rect.Max.X; x++ {
			row[x] = 1
		}
	}
}

// Any reports whether at least one pixel is marked.
func (m *Mask) Any() bool {
	for _, v := range m.Pix {
		if v != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of marked pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Fraction returns the marked share of the mask in [0,1].
func (m *Mask) Fraction() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	return float64(m.Count()) / float64(len(m.Pix))
}
