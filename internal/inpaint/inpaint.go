// Package inpaint fills masked frame regions by diffusing surrounding pixel
// values inward. Gauss-Seidel sweeps over the masked pixels converge toward a
// smooth interpolation of the unmasked boundary, which is enough to erase
// text overlays against typical chart backgrounds without GPU support.
package inpaint

import (
	"image"

	"subclean/internal/vision"
)

// Options tunes the diffusion pass. Radius loosely corresponds to the largest
// half-width of a masked stroke that will be fully smoothed; iteration count
// scales with it.
type Options struct {
	Radius int
}

// sweepsPerRadius sets how many full Gauss-Seidel sweeps each unit of radius
// buys. Diffusion propagates roughly one pixel per sweep, and alternating
// sweep direction doubles the effective speed.
const sweepsPerRadius = 8

// Inpaint fills the masked pixels of frame in place and returns it. Unmasked
// pixels are never modified. An empty mask is a cheap no-op.
func Inpaint(frame *vision.Frame, mask *vision.Mask, opts Options) *vision.Frame {
	if !mask.Any() {
		return frame
	}
	radius := opts.Radius
	if radius < 1 {
		radius = 1
	}

	bounds := frame.Img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	// Seed each masked pixel from the nearest unmasked neighbor on its row
	// (or column when the whole row span is masked) so diffusion starts from
	// plausible values rather than the overlay's own colors.
	seed(frame, mask, width, height)

	iterations := radius * sweepsPerRadius
	for iter := 0; iter < iterations; iter++ {
		if iter%2 == 0 {
			sweepForward(frame, mask, width, height)
		} else {
			sweepBackward(frame, mask, width, height)
		}
	}
	return frame
}

func seed(frame *vision.Frame, mask *vision.Mask, width, height int) {
	img := frame.Img
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !mask.At(x, y) {
				continue
			}
			if sx, ok := scanRow(mask, x, y, width); ok {
				copyPixel(img, x, y, sx, y)
			} else if sy, ok := scanColumn(mask, x, y, height); ok {
				copyPixel(img, x, y, x, sy)
			}
		}
	}
}

// scanRow finds the nearest unmasked x on row y, preferring the closer side.
func scanRow(mask *vision.Mask, x, y, width int) (int, bool) {
	for d := 1; d < width; d++ {
		if x-d >= 0 && !mask.At(x-d, y) {
			return x - d, true
		}
		if x+d < width && !mask.At(x+d, y) {
			return x + d, true
		}
	}
	return 0, false
}

func scanColumn(mask *vision.Mask, x, y, height int) (int, bool) {
	for d := 1; d < height; d++ {
		if y-d >= 0 && !mask.At(x, y-d) {
			return y - d, true
		}
		if y+d < height && !mask.At(x, y+d) {
			return y + d, true
		}
	}
	return 0, false
}

func copyPixel(img *image.RGBA, dx, dy, sx, sy int) {
	di := img.PixOffset(img.Bounds().Min.X+dx, img.Bounds().Min.Y+dy)
	si := img.PixOffset(img.Bounds().Min.X+sx, img.Bounds().Min.Y+sy)
	copy(img.Pix[di:di+4], img.Pix[si:si+4])
}

// sweepForward relaxes masked pixels top-left to bottom-right. Updated values
// feed into later pixels within the same sweep, which is what makes
// Gauss-Seidel converge faster than a plain Jacobi pass.
func sweepForward(frame *vision.Frame, mask *vision.Mask, width, height int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask.At(x, y) {
				relax(frame, x, y, width, height)
			}
		}
	}
}

func sweepBackward(frame *vision.Frame, mask *vision.Mask, width, height int) {
	for y := height - 1; y >= 0; y-- {
		for x := width - 1; x >= 0; x-- {
			if mask.At(x, y) {
				relax(frame, x, y, width, height)
			}
		}
	}
}

// relax sets pixel (x, y) to the average of its in-bounds 4-neighbors.
func relax(frame *vision.Frame, x, y, width, height int) {
	img := frame.Img
	min := img.Bounds().Min

	var sum [4]int
	count := 0
	accumulate := func(nx, ny int) {
		if nx < 0 || ny < 0 || nx >= width || ny >= height {
			return
		}
		i := img.PixOffset(min.X+nx, min.Y+ny)
		sum[0] += int(img.Pix[i])
		sum[1] += int(img.Pix[i+1])
		sum[2] += int(img.Pix[i+2])
		sum[3] += int(img.Pix[i+3])
		count++
	}
	accumulate(x-1, y)
	accumulate(x+1, y)
	accumulate(x, y-1)
	accumulate(x, y+1)
	if count == 0 {
		return
	}

	i := img.PixOffset(min.X+x, min.Y+y)
	img.Pix[i] = uint8(sum[0] / count)
	img.Pix[i+1] = uint8(sum[1] / count)
	img.Pix[i+2] = uint8(sum[2] / count)
	img.Pix[i+3] = uint8(sum[3] / count)
}
