package media

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"subclean/internal/vision"
)

// FrameSource yields decoded frames in display order. Next returns io.EOF
// after the last frame.
type FrameSource interface {
	Next(ctx context.Context) (*vision.Frame, error)
	Width() int
	Height() int
	Close() error
}

// FrameSink consumes processed frames in display order.
type FrameSink interface {
	Write(ctx context.Context, frame *vision.Frame) error
	Close() error
}

// DecodeOptions configures an ffmpeg decode session.
type DecodeOptions struct {
	Binary string
	Path   string
	Info   Info
	// MaxHeight caps the decoded resolution; taller inputs are downscaled
	// preserving aspect ratio. Zero disables scaling.
	MaxHeight int
}

// Decoder streams rgb24 frames from an ffmpeg child process.
type Decoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *stderrBuffer
	width  int
	height int
	index  int
	buf    []byte

	closeOnce sync.Once
	waitErr   error
}

// targetDimensions computes the decode resolution after the MaxHeight cap.
// Widths are rounded to even values, which libx264 requires downstream.
func targetDimensions(info Info, maxHeight int) (int, int) {
	if maxHeight <= 0 || info.Height <= maxHeight {
		return info.Width, info.Height
	}
	width := info.Width * maxHeight / info.Height
	if width%2 != 0 {
		width--
	}
	if width < 2 {
		width = 2
	}
	return width, maxHeight
}

func decodeArgs(opts DecodeOptions) []string {
	width, height := targetDimensions(opts.Info, opts.MaxHeight)
	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", opts.Path,
	}
	if width != opts.Info.Width || height != opts.Info.Height {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	return args
}

// OpenDecoder starts ffmpeg and returns a FrameSource over its stdout.
func OpenDecoder(ctx context.Context, opts DecodeOptions) (*Decoder, error) {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	width, height := targetDimensions(opts.Info, opts.MaxHeight)

	cmd := exec.CommandContext(ctx, binary, decodeArgs(opts)...)
	stderr := &stderrBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("decoder: start %s: %w", binary, err)
	}

	return &Decoder{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}, nil
}

func (d *Decoder) Width() int  { return d.width }
func (d *Decoder) Height() int { return d.height }

// Next reads one frame. A short read at stream end surfaces ffmpeg's stderr
// instead of a bare unexpected-EOF.
func (d *Decoder) Next(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, err := io.ReadFull(d.stdout, d.buf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("decoder: frame %d: %w: %s", d.index, err, d.stderr.String())
	}

	frame := vision.NewFrame(d.index, d.width, d.height)
	rgbToRGBA(d.buf, frame.Img.Pix)
	d.index++
	return frame, nil
}

// Close reaps the child process. Safe to call after a partial read.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.stdout.Close()
		err := d.cmd.Wait()
		if err != nil && !strings.Contains(err.Error(), "broken pipe") {
			d.waitErr = fmt.Errorf("decoder: %w: %s", err, d.stderr.String())
		}
	})
	return d.waitErr
}

func rgbToRGBA(src, dst []byte) {
	si, di := 0, 0
	for si+2 < len(src) && di+3 < len(dst) {
		dst[di] = src[si]
		dst[di+1] = src[si+1]
		dst[di+2] = src[si+2]
		dst[di+3] = 0xFF
		si += 3
		di += 4
	}
}
