package media

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"subclean/internal/vision"
)

// EncodeOptions configures an ffmpeg encode session.
type EncodeOptions struct {
	Binary     string
	OutputPath string
	// SourcePath is the original input; when set and the input carries audio,
	// its audio track is copied through untouched.
	SourcePath string
	Width      int
	Height     int
	FrameRate  float64
	CopyAudio  bool
	// CRF is the libx264 quality factor. Zero selects the default.
	CRF int
}

const defaultCRF = 20

// Encoder streams rgb24 frames into an ffmpeg child process producing an
// H.264 MP4.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *stderrBuffer
	buf    []byte
	width  int
	height int

	closeOnce sync.Once
	waitErr   error
}

func encodeArgs(opts EncodeOptions) []string {
	frameRate := opts.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}
	crf := opts.CRF
	if crf <= 0 {
		crf = defaultCRF
	}

	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.FormatFloat(frameRate, 'f', -1, 64),
		"-i", "pipe:0",
	}
	if opts.CopyAudio && opts.SourcePath != "" {
		args = append(args,
			"-i", opts.SourcePath,
			"-map", "0:v:0",
			"-map", "1:a:0?",
			"-c:a", "copy",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		opts.OutputPath,
	)
	return args
}

// OpenEncoder starts ffmpeg and returns a FrameSink over its stdin.
func OpenEncoder(ctx context.Context, opts EncodeOptions) (*Encoder, error) {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("encoder: invalid dimensions %dx%d", opts.Width, opts.Height)
	}

	cmd := exec.CommandContext(ctx, binary, encodeArgs(opts)...)
	stderr := &stderrBuffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder: start %s: %w", binary, err)
	}

	return &Encoder{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		buf:    make([]byte, opts.Width*opts.Height*3),
		width:  opts.Width,
		height: opts.Height,
	}, nil
}

// Write sends one frame. Frames must match the session dimensions.
func (e *Encoder) Write(ctx context.Context, frame *vision.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if frame.Width() != e.width || frame.Height() != e.height {
		return fmt.Errorf("encoder: frame %d is %dx%d, session is %dx%d",
			frame.Index, frame.Width(), frame.Height(), e.width, e.height)
	}
	rgbaToRGB(frame.Img.Pix, e.buf)
	if _, err := e.stdin.Write(e.buf); err != nil {
		return fmt.Errorf("encoder: frame %d: %w: %s", frame.Index, err, e.stderr.String())
	}
	return nil
}

// Close ends the stream and waits for ffmpeg to finalize the container.
// The output file is not valid until Close returns nil.
func (e *Encoder) Close() error {
	e.closeOnce.Do(func() {
		e.stdin.Close()
		if err := e.cmd.Wait(); err != nil {
			e.waitErr = fmt.Errorf("encoder: %w: %s", err, e.stderr.String())
		}
	})
	return e.waitErr
}

func rgbaToRGB(src, dst []byte) {
	si, di := 0, 0
	for si+3 < len(src) && di+2 < len(dst) {
		dst[di] = src[si]
		dst[di+1] = src[si+1]
		dst[di+2] = src[si+2]
		si += 4
		di += 3
	}
}
