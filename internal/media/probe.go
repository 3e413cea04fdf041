package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Info summarizes the probed properties of an input video.
type Info struct {
	Width           int
	Height          int
	FrameRate       float64
	DurationSeconds float64
	SizeBytes       int64
	VideoCodec      string
	HasAudio        bool
}

// EstimatedFrames returns the expected frame count, or 0 when duration or
// frame rate is unknown. Progress reporting only; the decoder runs to EOF.
func (i Info) EstimatedFrames() int64 {
	if i.FrameRate <= 0 || i.DurationSeconds <= 0 {
		return 0
	}
	return int64(math.Round(i.DurationSeconds * i.FrameRate))
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Probe executes ffprobe against path and extracts the metadata the pipeline
// needs. Inputs without a video stream are rejected here rather than deep in
// the decode loop.
func Probe(ctx context.Context, binary string, path string) (Info, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Info{}, errors.New("probe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Info{}, fmt.Errorf("probe: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (Info, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return Info{}, fmt.Errorf("probe parse: %w", err)
	}

	info := Info{
		DurationSeconds: parseFloat(result.Format.Duration),
		SizeBytes:       int64(parseFloat(result.Format.Size)),
	}
	for _, stream := range result.Streams {
		switch strings.ToLower(stream.CodecType) {
		case "video":
			if info.Width != 0 {
				continue // first video stream wins
			}
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			info.FrameRate = parseRate(stream.AvgFrameRate)
			if info.FrameRate <= 0 {
				info.FrameRate = parseRate(stream.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if info.Width <= 0 || info.Height <= 0 {
		return Info{}, errors.New("probe: no video stream found")
	}
	return info, nil
}

// parseRate parses ffprobe's rational frame rates ("30000/1001", "25/1").
func parseRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" || value == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
