package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"subclean/internal/config"
)

// TaskConfig is the processing snapshot captured when a task is submitted.
// It pins the knobs that affect output quality so a task's result does not
// change meaning if the daemon config is edited while the task is queued.
type TaskConfig struct {
	MaxResolution      int     `json:"max_resolution"`
	InpaintRadius      int     `json:"inpaint_radius"`
	IntensityThreshold float64 `json:"intensity_threshold"`
	FrameErrorCeiling  float64 `json:"frame_error_ceiling"`
}

// Overrides carries the optional per-request knobs a caller may submit.
// Zero values mean "use the daemon default".
type Overrides struct {
	MaxResolution      int     `json:"max_resolution,omitempty"`
	InpaintRadius      int     `json:"inpaint_radius,omitempty"`
	IntensityThreshold float64 `json:"intensity_threshold,omitempty"`
}

// SnapshotConfig merges caller overrides onto daemon defaults.
func SnapshotConfig(cfg *config.Config, ov Overrides) TaskConfig {
	snapshot := TaskConfig{
		MaxResolution:      cfg.Processing.MaxResolution,
		InpaintRadius:      cfg.Processing.InpaintRadius,
		IntensityThreshold: cfg.Processing.SubtitleIntensityThreshold,
		FrameErrorCeiling:  cfg.Processing.FrameErrorCeiling,
	}
	if ov.MaxResolution > 0 {
		snapshot.MaxResolution = ov.MaxResolution
	}
	if ov.InpaintRadius > 0 {
		snapshot.InpaintRadius = ov.InpaintRadius
	}
	if ov.IntensityThreshold > 0 {
		snapshot.IntensityThreshold = ov.IntensityThreshold
	}
	return snapshot
}

// MarshalTaskConfig serializes a snapshot for storage on the task row.
func MarshalTaskConfig(tc TaskConfig) (string, error) {
	raw, err := json.Marshal(tc)
	if err != nil {
		return "", fmt.Errorf("marshal task config: %w", err)
	}
	return string(raw), nil
}

// ParseTaskConfig restores a stored snapshot, falling back to daemon
// defaults when the task predates the field or carries no snapshot.
func ParseTaskConfig(cfg *config.Config, raw string) (TaskConfig, error) {
	snapshot := SnapshotConfig(cfg, Overrides{})
	if strings.TrimSpace(raw) == "" {
		return snapshot, nil
	}
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return TaskConfig{}, fmt.Errorf("parse task config: %w", err)
	}
	if snapshot.MaxResolution <= 0 {
		snapshot.MaxResolution = cfg.Processing.MaxResolution
	}
	if snapshot.InpaintRadius <= 0 {
		snapshot.InpaintRadius = cfg.Processing.InpaintRadius
	}
	if snapshot.IntensityThreshold <= 0 {
		snapshot.IntensityThreshold = cfg.Processing.SubtitleIntensityThreshold
	}
	if snapshot.FrameErrorCeiling <= 0 || snapshot.FrameErrorCeiling > 1 {
		snapshot.FrameErrorCeiling = cfg.Processing.FrameErrorCeiling
	}
	return snapshot, nil
}
