package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	RulesPath string `toml:"rules_path"`
	APIBind   string `toml:"api_bind"`
}

// Processing contains the per-task tuning knobs callers may override.
type Processing struct {
	MaxResolution              int     `toml:"max_resolution"`
	InpaintRadius              int     `toml:"inpaint_radius"`
	SubtitleIntensityThreshold float64 `toml:"subtitle_intensity_threshold"`
	FrameErrorCeiling          float64 `toml:"frame_error_ceiling"`
	MaxInputMB                 int     `toml:"max_input_mb"`
}

// Detection contains OCR engine configuration.
type Detection struct {
	Languages     string  `toml:"languages"`
	MinConfidence float64 `toml:"min_confidence"`
	MinRegionPx   int     `toml:"min_region_px"`
}

// Mask contains temporal smoothing and padding configuration.
type Mask struct {
	PaddingPx     int `toml:"padding_px"`
	ConfirmFrames int `toml:"confirm_frames"`
	HoldFrames    int `toml:"hold_frames"`
	WindowFrames  int `toml:"window_frames"`
}

// Workers contains worker pool and daemon timing configuration.
type Workers struct {
	Count              int `toml:"count"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Storage contains object storage delivery configuration. Delivery falls back
// to local output paths when no bucket is configured.
type Storage struct {
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	EndpointURL    string `toml:"endpoint_url"`
	Region         string `toml:"region"`
	PublicBaseURL  string `toml:"public_base_url"`
	PresignSeconds int    `toml:"presign_seconds"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Callback contains webhook delivery configuration.
type Callback struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	MaxRetries     int `toml:"max_retries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for subclean.
//
// Configuration sections by subsystem:
//   - Paths: directories, rule file, and API bind address
//   - Processing: resolution cap, inpaint radius, classifier floor
//   - Detection: OCR languages and confidence floor
//   - Mask: padding and hysteresis windows
//   - Workers: pool sizing and daemon polling intervals
//   - Storage: optional S3 delivery
//   - Callback: webhook retry behavior
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Processing Processing `toml:"processing"`
	Detection  Detection  `toml:"detection"`
	Mask       Mask       `toml:"mask"`
	Workers    Workers    `toml:"workers"`
	Storage    Storage    `toml:"storage"`
	Callback   Callback   `toml:"callback"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subclean/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subclean.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for decode/encode.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for input probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// TesseractBinary returns the OCR executable name.
func (c *Config) TesseractBinary() string {
	return "tesseract"
}

// MaxInputBytes returns the input size precondition in bytes.
func (c *Config) MaxInputBytes() int64 {
	return int64(c.Processing.MaxInputMB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
