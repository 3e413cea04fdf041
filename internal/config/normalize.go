package config

import (
	"fmt"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeDetection()
	c.normalizeMask()
	c.normalizeWorkers()
	c.normalizeStorage()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RulesPath) != "" {
		if c.Paths.RulesPath, err = expandPath(c.Paths.RulesPath); err != nil {
			return fmt.Errorf("paths.rules_path: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	if c.Processing.MaxResolution <= 0 {
		c.Processing.MaxResolution = defaultMaxResolution
	}
	if c.Processing.InpaintRadius <= 0 {
		c.Processing.InpaintRadius = defaultInpaintRadius
	}
	if c.Processing.MaxInputMB <= 0 {
		c.Processing.MaxInputMB = defaultMaxInputMB
	}
	if c.Processing.FrameErrorCeiling <= 0 {
		c.Processing.FrameErrorCeiling = defaultFrameErrorCeiling
	}
}

func (c *Config) normalizeDetection() {
	if strings.TrimSpace(c.Detection.Languages) == "" {
		c.Detection.Languages = defaultOCRLanguages
	}
	if c.Detection.MinRegionPx <= 0 {
		c.Detection.MinRegionPx = defaultMinRegionPx
	}
}

func (c *Config) normalizeMask() {
	if c.Mask.PaddingPx < 0 {
		c.Mask.PaddingPx = defaultMaskPaddingPx
	}
	if c.Mask.ConfirmFrames < 1 {
		c.Mask.ConfirmFrames = defaultMaskConfirmFrames
	}
	if c.Mask.HoldFrames < 0 {
		c.Mask.HoldFrames = defaultMaskHoldFrames
	}
	if c.Mask.WindowFrames < c.Mask.ConfirmFrames+c.Mask.HoldFrames {
		c.Mask.WindowFrames = c.Mask.ConfirmFrames + c.Mask.HoldFrames
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Count <= 0 {
		c.Workers.Count = runtime.NumCPU()
	}
	if c.Workers.QueuePollInterval <= 0 {
		c.Workers.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workers.ErrorRetryInterval <= 0 {
		c.Workers.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workers.HeartbeatInterval <= 0 {
		c.Workers.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workers.HeartbeatTimeout <= 0 {
		c.Workers.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.EndpointURL = strings.TrimRight(strings.TrimSpace(c.Storage.EndpointURL), "/")
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
