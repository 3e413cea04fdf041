package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateMask(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.MaxResolution < 64 {
		return errors.New("processing.max_resolution must be at least 64")
	}
	if c.Processing.InpaintRadius < 1 || c.Processing.InpaintRadius > 64 {
		return errors.New("processing.inpaint_radius must be between 1 and 64")
	}
	if c.Processing.SubtitleIntensityThreshold < 0 || c.Processing.SubtitleIntensityThreshold > 1 {
		return errors.New("processing.subtitle_intensity_threshold must be between 0 and 1")
	}
	if c.Processing.FrameErrorCeiling <= 0 || c.Processing.FrameErrorCeiling > 1 {
		return errors.New("processing.frame_error_ceiling must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return errors.New("detection.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateMask() error {
	if c.Mask.ConfirmFrames < 1 {
		return errors.New("mask.confirm_frames must be at least 1")
	}
	if c.Mask.WindowFrames < c.Mask.ConfirmFrames+c.Mask.HoldFrames {
		return fmt.Errorf("mask.window_frames must cover confirm_frames+hold_frames (%d)", c.Mask.ConfirmFrames+c.Mask.HoldFrames)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Bucket == "" {
		return nil
	}
	if c.Storage.PresignSeconds < 0 {
		return errors.New("storage.presign_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
