// Package config loads, normalizes, and validates subclean configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and centralizes every knob the daemon and CLI
// need: processing limits, mask hysteresis windows, worker pool sizing,
// storage delivery, and callback behavior.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
