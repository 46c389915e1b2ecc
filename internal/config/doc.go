// Package config loads, normalizes, and validates framesel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FRAMESEL_CACHE_DIR. The Config type centralizes every knob the CLI and the
// thumbnail pipeline need: where the content-addressed thumbnail cache and the
// frame registry live, how long the pipeline waits for the host renderer to
// settle, and how the drawing monitor samples and debounces.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
