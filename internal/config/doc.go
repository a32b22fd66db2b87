// Package config loads, normalizes, and validates labmq configuration data.
//
// It bakes in bench defaults, expands tilde paths, decodes the TOML config
// file, and applies environment overrides such as LABMQ_BROKER_URL. The
// Config type centralizes every knob the daemon and CLI need, so broker
// addresses, instrument limits, and data directories are discovered in one
// pass.
//
// Obtain settings through this package rather than reading files directly;
// callers then see sanitized paths, canonical log formats, and clear
// validation errors.
package config
