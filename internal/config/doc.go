// Package config loads, normalizes, and validates subselect configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files, and honours environment
// fallbacks such as OPENSUBTITLES_API_KEY. The Config type centralizes every
// knob the daemon and CLI need so the store location and OpenSubtitles
// credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
