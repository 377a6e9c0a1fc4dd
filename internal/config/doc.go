// Package config loads, normalizes, and validates scanmaster configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY and SCANMASTER_API_TOKEN. The Config type centralizes every
// knob the daemon, the reference backend and the CLI need.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, parsed size limits, and clear validation errors.
package config
