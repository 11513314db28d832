// Package config loads, normalizes, and validates emlwatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the EMLWATCH_ROOT environment
// fallback for the watched root. The Config type centralizes every knob the
// daemon and CLI need so the watched tree, dispatch sizing, processor template
// and log destination are discovered in one pass.
//
// Configuration is read once at startup; there is no hot reload.
package config
