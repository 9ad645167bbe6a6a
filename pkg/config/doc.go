// Package config handles configuration management for elevlink.
// It loads embedded TOML defaults, an optional user TOML file and
// ELEVLINK_ environment overrides, in that order.
package config
