// Package config loads bridge configuration from baseline defaults,
// DCB_* environment overrides, and an optional config.yaml file.
package config
