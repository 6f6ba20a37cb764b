// Package config loads, validates, and defaults vietdub's TOML configuration.
//
// Configuration resolves from an explicit path, then ~/.config/vietdub/config.toml,
// then ./vietdub.toml. Missing files fall back to defaults so the daemon can run
// without any configuration for local-only pipelines.
package config
