// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"strings"
)

// Config represents the application configuration
type Config struct {
	Version string

	Host    string `toml:"host" mapstructure:"host"`
	Port    int    `toml:"port" mapstructure:"port"`
	BaseURL string `toml:"baseUrl" mapstructure:"baseUrl"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	DataDir string `toml:"dataDir" mapstructure:"dataDir"`

	// TorBox API access. The API key is required; the endpoint override is
	// for self-hosted deployments and test servers.
	APIKey      string `toml:"apiKey" mapstructure:"apiKey"`
	APIEndpoint string `toml:"apiEndpoint" mapstructure:"apiEndpoint"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`

	// Polling cadence overrides in seconds. Zero means the built-in default
	// (10s foreground, 60s background with auto-start, 300s with automation
	// rules). The rate limiter floors are not configurable.
	PollIntervalActive  int `toml:"pollIntervalActive" mapstructure:"pollIntervalActive"`
	PollIntervalReduced int `toml:"pollIntervalReduced" mapstructure:"pollIntervalReduced"`
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("apiKey is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}
