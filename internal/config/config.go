// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads and watches the TOML configuration file. Environment
// variables with the TORBOXD__ prefix override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/torboxd/internal/buildinfo"
	"github.com/autobrr/torboxd/internal/domain"
)

const envPrefix = "TORBOXD_"

var configTemplate = `# torboxd configuration
# Environment variables with the TORBOXD__ prefix override these values,
# e.g. TORBOXD__APIKEY, TORBOXD__LOGLEVEL.

# Address the HTTP API binds to.
host = "127.0.0.1"
port = 7575

# TorBox API key (required).
apiKey = ""

# Override for self-hosted API deployments. Leave empty for the hosted API.
#apiEndpoint = "https://api.torbox.app"

# Log level: TRACE, DEBUG, INFO, WARN, ERROR.
logLevel = "INFO"

# Optional log file. Empty logs to stderr only.
#logPath = "torboxd.log"

# Prometheus metrics endpoint.
metricsEnabled = false
metricsHost = "127.0.0.1"
metricsPort = 9074
`

// AppConfig wraps the parsed configuration and keeps it fresh while the
// config file changes on disk.
type AppConfig struct {
	Config *domain.Config

	viper *viper.Viper
	mu    sync.Mutex
}

func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()
	c.viper.SetEnvPrefix(envPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	if err := c.load(configPath); err != nil {
		return nil, err
	}
	if err := c.unmarshal(); err != nil {
		return nil, err
	}

	c.watch()
	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "127.0.0.1")
	c.viper.SetDefault("port", 7575)
	c.viper.SetDefault("baseUrl", "/")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("apiKey", "")
	c.viper.SetDefault("apiEndpoint", "")
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("metricsHost", "127.0.0.1")
	c.viper.SetDefault("metricsPort", 9074)
	c.viper.SetDefault("pollIntervalActive", 0)
	c.viper.SetDefault("pollIntervalReduced", 0)
}

// load reads the config file, creating a default one when the given path (or
// the default location) has none yet.
func (c *AppConfig) load(configPath string) error {
	c.viper.SetConfigType("toml")

	if configPath != "" {
		if filepath.Ext(configPath) == "" {
			configPath = filepath.Join(configPath, "config.toml")
		}
		if err := c.writeDefault(configPath); err != nil {
			return err
		}
		c.viper.SetConfigFile(configPath)
	} else {
		configDir, err := defaultConfigDir()
		if err != nil {
			return err
		}
		if err := c.writeDefault(filepath.Join(configDir, "config.toml")); err != nil {
			return err
		}
		c.viper.AddConfigPath(configDir)
		c.viper.SetConfigName("config")
	}

	return c.viper.ReadInConfig()
}

func defaultConfigDir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "torboxd"), nil
}

// writeDefault creates the config file from the template when it does not
// exist yet.
func (c *AppConfig) writeDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("writing default config file")
	return os.WriteFile(path, []byte(configTemplate), 0o644)
}

// ConfigFile returns the path of the loaded config file.
func (c *AppConfig) ConfigFile() string {
	return c.viper.ConfigFileUsed()
}

func (c *AppConfig) unmarshal() error {
	cfg := &domain.Config{Version: buildinfo.Version}
	if err := c.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	c.mu.Lock()
	c.Config = cfg
	c.mu.Unlock()
	return nil
}

// watch reloads dynamic settings when the config file changes. Only the log
// level applies live; everything else needs a restart.
func (c *AppConfig) watch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Debug().Str("file", e.Name).Msg("config file changed")

		level := c.viper.GetString("logLevel")
		c.mu.Lock()
		if c.Config != nil && c.Config.LogLevel != level {
			c.Config.LogLevel = level
			if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
				zerolog.SetGlobalLevel(parsed)
				log.Info().Str("logLevel", level).Msg("log level updated")
			}
		}
		c.mu.Unlock()
	})
	c.viper.WatchConfig()
}
