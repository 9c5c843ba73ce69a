// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	c, err := New(dir)
	require.NoError(t, err)

	// A default config file is created at the given directory.
	path := filepath.Join(dir, "config.toml")
	assert.FileExists(t, path)
	assert.Equal(t, path, c.ConfigFile())

	assert.Equal(t, "127.0.0.1", c.Config.Host)
	assert.Equal(t, 7575, c.Config.Port)
	assert.Equal(t, "INFO", c.Config.LogLevel)
	assert.False(t, c.Config.MetricsEnabled)
}

func TestNewReadsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
host = "0.0.0.0"
port = 8080
apiKey = "from-file"
logLevel = "DEBUG"
pollIntervalActive = 15
`), 0o644))

	c, err := New(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", c.Config.Host)
	assert.Equal(t, 8080, c.Config.Port)
	assert.Equal(t, "from-file", c.Config.APIKey)
	assert.Equal(t, "DEBUG", c.Config.LogLevel)
	assert.Equal(t, 15, c.Config.PollIntervalActive)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
apiKey = "from-file"
port = 8080
`), 0o644))

	t.Setenv("TORBOXD__APIKEY", "from-env")
	t.Setenv("TORBOXD__PORT", "9090")

	c, err := New(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", c.Config.APIKey)
	assert.Equal(t, 9090, c.Config.Port)
}
