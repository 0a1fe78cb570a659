// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "somnium.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
usb:
  port: /dev/ttyACM0
command:
  timeout: 30s
log:
  level: debug
  format: json
redis:
  enabled: true
  channel: bedroom
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.USB.Port)
	assert.Equal(t, 115200, cfg.USB.Baud)
	assert.Equal(t, 30*time.Second, cfg.Command.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Command.Watchdog)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "bedroom", cfg.Redis.Channel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "usb: [not, a, map]\n"))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = Load(writeConfig(t, "usb:\n  baud: 0\n"))
	assert.ErrorContains(t, err, "usb.baud")

	_, err = Load(writeConfig(t, "log:\n  format: xml\n"))
	assert.ErrorContains(t, err, "log.format")
}

func TestSetupLogger(t *testing.T) {
	log := SetupLogger(LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log = SetupLogger(LogConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	path := filepath.Join(t.TempDir(), "somnium.log")
	log = SetupLogger(LogConfig{Level: "info", Output: "file", FilePath: path})
	log.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
