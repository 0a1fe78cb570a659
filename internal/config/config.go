// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the somnium configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// Config is the top-level configuration.
type Config struct {
	USB      USBConfig      `yaml:"usb"`
	BLE      BLEConfig      `yaml:"ble"`
	Command  CommandConfig  `yaml:"command"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Recorder RecorderConfig `yaml:"recorder"`
	Redis    RedisConfig    `yaml:"redis"`
}

// USBConfig selects the serial port or the WebSocket bridge.
type USBConfig struct {
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	NoSSLVerify   bool   `yaml:"no_ssl_verify"`
	ReadBufferLen int    `yaml:"read_buffer"`
}

// BLEConfig selects the device to connect to over Bluetooth.
type BLEConfig struct {
	// Address is the device address; empty connects to the first Aurora seen.
	Address     string        `yaml:"address"`
	Name        string        `yaml:"name"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	Attempts    int           `yaml:"attempts"`
}

// CommandConfig holds command and connect timing.
type CommandConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Watchdog       time.Duration `yaml:"watchdog"`
}

// LogConfig configures the logger. See SetupLogger.
type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RecorderConfig configures notification capture.
type RecorderConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig configures the notification publisher.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	// History is the number of notifications kept per kind.
	History int64 `yaml:"history"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		USB: USBConfig{
			Baud:          115200,
			ReadBufferLen: 256,
		},
		BLE: BLEConfig{
			Name:        "Aurora",
			ScanTimeout: aurora.DefaultConnectTimeout,
			Attempts:    3,
		},
		Command: CommandConfig{
			Timeout:        aurora.DefaultCommandTimeout,
			ConnectTimeout: aurora.DefaultConnectTimeout,
			Watchdog:       aurora.WatchdogTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "somnium",
			History: 1000,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.USB.Baud <= 0 {
		return fmt.Errorf("usb.baud must be positive, got %d", c.USB.Baud)
	}
	if c.BLE.Attempts <= 0 {
		return fmt.Errorf("ble.attempts must be positive, got %d", c.BLE.Attempts)
	}
	if c.Command.Timeout <= 0 || c.Command.ConnectTimeout <= 0 || c.Command.Watchdog <= 0 {
		return fmt.Errorf("command timeouts must be positive")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
