// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/internal/config"
)

var (
	configPath    string
	transportName string
	logLevel      string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Bluetooth flags
	bleAddress string

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "somnium",
	Short: "Aurora sleep tracker host driver",
	Long: `Somnium - A CLI tool for driving an Aurora sleep tracker.

Sends commands to the device, decodes its text and packet responses, and
follows its out-of-band log lines, events and stream data.

Transports:
  usb: --port /dev/ttyACM0 [--baud 115200]
       --url ws://host/path [--username user]   (serial-over-WebSocket bridge)
  ble: [--address AA:BB:CC:DD:EE:FF]             (first Aurora seen if omitted)

For WebSocket authentication, the password is read from the SOMNIUM_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Flags override values from the --config file.`,
	Version:           "0.4.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&transportName, "transport", "t", "usb", "Transport: usb or ble")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bluetooth flags
	rootCmd.PersistentFlags().StringVar(&bleAddress, "address", "", "Bluetooth device address (ble only)")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.USB.Port = portName
	}
	if flags.Changed("baud") {
		c.USB.Baud = baudRate
	}
	if flags.Changed("url") {
		c.USB.URL = wsURL
	}
	if flags.Changed("username") {
		c.USB.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.USB.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("address") {
		c.BLE.Address = bleAddress
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}

	switch transportName {
	case "usb", "ble":
	default:
		return fmt.Errorf("unknown transport %q (use usb or ble)", transportName)
	}

	cfg = c
	logger = config.SetupLogger(c.Log)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
