// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/somnium/internal/ble"
	"github.com/Thermoquad/somnium/internal/config"
	"github.com/Thermoquad/somnium/internal/usb"
	"github.com/Thermoquad/somnium/pkg/aurora"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("SOMNIUM_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// parserOptions returns the framing parser options from the config.
func parserOptions(c *config.Config) []aurora.ParserOption {
	return []aurora.ParserOption{aurora.WithWatchdog(c.Command.Watchdog)}
}

// NewTransport builds the transport selected by --transport. The returned
// string describes the link for display.
func NewTransport(c *config.Config, transport string) (aurora.Transport, string, error) {
	if transport == "ble" {
		target := ble.Target{Address: c.BLE.Address, Name: c.BLE.Name}
		t := ble.New(ble.NewAdapter(), target,
			ble.WithLogger(logger),
			ble.WithAttempts(c.BLE.Attempts, ble.DefaultRetryDelay),
			ble.WithParserOptions(parserOptions(c)...),
		)
		info := "Bluetooth: first " + target.Name + " in range"
		if target.Address != "" {
			info = "Bluetooth: " + target.Address
		}
		return t, info, nil
	}

	opts := []usb.Option{
		usb.WithLogger(logger),
		usb.WithReadBuffer(c.USB.ReadBufferLen),
		usb.WithParserOptions(parserOptions(c)...),
	}

	if c.USB.URL != "" {
		password := ""
		if c.USB.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		dial := usb.WebSocketDialer(c.USB.URL, c.USB.Username, password, c.USB.NoSSLVerify)
		return usb.New(dial, opts...), fmt.Sprintf("WebSocket: %s", c.USB.URL), nil
	}

	if c.USB.Port != "" {
		dial := usb.SerialDialer(c.USB.Port, c.USB.Baud)
		return usb.New(dial, opts...), fmt.Sprintf("Serial: %s @ %d baud", c.USB.Port, c.USB.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified for the usb transport")
}

// connectTimeout is the connect bound for transport. BLE scanning may take
// longer than opening a port.
func connectTimeout(c *config.Config, transport string) time.Duration {
	if transport == "ble" && c.BLE.ScanTimeout > c.Command.ConnectTimeout {
		return c.BLE.ScanTimeout
	}
	return c.Command.ConnectTimeout
}

// OpenConnection builds the selected transport and connects it.
func OpenConnection(ctx context.Context, opts ...aurora.Option) (*aurora.Connection, string, error) {
	t, info, err := NewTransport(cfg, transportName)
	if err != nil {
		return nil, "", err
	}

	opts = append([]aurora.Option{aurora.WithLogger(logger)}, opts...)
	conn := aurora.NewConnection(t, opts...)
	if err := conn.Connect(ctx, connectTimeout(cfg, transportName)); err != nil {
		return nil, "", fmt.Errorf("%s: %w", info, err)
	}
	return conn, info, nil
}
