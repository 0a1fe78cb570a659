// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/internal/ble"
)

var (
	discoveryTimeout int
	discoveryAll     bool
	discoveryJSON    bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover Aurora devices over Bluetooth",
	Long: `Scan for Bluetooth peripherals advertising as an Aurora.

Each device is printed once, as it is first seen. The summary lists every
device with its latest signal strength. Use the address with
"--transport ble --address" to connect to a specific device.

Examples:
  # Scan for ten seconds
  somnium discovery --timeout 10

  # Include every advertising device, not just Auroras
  somnium discovery --all

Exit codes:
  0 - Discovery successful (at least one device found)
  1 - Discovery failed (no devices)
  2 - Bluetooth error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Scan duration in seconds")
	discoveryCmd.Flags().BoolVar(&discoveryAll, "all", false, "List every advertising device")
	discoveryCmd.Flags().BoolVar(&discoveryJSON, "json", false, "Print the summary as JSON")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	target := ble.Target{Address: cfg.BLE.Address, Name: cfg.BLE.Name}
	found := ble.NewDiscovery(target.Matches)
	if discoveryAll {
		found = ble.NewDiscovery(nil)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(discoveryTimeout)*time.Second)
	defer cancel()

	if !discoveryJSON {
		fmt.Printf("Somnium - Device Discovery\n")
		fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)
	}

	err := ble.NewAdapter().Discover(ctx, func(dev ble.Device) {
		if discoveryAll && dev.Name == "" {
			dev.Name = "(unnamed)"
		}
		if found.Add(dev) && !discoveryJSON {
			fmt.Printf("Device found: %s  %s  %d dBm\n", dev.Address, dev.Name, dev.RSSI)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bluetooth error: %v\n", err)
		os.Exit(2)
	}

	devices := found.Devices()
	if discoveryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(devices); err != nil {
			return err
		}
	} else {
		fmt.Printf("\n--- Discovery summary ---\n")
		fmt.Printf("Devices found: %d\n", len(devices))
		for _, dev := range devices {
			fmt.Printf("  %s  %-16s %d dBm\n", dev.Address, dev.Name, dev.RSSI)
		}
	}

	if len(devices) == 0 {
		if !discoveryJSON {
			fmt.Printf("No devices discovered. Check that the Aurora is powered and in range.\n")
		}
		os.Exit(1)
	}
	return nil
}
