// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping [command]",
	Short: "Test the command round trip by running a command repeatedly",
	Long: `Run a cheap command (os-info by default) several times and report each
round-trip time.

This is useful for verifying:
  - The transport is established (serial, WebSocket bridge or BLE)
  - Commands are echoed and their responses framed correctly
  - Response latency is stable

When the response carries an uptime field in milliseconds it is shown.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	name := "os-info"
	if len(args) == 1 {
		name = args[0]
	}

	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Disconnect()

	fmt.Printf("Somnium - Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Command: %s\n", name)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var totalRTT time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		command := aurora.NewCommand(name).WithTimeout(time.Duration(pingTimeout) * time.Second)
		res, err := conn.Submit(cmd.Context(), command)

		switch {
		case errors.Is(err, aurora.ErrTimeout):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		case res.Error:
			fmt.Printf("DEVICE ERROR, rtt=%v\n", res.Duration.Round(time.Millisecond))
			failCount++
		default:
			totalRTT += res.Duration
			successCount++
			if uptime, ok := responseUptime(res); ok {
				fmt.Printf("OK, uptime=%s, rtt=%v\n", formatUptime(uptime), res.Duration.Round(time.Millisecond))
			} else {
				fmt.Printf("OK, rtt=%v\n", res.Duration.Round(time.Millisecond))
			}
		}

		if errors.Is(err, aurora.ErrLostConnection) || errors.Is(err, aurora.ErrNotConnected) {
			break
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(pingCount-successCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (totalRTT / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 || successCount < pingCount {
		os.Exit(1)
	}
	return nil
}

// responseUptime finds a numeric uptime key in an object response.
func responseUptime(res *aurora.Result) (uint64, bool) {
	obj := res.Object()
	if obj == nil {
		return 0, false
	}
	for _, key := range obj.Keys() {
		if !strings.EqualFold(key, "uptime") {
			continue
		}
		v, _ := obj.Get(key)
		if ms, ok := v.(float64); ok && ms >= 0 {
			return uint64(ms), true
		}
	}
	return 0, false
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n uint64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
