// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test raw link stability",
	Long: `Hold the transport open without sending any command.

This command opens the link and just waits, logging every framing event
received and any error encountered. Useful for debugging connection
stability of the serial port, the WebSocket bridge or the BLE link.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runLinkTest,
}

var linkTestDuration int

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
}

// kindCounts renders per-kind event counts in a stable order.
func kindCounts(counts map[string]int) string {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	s := ""
	for _, k := range kinds {
		s += fmt.Sprintf("  %-16s %d\n", k+":", counts[k])
	}
	return s
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	t, connInfo, err := NewTransport(cfg, transportName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	events := make(chan aurora.Event, 100)
	ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout(cfg, transportName))
	err = t.Open(ctx, func(ev aurora.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Close()

	fmt.Printf("Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	start := time.Now()
	endTime := start.Add(time.Duration(linkTestDuration) * time.Second)
	counts := map[string]int{}

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case ev := <-events:
			if d, ok := ev.(aurora.Disconnected); ok {
				fmt.Printf("\n[%s] Connection error: %v\n",
					time.Now().Format("15:04:05.000"), d.Err)
				fmt.Printf("\n--- Test Results ---\n")
				fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
				fmt.Print(kindCounts(counts))
				fmt.Printf("Result: FAILED (connection error)\n")
				os.Exit(1)
			}
			counts[aurora.EventKind(ev)]++
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), aurora.FormatEvent(ev))

		case <-time.After(1 * time.Second):
			// Just a heartbeat to show the test is running
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %d seconds\n", linkTestDuration)
	fmt.Print(kindCounts(counts))
	fmt.Printf("Result: PASSED (connection stable)\n")

	return nil
}
