// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

var (
	promptTestTimeout int
	promptTestCommand string
)

var promptTestCmd = &cobra.Command{
	Use:   "prompt_test",
	Short: "Test connection by waiting for a valid framing event",
	Long: `Wait for any valid framing event on the connection until timeout.

This command opens the transport and waits for the device to say anything
the framing parser understands: a log line, an event, a stream sample or a
command echo. Parse errors are counted and ignored.

With --command the given line is sent once the link is open, which makes
the device echo it back.

Exit codes:
  0 - Event received before timeout
  1 - Timeout reached without receiving a valid event
  2 - Connection error

Useful for testing connectivity to an Aurora or a serial WebSocket bridge.`,
	RunE: runPromptTest,
}

func init() {
	rootCmd.AddCommand(promptTestCmd)
	promptTestCmd.Flags().IntVar(&promptTestTimeout, "timeout", 10, "Timeout in seconds to wait for an event")
	promptTestCmd.Flags().StringVar(&promptTestCommand, "command", "", "Command line to send after connecting")
}

// firstEvent returns a handler that delivers the first non-error event and
// counts parse errors before it.
func firstEvent(events chan<- aurora.Event, parseErrors *atomic.Int64) aurora.EventHandler {
	return func(ev aurora.Event) {
		if _, ok := ev.(aurora.ParseError); ok {
			parseErrors.Add(1)
			return
		}
		select {
		case events <- ev:
		default:
		}
	}
}

func runPromptTest(cmd *cobra.Command, args []string) error {
	t, connInfo, err := NewTransport(cfg, transportName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	timeout := time.Duration(promptTestTimeout) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	events := make(chan aurora.Event, 1)
	var parseErrors atomic.Int64
	if err := t.Open(ctx, firstEvent(events, &parseErrors)); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Close()

	fmt.Printf("Somnium - Prompt Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", promptTestTimeout)
	fmt.Printf("Waiting for a valid framing event...\n\n")

	if promptTestCommand != "" {
		if err := t.SendCommand(promptTestCommand); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
	}

	select {
	case ev := <-events:
		if d, ok := ev.(aurora.Disconnected); ok {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", d.Err)
			os.Exit(2)
		}
		if n := parseErrors.Load(); n > 0 {
			fmt.Printf("(skipped %d parse errors first)\n", n)
		}
		fmt.Printf("SUCCESS: Received %s\n", aurora.EventKind(ev))
		fmt.Printf("  %s\n", aurora.FormatEvent(ev))
		os.Exit(0)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid event received within %d seconds\n", promptTestTimeout)
		os.Exit(1)
	}

	return nil
}
