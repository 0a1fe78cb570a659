// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/internal/publish"
	"github.com/Thermoquad/somnium/internal/recorder"
	"github.com/Thermoquad/somnium/pkg/aurora"
)

var (
	replayKind string
	replayJSON bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a notification capture",
	Long: `Print the notifications stored in a CBOR capture written by
"somnium monitor --record".

--kind keeps one kind of notification (log, aurora_event, data_sample,
stream_data, unknown_line, parse_error). --json prints one JSON document per
line in the same shape as the Redis publisher.`,
	Args: cobra.ExactArgs(1),
	// No device is involved.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayKind, "kind", "", "Only show notifications of this kind")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print JSON lines")
}

func runReplay(cmd *cobra.Command, args []string) error {
	r, err := recorder.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	n, err := replay(r, cmd.OutOrStdout(), replayKind, replayJSON)
	if err != nil {
		return fmt.Errorf("%s: record %d: %w", args[0], n+1, err)
	}
	return nil
}

// replay prints every entry of r and returns the number read.
func replay(r *recorder.Reader, out io.Writer, kind string, asJSON bool) (int, error) {
	enc := json.NewEncoder(out)
	n := 0
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++

		if kind != "" && aurora.EventKind(entry.Event) != kind {
			continue
		}
		if asJSON {
			if err := enc.Encode(publish.NewMessage(entry.Origin, entry.Event)); err != nil {
				return n, err
			}
			continue
		}
		fmt.Fprintf(out, "%-3s %s\n", entry.Origin, aurora.FormatEvent(entry.Event))
	}
}
