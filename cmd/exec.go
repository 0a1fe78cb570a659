// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

var (
	execType      string
	execErrorType string
	execTimeout   time.Duration
	execJSON      bool
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Run one command on the device and print its result",
	Long: `Connect, send one command line and print the decoded response.

The response body is folded according to --type: "object" decodes
key: value lines or a pipe table, "array" returns the non-blank lines and
"string" returns the raw text. Device errors are decoded with --error-type.

Packet-mode transfers are collected and summarized.

Exit codes:
  0 - Command succeeded
  1 - Device reported an error, or the command failed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVar(&execType, "type", "object", "Response type: string, array or object")
	execCmd.Flags().StringVar(&execErrorType, "error-type", "object", "Error response type: string, array or object")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Response timeout (default from config)")
	execCmd.Flags().BoolVar(&execJSON, "json", false, "Print the result as JSON")
}

// execResult is the JSON rendering of a command result.
type execResult struct {
	Command    string `json:"command"`
	Origin     string `json:"origin"`
	Error      bool   `json:"error"`
	Response   any    `json:"response"`
	Packets    int    `json:"packets,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

func buildCommand(args []string) (*aurora.Command, error) {
	success, err := aurora.ParseResponseType(execType)
	if err != nil {
		return nil, err
	}
	failure, err := aurora.ParseResponseType(execErrorType)
	if err != nil {
		return nil, err
	}

	cmdArgs := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		cmdArgs = append(cmdArgs, a)
	}
	command := aurora.NewCommand(args[0], cmdArgs...).WithResponseTypes(success, failure)

	timeout := execTimeout
	if timeout <= 0 {
		timeout = cfg.Command.Timeout
	}
	return command.WithTimeout(timeout), nil
}

func runExec(cmd *cobra.Command, args []string) error {
	command, err := buildCommand(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	conn, _, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	res, err := conn.Submit(ctx, command)
	if err != nil {
		var cmdErr *aurora.CommandError
		if errors.As(err, &cmdErr) {
			return fmt.Errorf("%s", cmdErr.Message)
		}
		return err
	}

	if err := printResult(cmd.OutOrStdout(), res, execJSON); err != nil {
		return err
	}
	if res.Error {
		return fmt.Errorf("device reported an error for %q", res.Command)
	}
	return nil
}

func printResult(w io.Writer, res *aurora.Result, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprint(w, aurora.FormatResult(res))
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(execResult{
		Command:    res.Command,
		Origin:     string(res.Origin),
		Error:      res.Error,
		Response:   res.Response,
		Packets:    len(res.Packets),
		DurationMs: res.Duration.Milliseconds(),
	})
}
