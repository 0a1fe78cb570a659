// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

const (
	notificationBatchInterval = 50 * time.Millisecond
	notificationQueueLen      = 256
)

var consoleType string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console for issuing device commands",
	Long: `Type device commands and see their decoded results interleaved with the
device's log lines, events and stream data.

Console directives:
  :type string|array|object   response type for following commands
  :input <text>               send input to the running command
  :stats                      print statistics
  :clear                      clear the log
  :quit                       exit

While a command is running, a plain line is sent as its input. PgUp/PgDn
scroll the log. The link is reconnected with backoff when it drops.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleType, "type", "object", "Initial response type: string, array or object")
}

// consoleSession owns the connection behind the console and forwards its
// notifications and state changes to the program.
type consoleSession struct {
	conn     *aurora.Connection
	connInfo string
	p        *tea.Program
	queue    chan aurora.Event
	done     chan struct{}
}

func runConsole(cmd *cobra.Command, args []string) error {
	responseType, err := aurora.ParseResponseType(consoleType)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}

	s := &consoleSession{
		conn:     conn,
		connInfo: connInfo,
		queue:    make(chan aurora.Event, notificationQueueLen),
		done:     make(chan struct{}),
	}

	m := initialConsoleModel(s, responseType)
	p := tea.NewProgram(m, tea.WithAltScreen())
	s.p = p

	conn.OnNotification(s.enqueue)
	conn.OnStateChange(func(next, prev aurora.State) {
		p.Send(stateMsg{next: next, prev: prev})
	})
	go s.batchLoop()
	go keepConnected(ctx, conn, watchLinkLoss(conn), logger)

	_, runErr := p.Run()
	close(s.done)
	cancel()
	_ = conn.Disconnect()
	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

// enqueue drops notifications when the program falls behind.
func (s *consoleSession) enqueue(ev aurora.Event) {
	select {
	case s.queue <- ev:
	default:
	}
}

// batchLoop sends queued notifications to the program at a fixed rate.
func (s *consoleSession) batchLoop() {
	ticker := time.NewTicker(notificationBatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			var batch notificationBatchMsg
		drainLoop:
			for {
				select {
				case ev := <-s.queue:
					batch.events = append(batch.events, ev)
				default:
					break drainLoop
				}
			}
			if len(batch.events) > 0 {
				s.p.Send(batch)
			}
		}
	}
}

// submit runs command in the background and reports its result.
func (s *consoleSession) submit(command *aurora.Command) tea.Cmd {
	return func() tea.Msg {
		res, err := s.conn.Submit(context.Background(), command)
		return resultMsg{command: command.Line(), result: res, err: err}
	}
}

// writeInput sends input to the running command.
func (s *consoleSession) writeInput(text string) tea.Cmd {
	return func() tea.Msg {
		return inputSentMsg{err: s.conn.WriteCommandInput([]byte(text + "\n"))}
	}
}
