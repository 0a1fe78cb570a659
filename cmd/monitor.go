// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/somnium/internal/publish"
	"github.com/Thermoquad/somnium/internal/recorder"
	"github.com/Thermoquad/somnium/pkg/aurora"
)

const (
	reconnectBackoff    = 1 * time.Second
	maxReconnectBackoff = 30 * time.Second
)

var (
	monitorStatsInterval int
	monitorRecordPath    string
	monitorPublish       bool
	monitorReconnect     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display out-of-band notifications in human-readable format",
	Long: `Continuously display device log lines, events, data samples and stream
data as they arrive.

Notifications can also be captured to a CBOR file (--record, replay it with
"somnium replay") and published to Redis (--publish). Statistics are printed
periodically and on exit.

Supports usb (serial or WebSocket bridge) and ble transports.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addMonitorFlags(monitorCmd)
}

func addMonitorFlags(c *cobra.Command) {
	c.Flags().IntVar(&monitorStatsInterval, "stats-interval", 0, "Statistics print interval in seconds (0 disables)")
	c.Flags().StringVar(&monitorRecordPath, "record", "", "Capture notifications to a CBOR file")
	c.Flags().BoolVar(&monitorPublish, "publish", false, "Publish notifications to Redis")
	c.Flags().BoolVar(&monitorReconnect, "reconnect", false, "Reconnect with backoff when the link drops")
}

// notificationSinks fans out notifications to the console, the capture file
// and the Redis publisher.
type notificationSinks struct {
	out     io.Writer
	rec     *recorder.Writer
	publish func(aurora.Event)
	origin  aurora.Origin
	log     logrus.FieldLogger
}

func (s *notificationSinks) handle(ev aurora.Event) {
	if s.out != nil {
		fmt.Fprintln(s.out, aurora.FormatEvent(ev))
	}
	if s.rec != nil {
		if err := s.rec.Record(s.origin, ev); err != nil {
			s.log.WithError(err).Warn("failed to record notification")
		}
	}
	if s.publish != nil {
		s.publish(ev)
	}
}

func (s *notificationSinks) close() {
	if s.rec != nil {
		if err := s.rec.Close(); err != nil {
			s.log.WithError(err).Warn("failed to close capture file")
		}
		s.log.WithField("records", s.rec.Count()).Info("capture closed")
	}
}

// openSinks prepares the capture file and publisher requested by flags or
// the config file.
func openSinks(ctx context.Context, cmd *cobra.Command, out io.Writer, origin aurora.Origin) (*notificationSinks, error) {
	s := &notificationSinks{out: out, origin: origin, log: logger}

	path := cfg.Recorder.Path
	if cmd.Flags().Changed("record") {
		path = monitorRecordPath
	}
	if path != "" {
		rec, err := recorder.Create(path)
		if err != nil {
			return nil, err
		}
		s.rec = rec
	}

	enabled := cfg.Redis.Enabled
	if cmd.Flags().Changed("publish") {
		enabled = monitorPublish
	}
	if enabled {
		client, err := publish.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.close()
			return nil, err
		}
		context.AfterFunc(ctx, func() { _ = client.Close() })
		pub := publish.NewPublisher(client, cfg.Redis.Channel, cfg.Redis.History, logger)
		s.publish = pub.Subscriber(ctx, origin)
	}
	return s, nil
}

// watchLinkLoss signals on the returned channel when an open link drops.
func watchLinkLoss(conn *aurora.Connection) <-chan struct{} {
	lost := make(chan struct{}, 1)
	conn.OnStateChange(func(next, prev aurora.State) {
		if next == aurora.StateDisconnected && prev.Connected() {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})
	return lost
}

// keepConnected reconnects conn with exponential backoff each time the link
// drops, until ctx ends.
func keepConnected(ctx context.Context, conn *aurora.Connection, lost <-chan struct{}, log logrus.FieldLogger) {
	timeout := connectTimeout(cfg, transportName)
	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
		}

		backoff := reconnectBackoff
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			err := conn.Connect(ctx, timeout)
			if err == nil {
				log.Info("reconnected")
				break
			}
			log.WithError(err).WithField("retry_in", backoff*2).Warn("reconnect failed")

			backoff *= 2
			if backoff > maxReconnectBackoff {
				backoff = maxReconnectBackoff
			}
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	stats := aurora.NewStatistics()
	conn, connInfo, err := OpenConnection(ctx, aurora.WithStatistics(stats))
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	sinks, err := openSinks(ctx, cmd, out, conn.Origin())
	if err != nil {
		return err
	}
	defer sinks.close()
	conn.OnNotification(sinks.handle)

	fmt.Fprintf(out, "Somnium - Notification Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	return monitorLoop(ctx, conn, out, monitorStatsInterval, monitorReconnect)
}

// monitorLoop waits for ctx, printing statistics every interval seconds.
// Without reconnect a dropped link ends the loop.
func monitorLoop(ctx context.Context, conn *aurora.Connection, out io.Writer, interval int, reconnect bool) error {
	lost := watchLinkLoss(conn)
	if reconnect {
		go keepConnected(ctx, conn, lost, logger)
		lost = nil
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(time.Duration(interval) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(out, "\n"+conn.Statistics().String())
			return nil
		case <-lost:
			fmt.Fprint(out, "\nConnection lost\n"+conn.Statistics().String())
			return nil
		case <-tick:
			fmt.Fprint(out, conn.Statistics().String())
		}
	}
}
