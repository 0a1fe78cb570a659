// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/somnium/internal/metrics"
	"github.com/Thermoquad/somnium/pkg/aurora"
)

var (
	serveAddr          string
	serveVerbose       bool
	serveProbe         string
	serveProbeInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stay connected and expose Prometheus metrics and health",
	Long: `Keep a connection to the device open, reconnecting when it drops, and
serve /metrics and /health over HTTP.

With --probe the given command is run periodically so command latency and
failures show up in the metrics. Notifications are recorded and published
as with "monitor", and printed with --verbose.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Print notifications")
	serveCmd.Flags().StringVar(&serveProbe, "probe", "", "Command to run periodically, e.g. os-info")
	serveCmd.Flags().DurationVar(&serveProbeInterval, "probe-interval", 30*time.Second, "Interval between probe commands")
	serveCmd.Flags().StringVar(&monitorRecordPath, "record", "", "Capture notifications to a CBOR file")
	serveCmd.Flags().BoolVar(&monitorPublish, "publish", false, "Publish notifications to Redis")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Metrics.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	collector := metrics.NewCollector()
	conn, connInfo, err := OpenConnection(ctx, aurora.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer conn.Disconnect()
	logger.WithField("connection", connInfo).Info("connected")

	var out io.Writer
	if serveVerbose {
		out = cmd.OutOrStdout()
	}
	sinks, err := openSinks(ctx, cmd, out, conn.Origin())
	if err != nil {
		return err
	}
	defer sinks.close()
	conn.OnNotification(sinks.handle)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, addr, metrics.NewHandler(collector, conn), logger)
	})
	g.Go(func() error {
		keepConnected(gctx, conn, watchLinkLoss(conn), logger)
		return nil
	})
	if serveProbe != "" {
		g.Go(func() error {
			probeLoop(gctx, conn, serveProbe, serveProbeInterval, logger)
			return nil
		})
	}
	return g.Wait()
}

// probeLoop submits command every interval while the connection is up.
func probeLoop(ctx context.Context, conn *aurora.Connection, command string, interval time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !conn.IsConnected() {
			continue
		}

		res, err := conn.Submit(ctx, aurora.NewCommand(command).WithTimeout(cfg.Command.Timeout))
		switch {
		case errors.Is(err, aurora.ErrBusy):
			log.Debug("probe skipped, command in flight")
		case err != nil:
			log.WithError(err).WithField("command", command).Warn("probe failed")
		case res.Error:
			log.WithField("command", command).Warn("probe returned device error")
		default:
			log.WithFields(logrus.Fields{"command": command, "duration": res.Duration}).Debug("probe ok")
		}
	}
}
