// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// Status reports the connections served by the health endpoint.
type Status interface {
	Origin() aurora.Origin
	State() aurora.State
	Statistics() *aurora.Statistics
}

type healthConnection struct {
	Origin    string `json:"origin"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Commands  uint64 `json:"commands"`
	Failures  uint64 `json:"failures"`
}

type healthResponse struct {
	Status      string             `json:"status"`
	Connections []healthConnection `json:"connections"`
}

// NewHandler serves /metrics from c and /health from connections. Health
// is 503 when no connection is up.
func NewHandler(c *Collector, connections ...Status) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "disconnected", Connections: []healthConnection{}}
		for _, conn := range connections {
			state := conn.State()
			counters := conn.Statistics().Counters()
			if state.Connected() {
				resp.Status = "ok"
			}
			resp.Connections = append(resp.Connections, healthConnection{
				Origin:    string(conn.Origin()),
				State:     state.String(),
				Connected: state.Connected(),
				Commands:  counters.CommandsSent,
				Failures:  counters.Failures(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return r
}

// Serve runs an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
