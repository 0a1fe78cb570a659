// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import "time"

// Command outcomes reported to Metrics and Statistics.
const (
	OutcomeOK               = "ok"
	OutcomeDeviceError      = "device_error"
	OutcomeTimeout          = "timeout"
	OutcomeLostConnection   = "lost_connection"
	OutcomeRetriesExhausted = "retries_exhausted"
	OutcomeCanceled         = "canceled"
	OutcomeFailed           = "failed"
)

// Metrics receives protocol observations from a Connection.
type Metrics interface {
	ObserveCommand(origin Origin, outcome string, d time.Duration)
	ObserveEvent(origin Origin, ev Event)
	ObserveState(origin Origin, s State)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCommand(Origin, string, time.Duration) {}
func (nopMetrics) ObserveEvent(Origin, Event)                   {}
func (nopMetrics) ObserveState(Origin, State)                   {}
