// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Counters is a snapshot of protocol statistics.
type Counters struct {
	// Commands
	CommandsSent     uint64
	CommandsOK       uint64
	DeviceErrors     uint64
	Timeouts         uint64
	LostConnections  uint64
	RetriesExhausted uint64
	OtherFailures    uint64

	// Packet mode
	PacketsReceived uint64
	PacketsCorrupt  uint64

	// Out-of-band
	LogEntries    uint64
	AuroraEvents  uint64
	DataSamples   uint64
	StreamSamples uint64
	UnknownLines  uint64
	ParseErrors   uint64
}

// Notifications returns the number of out-of-band notifications.
func (c Counters) Notifications() uint64 {
	return c.LogEntries + c.AuroraEvents + c.DataSamples + c.StreamSamples + c.UnknownLines
}

// Failures returns the number of commands that did not complete normally.
func (c Counters) Failures() uint64 {
	return c.Timeouts + c.LostConnections + c.RetriesExhausted + c.OtherFailures
}

// Statistics tracks command outcomes, packet-mode results and
// notifications for one connection.
type Statistics struct {
	mu        sync.Mutex
	startTime time.Time
	lastEvent time.Time
	c         Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{startTime: now, lastEvent: now}
}

// CommandSent counts a command written to the transport.
func (s *Statistics) CommandSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.CommandsSent++
}

// RecordOutcome counts a finished command by outcome.
func (s *Statistics) RecordOutcome(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch outcome {
	case OutcomeOK:
		s.c.CommandsOK++
	case OutcomeDeviceError:
		s.c.DeviceErrors++
	case OutcomeTimeout:
		s.c.Timeouts++
	case OutcomeLostConnection:
		s.c.LostConnections++
	case OutcomeRetriesExhausted:
		s.c.RetriesExhausted++
	default:
		s.c.OtherFailures++
	}
}

// RecordEvent counts a parser event.
func (s *Statistics) RecordEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEvent = time.Now()
	switch ev.(type) {
	case PacketReceived:
		s.c.PacketsReceived++
	case PacketCorrupt:
		s.c.PacketsCorrupt++
	case LogEntry:
		s.c.LogEntries++
	case AuroraEvent:
		s.c.AuroraEvents++
	case DataSample:
		s.c.DataSamples++
	case StreamData:
		s.c.StreamSamples++
	case UnknownLine:
		s.c.UnknownLines++
	case ParseError:
		s.c.ParseErrors++
	}
}

// Counters returns a snapshot of the counters.
func (s *Statistics) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.startTime = now
	s.lastEvent = now
	s.c = Counters{}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	c := s.c
	elapsed := time.Since(s.startTime)
	s.mu.Unlock()

	var notifyRate float64
	if secs := elapsed.Seconds(); secs > 0 {
		notifyRate = float64(c.Notifications()) / secs
	}
	percent := func(n uint64) float64 {
		if c.CommandsSent == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(c.CommandsSent)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Commands Sent:   %8d\n", c.CommandsSent)
	fmt.Fprintf(&b, "Succeeded:       %8d (%.1f%%)\n", c.CommandsOK, percent(c.CommandsOK))
	if c.DeviceErrors > 0 {
		fmt.Fprintf(&b, "Device Errors:   %8d (%.1f%%)\n", c.DeviceErrors, percent(c.DeviceErrors))
	}
	if c.Failures() > 0 {
		fmt.Fprintf(&b, "Failed:          %8d (%.1f%%)\n", c.Failures(), percent(c.Failures()))
		if c.Timeouts > 0 {
			fmt.Fprintf(&b, "  Timed Out:        %5d\n", c.Timeouts)
		}
		if c.LostConnections > 0 {
			fmt.Fprintf(&b, "  Lost Connection:  %5d\n", c.LostConnections)
		}
		if c.RetriesExhausted > 0 {
			fmt.Fprintf(&b, "  Retries Exhausted:%5d\n", c.RetriesExhausted)
		}
	}
	if c.PacketsReceived+c.PacketsCorrupt > 0 {
		fmt.Fprintf(&b, "Packets:         %8d (%d corrupt)\n", c.PacketsReceived+c.PacketsCorrupt, c.PacketsCorrupt)
	}
	fmt.Fprintf(&b, "Notifications:   %8d\n", c.Notifications())
	if c.ParseErrors > 0 {
		fmt.Fprintf(&b, "Parse Errors:    %8d\n", c.ParseErrors)
	}
	fmt.Fprintf(&b, "Notify Rate:     %8.1f msgs/sec\n", notifyRate)
	b.WriteString("================================\n")
	return b.String()
}

// CommandOutcome classifies the return values of Submit.
func CommandOutcome(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Error:
		return OutcomeDeviceError
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrPacketRetriesExhausted):
		return OutcomeRetriesExhausted
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrLostConnection):
		return OutcomeLostConnection
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
