// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import "time"

type parserConfig struct {
	watchdog time.Duration
	now      func() time.Time
}

// ParserOption configures a framing parser.
type ParserOption func(*parserConfig)

// WithWatchdog sets the BLE status watchdog. The serial parser ignores it.
func WithWatchdog(d time.Duration) ParserOption {
	return func(c *parserConfig) {
		c.watchdog = d
	}
}

// WithClock sets the clock used to timestamp notifications.
func WithClock(now func() time.Time) ParserOption {
	return func(c *parserConfig) {
		c.now = now
	}
}

func newParserConfig(opts []ParserOption) parserConfig {
	cfg := parserConfig{
		watchdog: WatchdogTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
