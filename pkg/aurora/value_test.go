// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================
// Value Decoder Tests
// ============================================================

func TestParseValue_Numbers(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected float64
	}{
		{"integer", "42", 42},
		{"negative", "-3.5", -3.5},
		{"currency and thousands", "$1,234.50", 1234.5},
		{"percent", "85%", 85},
		{"milliseconds", "250ms", 250},
		{"padded", "  7  ", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseValue(tt.token))
		})
	}
}

func TestParseValue_Timestamps(t *testing.T) {
	want := float64(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli())

	tests := []struct {
		name  string
		token string
	}{
		{"RFC3339", "2024-01-02T03:04:05Z"},
		{"ISO without zone", "2024-01-02T03:04:05"},
		{"space separated", "2024-01-02 03:04:05"},
		{"device clock", "Jan 2 2024 03:04:05"},
		{"ctime", "Tue Jan 2 03:04:05 2024"},
		{"US date", "01/02/2024 03:04:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, want, ParseValue(tt.token))
		})
	}
}

func TestParseValue_Words(t *testing.T) {
	tests := []struct {
		token    string
		expected any
	}{
		{"true", true},
		{"On", true},
		{"ACTIVE", true},
		{"yes", true},
		{"false", false},
		{"off", false},
		{"Inactive", false},
		{"no", false},
		{"none", false},
		{"unknown", float64(0)},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseValue(tt.token))
		})
	}
}

func TestParseValue_Passthrough(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"hello world", "hello world"},
		{"  padded ", "padded"},
		{"1.0.1", "1.0.1"},
		{"0x10", "0x10"},
		{"inf", "inf"},
		{"NaN", "NaN"},
		{"ms", "ms"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseValue(tt.token))
		})
	}
}

// ============================================================
// Key Normalisation Tests
// ============================================================

func TestCamelCase(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Version", "version"},
		{"Battery Level", "batteryLevel"},
		{"serial_number", "serialNumber"},
		{"sd-card free", "sdCardFree"},
		{"fooBar", "fooBar"},
		{"HTTPServer", "httpServer"},
		{"ID", "id"},
		{"uptime (s)", "uptimeS"},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, CamelCase(tt.in))
		})
	}
}
