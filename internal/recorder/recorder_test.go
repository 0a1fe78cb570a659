// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recorder

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

var received = time.UnixMilli(1_700_000_000_123)

func readAll(t *testing.T, r *Reader) []Entry {
	t.Helper()
	var entries []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries
		}
		require.NoError(t, err)
		entries = append(entries, e)
	}
}

func TestRecorder_Notifications(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	events := []aurora.Event{
		aurora.LogEntry{Type: "INFO", Clock: "00:00:01.500", Offset: 1500 * time.Millisecond, Message: "boot", Received: received},
		aurora.AuroraEvent{ID: 4, Name: "awakening", Flags: 0x10, Received: received},
		aurora.DataSample{Name: "temp", Values: []float64{21.5, -3}, Received: received},
		aurora.StreamData{ID: 2, Name: "heart-rate", Type: aurora.DataTypeInt16, Values: []any{int16(-2), int16(300)}, Received: received},
	}
	for _, ev := range events {
		require.NoError(t, w.Record(aurora.OriginBLE, ev))
	}
	assert.Equal(t, len(events), w.Count())

	entries := readAll(t, NewReader(&buf))
	require.Len(t, entries, len(events))
	for i, e := range entries {
		assert.Equal(t, aurora.OriginBLE, e.Origin)
		assert.Equal(t, events[i], e.Event, "entry %d", i)
	}
}

func TestRecorder_SkipsCommandEvents(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Record(aurora.OriginUSB, aurora.CommandBegin{Name: "os-info"}))
	require.NoError(t, w.Record(aurora.OriginUSB, aurora.ResponseChunk{Data: []byte("a: 1")}))
	assert.Zero(t, w.Count())
	assert.Zero(t, buf.Len())
}

func TestRecorder_ErrorsAndUnknownLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Record(aurora.OriginUSB, aurora.UnknownLine{Line: "garbage"}))
	require.NoError(t, w.Record(aurora.OriginUSB, aurora.ParseError{Err: aurora.ErrLineTooLong}))

	entries := readAll(t, NewReader(&buf))
	require.Len(t, entries, 2)
	assert.Equal(t, aurora.UnknownLine{Line: "garbage"}, entries[0].Event)
	parseErr, ok := entries[1].Event.(aurora.ParseError)
	require.True(t, ok)
	assert.Equal(t, aurora.ErrLineTooLong.Error(), parseErr.Err.Error())
}

func TestRecorder_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "night.cbor")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Record(aurora.OriginUSB, aurora.AuroraEvent{ID: 1, Name: "signal-monitor", Received: received}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	entries := readAll(t, r)
	require.Len(t, entries, 1)
	assert.Equal(t, aurora.OriginUSB, entries[0].Origin)
}

func TestReader_BadRecords(t *testing.T) {
	bad := func(v interface{}) *Reader {
		data, err := cbor.Marshal(v)
		require.NoError(t, err)
		return NewReader(bytes.NewReader(data))
	}

	_, err := bad([]interface{}{uint64(99), map[int]interface{}{}}).Next()
	assert.ErrorContains(t, err, "unknown record kind")

	_, err = bad([]interface{}{uint64(1)}).Next()
	assert.ErrorContains(t, err, "2-element")

	_, err = bad([]interface{}{"log", map[int]interface{}{}}).Next()
	assert.ErrorContains(t, err, "expected uint")

	_, err = NewReader(bytes.NewReader([]byte{0xFF, 0x00})).Next()
	assert.Error(t, err)
}
