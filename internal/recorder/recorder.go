// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package recorder captures out-of-band notifications to a CBOR file and
// reads them back.
//
// A capture is a sequence of CBOR records [kind, payload_map] where the
// payload map uses small integer keys.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// Writer appends notifications to a capture.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	count  int
}

// NewWriter writes a capture to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Create creates or truncates the capture file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}
	return &Writer{w: f, closer: f}, nil
}

// Record appends ev if it is an out-of-band notification.
func (w *Writer) Record(origin aurora.Origin, ev aurora.Event) error {
	data, ok, err := encodeRecord(origin, ev)
	if err != nil || !ok {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Reader reads a capture.
type Reader struct {
	dec    *cbor.Decoder
	closer io.Closer
}

// NewReader reads a capture from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Open opens the capture file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	return &Reader{dec: cbor.NewDecoder(f), closer: f}, nil
}

// Next returns the next entry, or io.EOF at the end of the capture.
func (r *Reader) Next() (Entry, error) {
	var msg []interface{}
	if err := r.dec.Decode(&msg); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return decodeRecord(msg)
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
