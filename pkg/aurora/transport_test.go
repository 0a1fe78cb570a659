// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================
// Scripted Transport
// ============================================================

// fakeTransport runs the real framing parser of its origin and lets tests
// script the device side.
type fakeTransport struct {
	origin Origin

	mu      sync.Mutex
	handler EventHandler
	serial  *SerialParser
	ble     *BLEParser
	sent    []string
	replies []byte
	inputs  [][]byte
	resets  int
	closes  int
	openErr error
	block   bool

	// teardown delays Open's return after cancellation, as a BLE scan
	// takes time to stop.
	teardown    time.Duration
	scanStopped atomic.Bool

	parserOpts []ParserOption

	// device answers a command line. It runs without the transport lock.
	device func(f *fakeTransport, line string)
}

func newFakeTransport(origin Origin) *fakeTransport {
	return &fakeTransport{origin: origin}
}

func (f *fakeTransport) Origin() Origin { return f.origin }

func (f *fakeTransport) Open(ctx context.Context, handler EventHandler) error {
	f.mu.Lock()
	block, openErr, teardown := f.block, f.openErr, f.teardown
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		time.Sleep(teardown)
		f.scanStopped.Store(true)
		return ctx.Err()
	}
	if openErr != nil {
		return openErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	if f.origin == OriginBLE {
		f.ble = NewBLEParser(handler, f.parserOpts...)
	} else {
		f.serial = NewSerialParser(handler, f.parserOpts...)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.ble != nil {
		f.ble.Reset()
	}
	return nil
}

func (f *fakeTransport) SendCommand(line string) error {
	if f.origin == OriginBLE {
		if len(line) > MaxCommandLength {
			return ErrCommandTooLong
		}
		if err := f.ble.SetCommand(line); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, line)
	device := f.device
	f.mu.Unlock()

	if device != nil {
		device(f, line)
	}
	return nil
}

func (f *fakeTransport) SendPacketReply(b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, b)
	return nil
}

func (f *fakeTransport) WriteInput(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	if f.serial != nil {
		f.serial.Reset()
	}
	if f.ble != nil {
		f.ble.Reset()
	}
}

// feed delivers device bytes to the serial parser.
func (f *fakeTransport) feed(data []byte) {
	f.serial.Feed(data)
}

// drop simulates the link going away.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(Disconnected{Err: io.EOF})
}

func (f *fakeTransport) snapshot() (sent []string, replies []byte, resets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]byte(nil), f.replies...), f.resets
}
