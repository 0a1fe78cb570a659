// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package usb implements the Aurora serial transport over a local serial
// port or a WebSocket serial bridge.
package usb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// ErrNotOpen is returned when writing to a transport that is not open.
var ErrNotOpen = errors.New("usb transport not open")

const defaultReadBuffer = 256

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Transport) {
		t.log = log
	}
}

// WithParserOptions passes options to the serial parser.
func WithParserOptions(opts ...aurora.ParserOption) Option {
	return func(t *Transport) {
		t.parserOpts = opts
	}
}

// WithReadBuffer sets the read size of the reader goroutine.
func WithReadBuffer(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.readBuf = n
		}
	}
}

// Transport is an aurora.Transport over a byte stream. One reader goroutine
// per open port feeds the serial parser.
type Transport struct {
	dial       Dialer
	log        logrus.FieldLogger
	parserOpts []aurora.ParserOption
	readBuf    int

	mu     sync.Mutex
	port   Port
	parser *aurora.SerialParser
	done   chan struct{}

	writeMu sync.Mutex
}

// New creates a closed transport that opens ports with dial.
func New(dial Dialer, opts ...Option) *Transport {
	t := &Transport{dial: dial, readBuf: defaultReadBuffer}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		t.log = l
	}
	return t
}

// Origin returns aurora.OriginUSB.
func (t *Transport) Origin() aurora.Origin {
	return aurora.OriginUSB
}

// Open dials the port and starts the reader goroutine.
func (t *Transport) Open(ctx context.Context, handler aurora.EventHandler) error {
	t.mu.Lock()
	if t.port != nil {
		t.mu.Unlock()
		return aurora.ErrAlreadyConnected
	}
	t.mu.Unlock()

	port, err := t.dial(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = port.Close()
		return err
	}

	parser := aurora.NewSerialParser(handler, t.parserOpts...)
	done := make(chan struct{})

	t.mu.Lock()
	t.port, t.parser, t.done = port, parser, done
	t.mu.Unlock()

	go t.readLoop(port, parser, handler, done)
	return nil
}

func (t *Transport) readLoop(port Port, parser *aurora.SerialParser, handler aurora.EventHandler, done chan struct{}) {
	defer close(done)
	buf := make([]byte, t.readBuf)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
		}
		if err == nil {
			continue
		}

		t.mu.Lock()
		current := t.port == port
		t.mu.Unlock()
		if !current {
			// Closed by us.
			return
		}
		t.log.WithError(err).Debug("read failed")
		handler(aurora.Disconnected{Err: err})
		return
	}
}

// Close closes the port. The reader goroutine exits on its own.
func (t *Transport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port, t.parser = nil, nil
	t.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}

// Wait blocks until the reader goroutine of the last opened port exits.
func (t *Transport) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Transport) write(data []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return ErrNotOpen
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// SendCommand writes line terminated by a newline.
func (t *Transport) SendCommand(line string) error {
	return t.write([]byte(line + "\n"))
}

// SendPacketReply writes a single acknowledgment or error byte.
func (t *Transport) SendPacketReply(b byte) error {
	return t.write([]byte{b})
}

// WriteInput writes data unchanged.
func (t *Transport) WriteInput(data []byte) error {
	return t.write(data)
}

// Reset discards unread input and resets the parser.
func (t *Transport) Reset() {
	t.mu.Lock()
	port, parser := t.port, t.parser
	t.mu.Unlock()

	if r, ok := port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			t.log.WithError(err).Warn("failed to flush input")
		}
	}
	if parser != nil {
		parser.Reset()
	}
}
