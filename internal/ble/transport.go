// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ble implements the Aurora Bluetooth LE transport.
package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

var (
	// ErrNotOpen is returned when writing to a transport that is not open.
	ErrNotOpen = errors.New("ble transport not open")
	// ErrNoPacketMode is returned for packet replies, which BLE does not use.
	ErrNoPacketMode = errors.New("packet mode is not available over ble")
)

// dialOutcome is the result of one connect attempt.
type dialOutcome int

const (
	dialConnected dialOutcome = iota
	dialRetry
	dialExhausted
)

func nextDial(ctx context.Context, attempt, attempts int, err error) dialOutcome {
	switch {
	case err == nil:
		return dialConnected
	case ctx.Err() != nil, attempt >= attempts:
		return dialExhausted
	default:
		return dialRetry
	}
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Transport) {
		t.log = log
	}
}

// WithAttempts sets the number of connect attempts and the delay between
// them.
func WithAttempts(n int, delay time.Duration) Option {
	return func(t *Transport) {
		if n > 0 {
			t.attempts = n
		}
		t.retryDelay = delay
	}
}

// WithParserOptions passes options to the BLE parser.
func WithParserOptions(opts ...aurora.ParserOption) Option {
	return func(t *Transport) {
		t.parserOpts = opts
	}
}

// Transport is an aurora.Transport over the Aurora GATT service.
type Transport struct {
	radio      Radio
	target     Target
	attempts   int
	retryDelay time.Duration
	log        logrus.FieldLogger
	parserOpts []aurora.ParserOption

	mu     sync.Mutex
	link   Link
	parser *aurora.BLEParser

	writeMu sync.Mutex
}

// New creates a closed transport connecting to target through radio.
func New(radio Radio, target Target, opts ...Option) *Transport {
	t := &Transport{
		radio:      radio,
		target:     target,
		attempts:   DefaultAttempts,
		retryDelay: DefaultRetryDelay,
	}
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

// Origin returns aurora.OriginBLE.
func (t *Transport) Origin() aurora.Origin {
	return aurora.OriginBLE
}

// Open connects with a bounded number of attempts and subscribes to every
// Aurora characteristic.
func (t *Transport) Open(ctx context.Context, handler aurora.EventHandler) error {
	t.mu.Lock()
	if t.link != nil {
		t.mu.Unlock()
		return aurora.ErrAlreadyConnected
	}
	t.mu.Unlock()

	parser := aurora.NewBLEParser(handler, t.parserOpts...)

	var link Link
	for attempt := 1; ; attempt++ {
		var err error
		link, err = t.radio.Connect(ctx, t.target, t.disconnectHandler(handler, &link))
		outcome := nextDial(ctx, attempt, t.attempts, err)
		if outcome == dialConnected {
			break
		}
		if outcome == dialExhausted {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("connect failed after %d attempts: %w", attempt, err)
		}

		t.log.WithError(err).WithField("attempt", attempt).Warn("connect failed, retrying")
		select {
		case <-time.After(t.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	subscriptions := map[Characteristic]func([]byte){
		CharStatus: parser.OnStatus,
		CharData:   parser.OnData,
		CharOutput: parser.OnOutput,
		CharEvent:  parser.OnAuroraEvent,
		CharStream: parser.OnStreamData,
	}
	for _, c := range allCharacteristics {
		if err := link.Subscribe(c, subscriptions[c]); err != nil {
			_ = link.Disconnect()
			return err
		}
	}

	t.mu.Lock()
	t.link, t.parser = link, parser
	t.mu.Unlock()
	return nil
}

// disconnectHandler reports a drop of the link stored in *link once it is
// the transport's current link.
func (t *Transport) disconnectHandler(handler aurora.EventHandler, link *Link) func(error) {
	return func(err error) {
		t.mu.Lock()
		current := t.link != nil && t.link == *link
		t.mu.Unlock()
		if !current {
			return
		}
		t.log.WithError(err).Debug("link dropped")
		handler(aurora.Disconnected{Err: err})
	}
}

// Close disconnects from the peripheral.
func (t *Transport) Close() error {
	t.mu.Lock()
	link, parser := t.link, t.parser
	t.link, t.parser = nil, nil
	t.mu.Unlock()

	if parser != nil {
		parser.Reset()
	}
	if link == nil {
		return nil
	}
	return link.Disconnect()
}

func (t *Transport) current() (Link, *aurora.BLEParser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == nil {
		return nil, nil, ErrNotOpen
	}
	return t.link, t.parser, nil
}

// writeChunked writes data to the command-data characteristic in
// BLEChunkSize pieces and then signals CmdExecute.
func (t *Transport) writeChunked(link Link, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for len(data) > 0 {
		n := min(len(data), aurora.BLEChunkSize)
		if err := link.Write(CharData, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return link.Write(CharStatus, []byte{byte(aurora.StatusCmdExecute)})
}

// SendCommand hands line to the parser and writes it to the device.
func (t *Transport) SendCommand(line string) error {
	if len(line) > aurora.MaxCommandLength {
		return fmt.Errorf("%w: %d bytes", aurora.ErrCommandTooLong, len(line))
	}
	link, parser, err := t.current()
	if err != nil {
		return err
	}
	if err := parser.SetCommand(line); err != nil {
		return err
	}
	if err := t.writeChunked(link, []byte(line)); err != nil {
		parser.Reset()
		return err
	}
	return nil
}

// SendPacketReply always fails: packet mode is serial only.
func (t *Transport) SendPacketReply(byte) error {
	return ErrNoPacketMode
}

// WriteInput writes data the running command asked for.
func (t *Transport) WriteInput(data []byte) error {
	link, _, err := t.current()
	if err != nil {
		return err
	}
	return t.writeChunked(link, data)
}

// Reset returns the parser to idle.
func (t *Transport) Reset() {
	_, parser, err := t.current()
	if err == nil {
		parser.Reset()
	}
}
