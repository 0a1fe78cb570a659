// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"
)

// BLEState is the state of the BLE framing parser.
type BLEState int

const (
	BLEIdle BLEState = iota
	BLECommandExecuting
	BLEObjectReady
	BLETableReady
	BLEInputRequested
)

func (s BLEState) String() string {
	switch s {
	case BLEIdle:
		return "IDLE"
	case BLECommandExecuting:
		return "COMMAND_EXECUTING"
	case BLEObjectReady:
		return "OBJECT_READY"
	case BLETableReady:
		return "TABLE_READY"
	case BLEInputRequested:
		return "INPUT_REQUESTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// AuroraEventSize is the fixed payload size of an Aurora event notification.
const AuroraEventSize = 5

// WatchdogMessage is the message of the forced watchdog error response.
const WatchdogMessage = "Command timed out."

// BLEParser turns characteristic notifications into command events. It is
// driven by the command-status, command-data and command-output
// characteristics; the stream-data and Aurora-event characteristics are
// decoded statelessly.
type BLEParser struct {
	mu       sync.Mutex
	handler  EventHandler
	now      func() time.Time
	watchdog time.Duration

	state      BLEState
	command    string
	decoder    *ResponseDecoder
	output     []byte
	pending    []byte
	readyBytes int
	errorCode  int

	timer      *time.Timer
	generation uint64
	events     []Event
}

// NewBLEParser creates a parser delivering events to handler.
func NewBLEParser(handler EventHandler, opts ...ParserOption) *BLEParser {
	cfg := newParserConfig(opts)
	return &BLEParser{
		handler:  handler,
		now:      cfg.now,
		watchdog: cfg.watchdog,
		state:    BLEIdle,
		decoder:  NewResponseDecoder(),
	}
}

// State returns the current parser state.
func (p *BLEParser) State() BLEState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Command returns the command line being executed, if any.
func (p *BLEParser) Command() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.command
}

// Reset returns the parser to Idle, stops the watchdog and drops any
// partial response.
func (p *BLEParser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.events = nil
}

func (p *BLEParser) resetLocked() {
	p.stopWatchdog()
	p.state = BLEIdle
	p.command = ""
	p.decoder.Reset()
	p.output = nil
	p.pending = nil
	p.readyBytes = 0
	p.errorCode = 0
}

// SetCommand hands a command to the parser. The watchdog starts running.
func (p *BLEParser) SetCommand(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != BLEIdle {
		return fmt.Errorf("%w: parser is %s", ErrBusy, p.state)
	}
	if line == "" {
		return fmt.Errorf("%w: empty command", ErrMalformedLine)
	}
	p.resetLocked()
	p.command = line
	p.state = BLECommandExecuting
	p.armWatchdog()
	return nil
}

// OnStatus handles a command-status notification:
// [status][u16 LE ready length | error code].
func (p *BLEParser) OnStatus(payload []byte) {
	p.mu.Lock()
	p.handleStatus(payload)
	p.flush()
}

func (p *BLEParser) handleStatus(payload []byte) {
	if len(payload) == 0 {
		p.emit(ParseError{Err: fmt.Errorf("%w: empty status notification", ErrMalformedLine)})
		return
	}
	status := BLEStatus(payload[0])
	value := 0
	switch {
	case len(payload) >= 3:
		value = int(binary.LittleEndian.Uint16(payload[1:3]))
	case len(payload) == 2:
		value = int(payload[1])
	}

	switch status {
	case StatusIdle:
		if p.command == "" {
			p.stopWatchdog()
			return
		}
		p.errorCode = value
		p.finish()

	case StatusCmdExecute:
		if p.command == "" {
			return
		}
		p.drainReady()
		p.state = BLECommandExecuting
		p.armWatchdog()

	case StatusObjectReady, StatusTableReady:
		if p.command == "" {
			p.emit(ParseError{Err: fmt.Errorf("%w: %s without a command", ErrInvalidState, status)})
			return
		}
		p.drainReady()
		p.state = BLEObjectReady
		if status == StatusTableReady {
			p.state = BLETableReady
		}
		p.readyBytes = value
		p.armWatchdog()

	case StatusInputRequested:
		if p.command == "" {
			p.emit(ParseError{Err: fmt.Errorf("%w: %s without a command", ErrInvalidState, status)})
			return
		}
		p.drainReady()
		p.state = BLEInputRequested
		p.stopWatchdog()
		p.emit(InputRequested{})

	default:
		p.emit(ParseError{Err: fmt.Errorf("%w: unknown status %d", ErrMalformedLine, payload[0])})
		if p.command != "" && p.state != BLEInputRequested {
			p.armWatchdog()
		}
	}
}

// finish packages the accumulated response and returns to Idle.
func (p *BLEParser) finish() {
	p.drainReady()
	isError := p.errorCode != 0
	response := p.decoder.Response()
	if response == nil && isError {
		obj := NewObject()
		obj.Set("error", float64(p.errorCode))
		response = obj
	}
	var output []byte
	if len(p.output) > 0 {
		output = append([]byte(nil), p.output...)
	}
	p.resetLocked()
	p.emit(CommandResponse{Error: isError, Response: response, Output: output})
}

// OnData handles a command-data notification carrying a response chunk
// announced by a ready status.
func (p *BLEParser) OnData(chunk []byte) {
	p.mu.Lock()
	p.handleData(chunk)
	p.flush()
}

func (p *BLEParser) handleData(chunk []byte) {
	if p.state != BLEObjectReady && p.state != BLETableReady {
		p.emit(ParseError{Err: fmt.Errorf("%w: data chunk in %s", ErrInvalidState, p.state)})
		return
	}
	p.pending = append(p.pending, bytes.TrimRight(chunk, "\x00")...)
	if len(p.pending) >= p.readyBytes {
		p.drainReady()
		p.state = BLECommandExecuting
	}
}

// drainReady decodes the buffered ready chunk. A chunk cut short by the next
// status notification is decoded as far as it goes.
func (p *BLEParser) drainReady() {
	if p.state != BLEObjectReady && p.state != BLETableReady {
		return
	}
	feed := p.decoder.FeedObjectLine
	if p.state == BLETableReady {
		feed = p.decoder.FeedTableLine
	}
	if len(p.pending) > 0 {
		text := strings.TrimRight(string(p.pending), "\r\n")
		for _, line := range strings.Split(text, "\n") {
			if err := feed(strings.TrimRight(line, "\r")); err != nil {
				p.emit(ParseError{Err: err})
			}
		}
	}
	p.pending = nil
	p.readyBytes = 0
}

// OnOutput handles a command-output notification.
func (p *BLEParser) OnOutput(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	p.mu.Lock()
	data := append([]byte(nil), chunk...)
	if p.command != "" {
		p.output = append(p.output, data...)
	}
	p.emit(CommandOutput{Data: data})
	p.flush()
}

// OnStreamData decodes a stream-data notification:
// [stream id][type<<4 | count][payload].
func (p *BLEParser) OnStreamData(payload []byte) {
	p.mu.Lock()
	p.handleStreamData(payload)
	p.flush()
}

func (p *BLEParser) handleStreamData(payload []byte) {
	if len(payload) < 2 {
		p.emit(ParseError{Err: fmt.Errorf("%w: stream data of %d bytes", ErrMalformedLine, len(payload))})
		return
	}
	id := int(payload[0])
	dataType := DataType(payload[1] >> 4)
	count := int(payload[1] & 0x0F)

	dec, err := NewStreamDecoder(dataType)
	if err != nil {
		p.emit(ParseError{Err: fmt.Errorf("stream %d: %w", id, err)})
		return
	}
	values := dec.Decode(payload[2:])
	if count > 0 && len(values) > count {
		values = values[:count]
	}
	if err := dec.Flush(); err != nil {
		p.emit(ParseError{Err: fmt.Errorf("stream %d: %w", id, err)})
	}
	p.emit(StreamData{
		ID:       id,
		Name:     StreamName(id),
		Type:     dataType,
		Values:   values,
		Received: p.now(),
	})
}

// OnAuroraEvent decodes an Aurora-event notification: [id][u32 LE flags].
func (p *BLEParser) OnAuroraEvent(payload []byte) {
	p.mu.Lock()
	if len(payload) != AuroraEventSize {
		p.emit(ParseError{Err: fmt.Errorf("%w: aurora event of %d bytes", ErrMalformedLine, len(payload))})
	} else {
		id := int(payload[0])
		p.emit(AuroraEvent{
			ID:       id,
			Name:     EventName(id),
			Flags:    binary.LittleEndian.Uint32(payload[1:5]),
			Received: p.now(),
		})
	}
	p.flush()
}

func (p *BLEParser) emit(ev Event) {
	p.events = append(p.events, ev)
}

// flush releases the lock and delivers queued events.
func (p *BLEParser) flush() {
	events := p.events
	p.events = nil
	p.mu.Unlock()

	if p.handler == nil {
		return
	}
	for _, ev := range events {
		p.handler(ev)
	}
}

func (p *BLEParser) armWatchdog() {
	p.stopWatchdog()
	gen := p.generation
	p.timer = time.AfterFunc(p.watchdog, func() {
		p.expire(gen)
	})
}

func (p *BLEParser) stopWatchdog() {
	p.generation++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *BLEParser) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.state == BLEIdle || p.state == BLEInputRequested {
		p.mu.Unlock()
		return
	}
	response := NewObject()
	response.Set("error", float64(ErrorCodeWatchdog))
	response.Set("message", WatchdogMessage)
	var output []byte
	if len(p.output) > 0 {
		output = append([]byte(nil), p.output...)
	}
	p.resetLocked()
	p.emit(CommandResponse{Error: true, Response: response, Output: output})
	p.flush()
}
