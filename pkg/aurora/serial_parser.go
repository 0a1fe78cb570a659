// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SerialState is the state of the serial framing parser.
type SerialState int

const (
	SerialNoCommand SerialState = iota
	SerialCommandHeader
	SerialResponseSuccessBody
	SerialResponseErrorBody
	SerialFooterSuccess
	SerialFooterError
)

func (s SerialState) String() string {
	switch s {
	case SerialNoCommand:
		return "NO_COMMAND"
	case SerialCommandHeader:
		return "COMMAND_HEADER"
	case SerialResponseSuccessBody:
		return "RESPONSE_SUCCESS_BODY"
	case SerialResponseErrorBody:
		return "RESPONSE_ERROR_BODY"
	case SerialFooterSuccess:
		return "FOOTER_SUCCESS"
	case SerialFooterError:
		return "FOOTER_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

var (
	logLinePattern    = regexp.MustCompile(`^<\s*(\w+)\s*\|\s*(\d{2}):(\d{2}):(\d{2})\.(\d{3})\s*>\s?(.*)$`)
	eventLinePattern  = regexp.MustCompile(`^event-(\d+):\s*(\S+)\s*$`)
	sampleLinePattern = regexp.MustCompile(`^([A-Za-z][\w-]*):\s*([-+]?[\d.]+(?:\s*,\s*[-+]?[\d.]+)*)\s*,?\s*$`)
)

// footerHold is the number of trailing body bytes held back while the
// footer is not yet visible, enough for all but the last footer byte.
const footerHold = 2 + MinDividerLength - 1

var syncPair = []byte{SyncByte, SyncByte}

// SerialParser splits the USB byte stream into command framing events and
// out-of-band notifications. Feed never blocks: incomplete input stays
// buffered until the next call.
type SerialParser struct {
	mu      sync.Mutex
	handler EventHandler
	now     func() time.Time

	state  SerialState
	buffer []byte
	events []Event
}

// NewSerialParser creates a parser delivering events to handler.
func NewSerialParser(handler EventHandler, opts ...ParserOption) *SerialParser {
	cfg := newParserConfig(opts)
	return &SerialParser{
		handler: handler,
		now:     cfg.now,
		state:   SerialNoCommand,
	}
}

// State returns the current parser state.
func (p *SerialParser) State() SerialState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Buffered returns the number of bytes waiting for more input.
func (p *SerialParser) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Reset returns the parser to NoCommand and discards buffered bytes.
func (p *SerialParser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = SerialNoCommand
	p.buffer = nil
	p.events = nil
}

// Feed appends data to the stream and emits every event it completes.
func (p *SerialParser) Feed(data []byte) {
	p.mu.Lock()
	p.buffer = append(p.buffer, data...)
	for p.step() {
	}
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

func (p *SerialParser) emit(ev Event) {
	p.events = append(p.events, ev)
}

// step advances the state machine once. It returns false when more input
// is needed.
func (p *SerialParser) step() bool {
	switch p.state {
	case SerialNoCommand:
		line, ok := p.nextLine()
		if !ok {
			return false
		}
		if strings.HasPrefix(line, PromptMarker) {
			p.state = SerialCommandHeader
			p.emit(CommandBegin{Name: strings.TrimSpace(line[len(PromptMarker):])})
			return true
		}
		p.classifyLine(line)
		return true

	case SerialCommandHeader:
		line, ok := p.nextLine()
		if !ok {
			return false
		}
		line = strings.TrimSpace(line)
		switch {
		case isDividerLine(line, SuccessDivider):
			p.state = SerialResponseSuccessBody
		case isDividerLine(line, ErrorDivider):
			p.state = SerialResponseErrorBody
		}
		return true

	case SerialResponseSuccessBody:
		return p.stepBody(false)

	case SerialResponseErrorBody:
		return p.stepBody(true)

	case SerialFooterSuccess, SerialFooterError:
		if _, ok := p.nextLine(); !ok {
			return false
		}
		isError := p.state == SerialFooterError
		p.state = SerialNoCommand
		p.emit(CommandEnd{Error: isError})
		return true

	default:
		p.emit(ParseError{Err: fmt.Errorf("%w: serial parser in state %d", ErrInvalidState, p.state)})
		p.state = SerialNoCommand
		p.buffer = nil
		return false
	}
}

// nextLine removes one '\n' terminated line from the buffer, without its
// line ending. An unterminated line longer than MaxPendingLine is dropped.
func (p *SerialParser) nextLine() (string, bool) {
	idx := bytes.IndexByte(p.buffer, '\n')
	if idx < 0 {
		if len(p.buffer) > MaxPendingLine {
			p.emit(ParseError{Err: fmt.Errorf("%w: %d bytes without line end in %s",
				ErrLineTooLong, len(p.buffer), p.state)})
			p.buffer = nil
		}
		return "", false
	}
	line := string(bytes.TrimRight(p.buffer[:idx], "\r"))
	p.buffer = p.buffer[idx+1:]
	return line, true
}

func (p *SerialParser) stepBody(isError bool) bool {
	if !isError && bytes.HasPrefix(p.buffer, syncPair) {
		return p.stepPacket()
	}

	divider := byte(SuccessDivider)
	footerState := SerialFooterSuccess
	if isError {
		divider = ErrorDivider
		footerState = SerialFooterError
	}
	footer := footerMarker(divider)
	footerAt := bytes.Index(p.buffer, footer)

	if !isError {
		// Text before an embedded packet frame is flushed first.
		if syncAt := bytes.Index(p.buffer, syncPair); syncAt > 0 && (footerAt < 0 || syncAt < footerAt) {
			p.emitChunk(syncAt, isError)
			return true
		}
	}

	if footerAt >= 0 {
		p.emitChunk(footerAt, isError)
		p.buffer = p.buffer[len("\r\n"):]
		p.state = footerState
		return true
	}

	if safe := len(p.buffer) - footerHold; safe > 0 {
		p.emitChunk(safe, isError)
	}
	return false
}

// stepPacket consumes one packet-mode frame at the head of the buffer.
func (p *SerialParser) stepPacket() bool {
	if len(p.buffer) < 4 {
		return false
	}
	length := int(binary.LittleEndian.Uint16(p.buffer[2:4]))
	total := length + PacketOverhead
	if len(p.buffer) < total {
		return false
	}

	payload := make([]byte, length)
	copy(payload, p.buffer[4:4+length])
	declared := int32(binary.LittleEndian.Uint32(p.buffer[4+length : total]))
	p.buffer = p.buffer[total:]

	computed := CalculateChecksum(payload)
	if computed != declared {
		p.emit(PacketCorrupt{
			Payload: payload,
			Err:     &ChecksumError{Length: length, Declared: declared, Computed: computed},
		})
		return true
	}
	p.emit(PacketReceived{Payload: payload})
	return true
}

func (p *SerialParser) emitChunk(n int, isError bool) {
	if n <= 0 {
		return
	}
	chunk := make([]byte, n)
	copy(chunk, p.buffer[:n])
	p.buffer = p.buffer[n:]
	p.emit(ResponseChunk{Data: chunk, Error: isError})
}

// classifyLine turns a line seen outside a command into a notification.
func (p *SerialParser) classifyLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if m := logLinePattern.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[2])
		mins, _ := strconv.Atoi(m[3])
		sec, _ := strconv.Atoi(m[4])
		ms, _ := strconv.Atoi(m[5])
		p.emit(LogEntry{
			Type:  strings.ToUpper(m[1]),
			Clock: fmt.Sprintf("%s:%s:%s.%s", m[2], m[3], m[4], m[5]),
			Offset: time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute +
				time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond,
			Message:  m[6],
			Received: p.now(),
		})
		return
	}

	if m := eventLinePattern.FindStringSubmatch(line); m != nil {
		id, errID := strconv.Atoi(m[1])
		flags, errFlags := strconv.ParseUint(m[2], 0, 32)
		if errID == nil && errFlags == nil {
			p.emit(AuroraEvent{ID: id, Name: EventName(id), Flags: uint32(flags), Received: p.now()})
			return
		}
	}

	if m := sampleLinePattern.FindStringSubmatch(line); m != nil {
		if values, ok := parseSampleValues(m[2]); ok {
			p.emit(DataSample{Name: m[1], Values: values, Received: p.now()})
			return
		}
	}

	p.emit(UnknownLine{Line: line})
}

func parseSampleValues(s string) ([]float64, bool) {
	var values []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false
		}
		values = append(values, v)
	}
	return values, len(values) > 0
}

func footerMarker(divider byte) []byte {
	marker := make([]byte, 0, 2+MinDividerLength)
	marker = append(marker, '\r', '\n')
	return append(marker, bytes.Repeat([]byte{divider}, MinDividerLength)...)
}

func isDividerLine(line string, divider byte) bool {
	if len(line) < MinDividerLength {
		return false
	}
	for i := 0; i < len(line); i++ {
		if line[i] != divider {
			return false
		}
	}
	return true
}
