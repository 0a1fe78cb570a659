// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import "time"

// Event is emitted by the framing parsers. Command events (CommandBegin,
// ResponseChunk, PacketReceived, PacketCorrupt, CommandEnd,
// CommandResponse, CommandOutput, InputRequested) belong to the command in
// flight; the rest are out-of-band notifications.
type Event interface {
	// OutOfBand reports whether the event is unrelated to any command.
	OutOfBand() bool
}

// EventHandler receives parser events.
type EventHandler func(Event)

// CommandBegin is emitted when the serial command echo line is seen.
type CommandBegin struct {
	Name string
}

// ResponseChunk carries part of a serial text response body.
type ResponseChunk struct {
	Data  []byte
	Error bool
}

// PacketReceived carries the payload of a packet-mode frame whose checksum
// verified.
type PacketReceived struct {
	Payload []byte
}

// PacketCorrupt reports a packet-mode frame that failed its checksum.
type PacketCorrupt struct {
	Payload []byte
	Err     *ChecksumError
}

// CommandEnd is emitted when the serial footer completes.
type CommandEnd struct {
	Error bool
}

// CommandResponse is the complete outcome of a BLE command.
type CommandResponse struct {
	Error    bool
	Response any
	Output   []byte
}

// CommandOutput carries a chunk from the BLE command-output characteristic.
type CommandOutput struct {
	Data []byte
}

// InputRequested reports that the device waits for command input.
type InputRequested struct{}

// LogEntry is a device log line: "< TYPE | HH:MM:SS.mmm > message".
type LogEntry struct {
	Type     string
	Clock    string
	Offset   time.Duration
	Message  string
	Received time.Time
}

// AuroraEvent is an asynchronous device event.
type AuroraEvent struct {
	ID       int
	Name     string
	Flags    uint32
	Received time.Time
}

// DataSample is a named numeric sample from a serial "key: v1,v2" line.
type DataSample struct {
	Name     string
	Values   []float64
	Received time.Time
}

// StreamData is a decoded BLE stream-data notification.
type StreamData struct {
	ID       int
	Name     string
	Type     DataType
	Values   []any
	Received time.Time
}

// UnknownLine is an out-of-band line matching no known format.
type UnknownLine struct {
	Line string
}

// ParseError reports a framing or protocol violation. The parser stays
// usable after emitting it.
type ParseError struct {
	Err error
}

// Disconnected is emitted by a transport when the link drops.
type Disconnected struct {
	Err error
}

func (CommandBegin) OutOfBand() bool    { return false }
func (ResponseChunk) OutOfBand() bool   { return false }
func (PacketReceived) OutOfBand() bool  { return false }
func (PacketCorrupt) OutOfBand() bool   { return false }
func (CommandEnd) OutOfBand() bool      { return false }
func (CommandResponse) OutOfBand() bool { return false }
func (CommandOutput) OutOfBand() bool   { return false }
func (InputRequested) OutOfBand() bool  { return false }
func (LogEntry) OutOfBand() bool        { return true }
func (AuroraEvent) OutOfBand() bool     { return true }
func (DataSample) OutOfBand() bool      { return true }
func (StreamData) OutOfBand() bool      { return true }
func (UnknownLine) OutOfBand() bool     { return true }
func (ParseError) OutOfBand() bool      { return true }
func (Disconnected) OutOfBand() bool    { return false }

// EventKind returns a short snake_case name for an event.
func EventKind(ev Event) string {
	switch ev.(type) {
	case CommandBegin:
		return "command_begin"
	case ResponseChunk:
		return "response_chunk"
	case PacketReceived:
		return "packet"
	case PacketCorrupt:
		return "packet_corrupt"
	case CommandEnd:
		return "command_end"
	case CommandResponse:
		return "command_response"
	case CommandOutput:
		return "command_output"
	case InputRequested:
		return "input_requested"
	case LogEntry:
		return "log"
	case AuroraEvent:
		return "aurora_event"
	case DataSample:
		return "data_sample"
	case StreamData:
		return "stream_data"
	case UnknownLine:
		return "unknown_line"
	case ParseError:
		return "parse_error"
	case Disconnected:
		return "disconnected"
	default:
		return "other"
	}
}
