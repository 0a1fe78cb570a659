// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package aurora implements the host side of the Aurora sleep-tracker
// command protocol.
//
// The device speaks one logical command/response protocol over two
// transports. Over USB the protocol is an unbounded byte stream carrying
// command echoes, framed text responses, an embedded binary packet mode and
// out-of-band log/event/telemetry lines. Over Bluetooth LE the same commands
// are driven by characteristic notifications. This package provides the
// framing parsers for both transports, the typed response decoders and a
// transport-agnostic command controller with its connection state machine.
package aurora

import "time"

// Serial framing
const (
	// PromptMarker prefixes the command echo line.
	PromptMarker = "# "

	SuccessDivider = '-'
	ErrorDivider   = '~'

	// MinDividerLength is the minimum run of divider characters in a
	// header or footer line.
	MinDividerLength = 64

	// MaxPendingLine bounds an unterminated out-of-band line.
	MaxPendingLine = 4096
)

// Packet mode framing: [SyncByte SyncByte][u16 LE length][payload][i32 LE checksum]
const (
	SyncByte       = 0xAA
	PacketOverhead = 8

	// Written back by the host after each packet.
	PacketAckByte   = 0x06
	PacketErrorByte = 0x15

	// MaxPacketRetries is the number of retransmissions requested for a
	// single packet before the host stops answering.
	MaxPacketRetries = 3
)

// Response decoding
const (
	MaxObjectLineLength = 120
	MinTableDivider     = 3
)

// BLE command constraints
const (
	MaxCommandLength = 120
	BLEChunkSize     = 20
)

// Timeouts
const (
	DefaultCommandTimeout = 12 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	WatchdogTimeout       = 2 * time.Second
)

// Error codes carried in forced error responses
const (
	ErrorCodeCommandTimeout = -1
	ErrorCodeWatchdog       = -64
)

// Origin tags the transport a result or notification came from.
type Origin string

const (
	OriginUSB Origin = "usb"
	OriginBLE Origin = "ble"
)

// BLEStatus is the value of the command-status characteristic.
type BLEStatus uint8

const (
	StatusIdle           BLEStatus = 0
	StatusCmdExecute     BLEStatus = 1
	StatusObjectReady    BLEStatus = 2
	StatusTableReady     BLEStatus = 3
	StatusInputRequested BLEStatus = 4
)

func (s BLEStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusCmdExecute:
		return "CMD_EXECUTE"
	case StatusObjectReady:
		return "OBJECT_READY"
	case StatusTableReady:
		return "TABLE_READY"
	case StatusInputRequested:
		return "INPUT_REQUESTED"
	default:
		return "UNKNOWN"
	}
}

// DataType is the primitive type tag of a binary stream. Values follow the
// device numbering used in the stream-data packing byte.
type DataType uint8

const (
	DataTypeUnknown DataType = 0
	DataTypeBool    DataType = 1
	DataTypeUint8   DataType = 3
	DataTypeInt8    DataType = 4
	DataTypeUint16  DataType = 5
	DataTypeInt16   DataType = 6
	DataTypeUint32  DataType = 7
	DataTypeInt32   DataType = 8
	DataTypeFloat   DataType = 9
)

// Size returns the element width in bytes, or 0 for unsupported types.
func (t DataType) Size() int {
	switch t {
	case DataTypeBool, DataTypeUint8, DataTypeInt8:
		return 1
	case DataTypeUint16, DataTypeInt16:
		return 2
	case DataTypeUint32, DataTypeInt32, DataTypeFloat:
		return 4
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case DataTypeBool:
		return "bool"
	case DataTypeUint8:
		return "uint8"
	case DataTypeInt8:
		return "int8"
	case DataTypeUint16:
		return "uint16"
	case DataTypeInt16:
		return "int16"
	case DataTypeUint32:
		return "uint32"
	case DataTypeInt32:
		return "int32"
	case DataTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Aurora event ids
const (
	EventSignalMonitor       = 0
	EventSleepTrackerMonitor = 1
	EventMovementMonitor     = 2
	EventStimPresented       = 3
	EventAwakening           = 4
	EventAutoShutdown        = 5
	EventButtonMonitor       = 16
	EventSDCardMonitor       = 17
	EventUSBMonitor          = 18
	EventBatteryMonitor      = 19
	EventBuzzMonitor         = 20
	EventLEDMonitor          = 21
	EventBLEMonitor          = 22
	EventClockAlarmFire      = 23
	EventAppNotification     = 24
)

var eventNames = map[int]string{
	EventSignalMonitor:       "signal-monitor",
	EventSleepTrackerMonitor: "sleep-tracker-monitor",
	EventMovementMonitor:     "movement-monitor",
	EventStimPresented:       "stim-presented",
	EventAwakening:           "awakening",
	EventAutoShutdown:        "auto-shutdown",
	EventButtonMonitor:       "button-monitor",
	EventSDCardMonitor:       "sdcard-monitor",
	EventUSBMonitor:          "usb-monitor",
	EventBatteryMonitor:      "battery-monitor",
	EventBuzzMonitor:         "buzz-monitor",
	EventLEDMonitor:          "led-monitor",
	EventBLEMonitor:          "ble-monitor",
	EventClockAlarmFire:      "clock-alarm-fire",
	EventAppNotification:     "app-notification",
}

// EventName returns the symbolic name of an Aurora event id.
func EventName(id int) string {
	if name, ok := eventNames[id]; ok {
		return name
	}
	return "unknown-event"
}

// Stream ids carried by the BLE stream-data characteristic
const (
	StreamSignalQuality = 0
	StreamRawEEG        = 1
	StreamHeartRate     = 2
	StreamAccelX        = 3
	StreamAccelY        = 4
	StreamAccelZ        = 5
	StreamGyroX         = 6
	StreamGyroY         = 7
	StreamGyroZ         = 8
	StreamTemperature   = 9
	StreamBattery       = 10
	StreamSleepStage    = 11
)

var streamNames = map[int]string{
	StreamSignalQuality: "signal-quality",
	StreamRawEEG:        "raw-eeg",
	StreamHeartRate:     "heart-rate",
	StreamAccelX:        "accel-x",
	StreamAccelY:        "accel-y",
	StreamAccelZ:        "accel-z",
	StreamGyroX:         "gyro-x",
	StreamGyroY:         "gyro-y",
	StreamGyroZ:         "gyro-z",
	StreamTemperature:   "temperature",
	StreamBattery:       "battery",
	StreamSleepStage:    "sleep-stage",
}

// StreamName returns the symbolic name of a stream id.
func StreamName(id int) string {
	if name, ok := streamNames[id]; ok {
		return name
	}
	return "unknown-stream"
}
