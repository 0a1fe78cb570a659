// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ble

import "time"

// Aurora GATT service and characteristic UUIDs.
const (
	ServiceUUID = "6175726f-7261-454d-af79-42b381af0204"

	CommandStatusUUID = "6175726f-7261-49ce-8077-b954b033c880" // write, notify
	CommandDataUUID   = "6175726f-7261-49ce-8077-b954b033c881" // write, notify
	CommandOutputUUID = "6175726f-7261-49ce-8077-b954b033c882" // notify
	AuroraEventUUID   = "6175726f-7261-49ce-8077-b954b033c883" // notify
	StreamDataUUID    = "6175726f-7261-49ce-8077-b954b033c884" // notify
)

// DeviceName is the advertised local name of the device.
const DeviceName = "Aurora"

// Connect retry configuration
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// Characteristic identifies one of the Aurora characteristics.
type Characteristic int

const (
	CharStatus Characteristic = iota
	CharData
	CharOutput
	CharEvent
	CharStream
)

func (c Characteristic) String() string {
	switch c {
	case CharStatus:
		return "command-status"
	case CharData:
		return "command-data"
	case CharOutput:
		return "command-output"
	case CharEvent:
		return "aurora-event"
	case CharStream:
		return "stream-data"
	default:
		return "unknown"
	}
}

// UUID returns the characteristic UUID.
func (c Characteristic) UUID() string {
	switch c {
	case CharStatus:
		return CommandStatusUUID
	case CharData:
		return CommandDataUUID
	case CharOutput:
		return CommandOutputUUID
	case CharEvent:
		return AuroraEventUUID
	case CharStream:
		return StreamDataUUID
	default:
		return ""
	}
}

var allCharacteristics = []Characteristic{CharStatus, CharData, CharOutput, CharEvent, CharStream}
