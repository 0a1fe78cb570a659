// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MaxPacketPayload is the largest payload a u16 length prefix can carry.
const MaxPacketPayload = 0xFFFF

// EncodePacket frames payload for packet mode:
// [SyncByte SyncByte][u16 LE length][payload][i32 LE checksum].
func EncodePacket(payload []byte) ([]byte, error) {
	if len(payload) > MaxPacketPayload {
		return nil, fmt.Errorf("packet payload too large: %d bytes (max %d)", len(payload), MaxPacketPayload)
	}

	frame := make([]byte, len(payload)+PacketOverhead)
	frame[0] = SyncByte
	frame[1] = SyncByte
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(payload)))
	copy(frame[4:], payload)
	binary.LittleEndian.PutUint32(frame[4+len(payload):], uint32(CalculateChecksum(payload)))

	return frame, nil
}

// MustEncodePacket is EncodePacket for payloads known to fit.
// Panics on encoding error.
func MustEncodePacket(payload []byte) []byte {
	frame, err := EncodePacket(payload)
	if err != nil {
		panic(fmt.Sprintf("aurora: encode error: %v", err))
	}
	return frame
}

// Divider returns a header or footer divider line body of MinDividerLength
// characters.
func Divider(isError bool) string {
	if isError {
		return strings.Repeat(string(ErrorDivider), MinDividerLength)
	}
	return strings.Repeat(string(SuccessDivider), MinDividerLength)
}

// EncodeResponse renders a complete serial response the way the device
// writes it: prompt echo, header, body and footer. Binary frames may be
// embedded in body.
func EncodeResponse(name string, body []byte, isError bool) []byte {
	div := Divider(isError)
	out := make([]byte, 0, len(name)+len(body)+2*len(div)+8)
	out = append(out, PromptMarker...)
	out = append(out, name...)
	out = append(out, '\n')
	out = append(out, div...)
	out = append(out, '\n')
	out = append(out, body...)
	out = append(out, "\r\n"...)
	out = append(out, div...)
	out = append(out, "\r\n"...)
	return out
}
