// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"errors"
	"fmt"
)

var (
	ErrBusy                   = errors.New("aurora: command already in flight")
	ErrNotConnected           = errors.New("aurora: not connected")
	ErrAlreadyConnected       = errors.New("aurora: already connected or connecting")
	ErrTimeout                = errors.New("aurora: command timed out")
	ErrLostConnection         = errors.New("aurora: lost connection")
	ErrConnectAborted         = errors.New("aurora: connect aborted")
	ErrLineTooLong            = errors.New("aurora: line too long")
	ErrInvalidState           = errors.New("aurora: invalid decoder state")
	ErrMalformedLine          = errors.New("aurora: malformed line")
	ErrCommandTooLong         = errors.New("aurora: command too long")
	ErrNoInputRequested       = errors.New("aurora: device has not requested input")
	ErrPacketRetriesExhausted = errors.New("aurora: packet retries exhausted")
	ErrUnsupported            = errors.New("aurora: not supported by transport")
)

// CommandError is returned by Submit when a command is abandoned by the
// host rather than answered by the device.
type CommandError struct {
	Command string
	Code    int
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Response renders the error the way the device reports errors.
func (e *CommandError) Response() *Object {
	o := NewObject()
	o.Set("error", float64(e.Code))
	o.Set("message", e.Message)
	return o
}

// ChecksumError describes a packet-mode frame whose trailing checksum did
// not match its payload.
type ChecksumError struct {
	Length   int
	Declared int32
	Computed int32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("packet checksum mismatch: declared 0x%08X, computed 0x%08X (len %d)",
		uint32(e.Declared), uint32(e.Computed), e.Length)
}

// LeftoverError reports bytes left undecoded at the end of a binary stream.
type LeftoverError struct {
	DataType DataType
	Bytes    int
}

func (e *LeftoverError) Error() string {
	return fmt.Sprintf("%d trailing bytes do not form a complete %s element", e.Bytes, e.DataType)
}
