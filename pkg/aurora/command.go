// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResponseType selects how response body chunks are folded into a result.
type ResponseType int

const (
	ResponseString ResponseType = iota
	ResponseArray
	ResponseObject
)

func (t ResponseType) String() string {
	switch t {
	case ResponseString:
		return "string"
	case ResponseArray:
		return "array"
	case ResponseObject:
		return "object"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseResponseType parses "string", "array" or "object".
func ParseResponseType(s string) (ResponseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "":
		return ResponseString, nil
	case "array":
		return ResponseArray, nil
	case "object":
		return ResponseObject, nil
	default:
		return 0, fmt.Errorf("unknown response type %q", s)
	}
}

// Command describes one device command. Commands are plain descriptors;
// the helpers below set the response policy and timeout.
type Command struct {
	Name        string
	Args        []any
	SuccessType ResponseType
	ErrorType   ResponseType
	Timeout     time.Duration

	// OnPacket receives each verified packet-mode payload. When nil the
	// payloads are collected in Result.Packets.
	OnPacket func(payload []byte)
}

// NewCommand creates a command returning object responses on both paths
// with the default timeout.
func NewCommand(name string, args ...any) *Command {
	return &Command{
		Name:        name,
		Args:        args,
		SuccessType: ResponseObject,
		ErrorType:   ResponseObject,
		Timeout:     DefaultCommandTimeout,
	}
}

// WithResponseTypes sets the success and error folding policies.
func (c *Command) WithResponseTypes(success, failure ResponseType) *Command {
	c.SuccessType = success
	c.ErrorType = failure
	return c
}

// WithTimeout sets the response timeout.
func (c *Command) WithTimeout(d time.Duration) *Command {
	c.Timeout = d
	return c
}

// Line renders the command line without its terminator.
func (c *Command) Line() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		parts = append(parts, formatArg(arg))
	}
	return strings.Join(parts, " ")
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Duration:
		return strconv.FormatInt(v.Milliseconds(), 10)
	default:
		return fmt.Sprint(v)
	}
}

// Result is the outcome of a command answered by the device.
type Result struct {
	Command  string
	Error    bool
	Response any
	Origin   Origin
	Packets  [][]byte
	Duration time.Duration
}

// Object returns the response as an object, or nil.
func (r *Result) Object() *Object {
	obj, _ := r.Response.(*Object)
	return obj
}

// Table returns the response as a table, or nil.
func (r *Result) Table() Table {
	table, _ := r.Response.(Table)
	return table
}
