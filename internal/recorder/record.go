// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// Record kinds
const (
	KindLog         uint8 = 1
	KindAuroraEvent uint8 = 2
	KindDataSample  uint8 = 3
	KindStreamData  uint8 = 4
	KindUnknownLine uint8 = 5
	KindParseError  uint8 = 6
)

// Common record keys
const (
	keyOrigin   = 0
	keyReceived = 1
)

// Kind-specific record keys
const (
	keyLogType    = 2
	keyLogClock   = 3
	keyLogOffset  = 4
	keyLogMessage = 5

	keyEventID    = 2
	keyEventName  = 3
	keyEventFlags = 4

	keySampleName   = 2
	keySampleValues = 3

	keyStreamID    = 2
	keyStreamName  = 3
	keyStreamType  = 4
	keyStreamBytes = 5

	keyLine = 2

	keyErrorMessage = 2
)

// Entry is one recorded notification.
type Entry struct {
	Origin aurora.Origin
	Event  aurora.Event
}

// encodeRecord builds the CBOR record [kind, payload_map] for a
// notification. ok is false for events that are not recorded.
func encodeRecord(origin aurora.Origin, ev aurora.Event) (data []byte, ok bool, err error) {
	payload := map[int]interface{}{keyOrigin: string(origin)}
	var kind uint8
	var received time.Time

	switch e := ev.(type) {
	case aurora.LogEntry:
		kind, received = KindLog, e.Received
		payload[keyLogType] = e.Type
		payload[keyLogClock] = e.Clock
		payload[keyLogOffset] = e.Offset.Milliseconds()
		payload[keyLogMessage] = e.Message
	case aurora.AuroraEvent:
		kind, received = KindAuroraEvent, e.Received
		payload[keyEventID] = e.ID
		payload[keyEventName] = e.Name
		payload[keyEventFlags] = e.Flags
	case aurora.DataSample:
		kind, received = KindDataSample, e.Received
		payload[keySampleName] = e.Name
		payload[keySampleValues] = e.Values
	case aurora.StreamData:
		kind, received = KindStreamData, e.Received
		raw, err := aurora.EncodeValues(e.Type, e.Values)
		if err != nil {
			return nil, false, fmt.Errorf("stream %d: %w", e.ID, err)
		}
		payload[keyStreamID] = e.ID
		payload[keyStreamName] = e.Name
		payload[keyStreamType] = uint8(e.Type)
		payload[keyStreamBytes] = raw
	case aurora.UnknownLine:
		kind, received = KindUnknownLine, time.Now()
		payload[keyLine] = e.Line
	case aurora.ParseError:
		kind, received = KindParseError, time.Now()
		payload[keyErrorMessage] = e.Err.Error()
	default:
		return nil, false, nil
	}
	payload[keyReceived] = received.UnixMilli()

	data, err = cbor.Marshal([]interface{}{uint64(kind), payload})
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// decodeRecord converts a decoded [kind, payload_map] record back into an
// Entry.
func decodeRecord(msg []interface{}) (Entry, error) {
	if len(msg) != 2 {
		return Entry{}, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}
	kind, ok := msg[0].(uint64)
	if !ok {
		return Entry{}, fmt.Errorf("expected uint for record kind, got %T", msg[0])
	}
	payload, err := intKeyed(msg[1])
	if err != nil {
		return Entry{}, err
	}

	origin, _ := getString(payload, keyOrigin)
	receivedMs, _ := getInt(payload, keyReceived)
	received := time.UnixMilli(receivedMs)
	entry := Entry{Origin: aurora.Origin(origin)}

	switch uint8(kind) {
	case KindLog:
		e := aurora.LogEntry{Received: received}
		e.Type, _ = getString(payload, keyLogType)
		e.Clock, _ = getString(payload, keyLogClock)
		offset, _ := getInt(payload, keyLogOffset)
		e.Offset = time.Duration(offset) * time.Millisecond
		e.Message, _ = getString(payload, keyLogMessage)
		entry.Event = e
	case KindAuroraEvent:
		e := aurora.AuroraEvent{Received: received}
		id, _ := getInt(payload, keyEventID)
		flags, _ := getInt(payload, keyEventFlags)
		e.ID, e.Flags = int(id), uint32(flags)
		e.Name, _ = getString(payload, keyEventName)
		entry.Event = e
	case KindDataSample:
		e := aurora.DataSample{Received: received}
		e.Name, _ = getString(payload, keySampleName)
		e.Values = getFloats(payload, keySampleValues)
		entry.Event = e
	case KindStreamData:
		e := aurora.StreamData{Received: received}
		id, _ := getInt(payload, keyStreamID)
		dt, _ := getInt(payload, keyStreamType)
		e.ID, e.Type = int(id), aurora.DataType(dt)
		e.Name, _ = getString(payload, keyStreamName)
		raw, _ := payload[keyStreamBytes].([]byte)
		dec, err := aurora.NewStreamDecoder(e.Type)
		if err != nil {
			return Entry{}, fmt.Errorf("stream %d: %w", e.ID, err)
		}
		e.Values = dec.Decode(raw)
		entry.Event = e
	case KindUnknownLine:
		line, _ := getString(payload, keyLine)
		entry.Event = aurora.UnknownLine{Line: line}
	case KindParseError:
		msg, _ := getString(payload, keyErrorMessage)
		entry.Event = aurora.ParseError{Err: errors.New(msg)}
	default:
		return Entry{}, fmt.Errorf("unknown record kind %d", kind)
	}
	return entry, nil
}

func intKeyed(v interface{}) (map[int]interface{}, error) {
	m, ok := v.(map[interface{}]interface{})
	if !ok {
		return nil, fmt.Errorf("expected map payload, got %T", v)
	}
	out := make(map[int]interface{}, len(m))
	for key, val := range m {
		switch k := key.(type) {
		case uint64:
			out[int(k)] = val
		case int64:
			out[int(k)] = val
		default:
			return nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}
	return out, nil
}

func getInt(m map[int]interface{}, key int) (int64, bool) {
	switch val := m[key].(type) {
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	}
	return 0, false
}

func getString(m map[int]interface{}, key int) (string, bool) {
	val, ok := m[key].(string)
	return val, ok
}

func getFloats(m map[int]interface{}, key int) []float64 {
	items, _ := m[key].([]interface{})
	out := make([]float64, 0, len(items))
	for _, item := range items {
		switch val := item.(type) {
		case float64:
			out = append(out, val)
		case float32:
			out = append(out, float64(val))
		case int64:
			out = append(out, float64(val))
		case uint64:
			out = append(out, float64(val))
		}
	}
	return out
}
