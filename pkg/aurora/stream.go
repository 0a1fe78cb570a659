// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"encoding/binary"
	"fmt"
	"math"
)

// StreamDecoder decodes a little-endian array of one primitive type from
// a byte stream whose chunk boundaries need not align with the element
// width. A trailing partial element is held until the next Decode call.
type StreamDecoder struct {
	dataType DataType
	leftover []byte
}

// NewStreamDecoder creates a decoder for the given element type.
func NewStreamDecoder(t DataType) (*StreamDecoder, error) {
	if t.Size() == 0 {
		return nil, fmt.Errorf("unsupported stream data type %d", t)
	}
	return &StreamDecoder{dataType: t}, nil
}

// DataType returns the element type.
func (d *StreamDecoder) DataType() DataType {
	return d.dataType
}

// Pending returns the number of bytes held back.
func (d *StreamDecoder) Pending() int {
	return len(d.leftover)
}

// Decode consumes buf and returns every complete element. Values are
// bool, uint8, int8, uint16, int16, uint32, int32 or float32 according to
// the decoder's type.
func (d *StreamDecoder) Decode(buf []byte) []any {
	width := d.dataType.Size()
	data := buf
	if len(d.leftover) > 0 {
		data = append(d.leftover, buf...)
	}

	count := len(data) / width
	values := make([]any, 0, count)
	for i := 0; i < count; i++ {
		values = append(values, decodeElement(d.dataType, data[i*width:(i+1)*width]))
	}

	rest := data[count*width:]
	d.leftover = append(d.leftover[:0:0], rest...)
	return values
}

// Flush ends the stream. Leftover bytes are discarded and reported with a
// *LeftoverError, which callers treat as a warning.
func (d *StreamDecoder) Flush() error {
	n := len(d.leftover)
	d.leftover = nil
	if n > 0 {
		return &LeftoverError{DataType: d.dataType, Bytes: n}
	}
	return nil
}

func decodeElement(t DataType, b []byte) any {
	switch t {
	case DataTypeBool:
		return b[0] != 0
	case DataTypeUint8:
		return b[0]
	case DataTypeInt8:
		return int8(b[0])
	case DataTypeUint16:
		return binary.LittleEndian.Uint16(b)
	case DataTypeInt16:
		return int16(binary.LittleEndian.Uint16(b))
	case DataTypeUint32:
		return binary.LittleEndian.Uint32(b)
	case DataTypeInt32:
		return int32(binary.LittleEndian.Uint32(b))
	case DataTypeFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return nil
}

// EncodeValues is the inverse of StreamDecoder: it packs values of the
// given type into little-endian bytes. Each value must have the Go type
// Decode produces for t.
func EncodeValues(t DataType, values []any) ([]byte, error) {
	width := t.Size()
	if width == 0 {
		return nil, fmt.Errorf("unsupported stream data type %d", t)
	}
	out := make([]byte, len(values)*width)
	for i, v := range values {
		b := out[i*width : (i+1)*width]
		ok := true
		switch t {
		case DataTypeBool:
			var val bool
			if val, ok = v.(bool); ok && val {
				b[0] = 1
			}
		case DataTypeUint8:
			var val uint8
			if val, ok = v.(uint8); ok {
				b[0] = val
			}
		case DataTypeInt8:
			var val int8
			if val, ok = v.(int8); ok {
				b[0] = byte(val)
			}
		case DataTypeUint16:
			var val uint16
			if val, ok = v.(uint16); ok {
				binary.LittleEndian.PutUint16(b, val)
			}
		case DataTypeInt16:
			var val int16
			if val, ok = v.(int16); ok {
				binary.LittleEndian.PutUint16(b, uint16(val))
			}
		case DataTypeUint32:
			var val uint32
			if val, ok = v.(uint32); ok {
				binary.LittleEndian.PutUint32(b, val)
			}
		case DataTypeInt32:
			var val int32
			if val, ok = v.(int32); ok {
				binary.LittleEndian.PutUint32(b, uint32(val))
			}
		case DataTypeFloat:
			var val float32
			if val, ok = v.(float32); ok {
				binary.LittleEndian.PutUint32(b, math.Float32bits(val))
			}
		}
		if !ok {
			return nil, fmt.Errorf("value %d: expected %s, got %T", i, t, v)
		}
	}
	return out, nil
}

// ToFloat64 converts a decoded stream element to float64. Booleans map to
// 0 and 1.
func ToFloat64(v any) float64 {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case uint8:
		return float64(val)
	case int8:
		return float64(val)
	case uint16:
		return float64(val)
	case int16:
		return float64(val)
	case uint32:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	}
	return math.NaN()
}
