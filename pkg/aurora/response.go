// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"fmt"
	"strings"
)

// ResponseMode is the format a ResponseDecoder has settled on.
type ResponseMode int

const (
	ModeNone ResponseMode = iota
	ModeObject
	ModeTable
)

func (m ResponseMode) String() string {
	switch m {
	case ModeObject:
		return "object"
	case ModeTable:
		return "table"
	default:
		return "none"
	}
}

// ResponseDecoder incrementally builds a decoded response from text lines.
// The first content line fixes the mode; an object is built from
// "key: value" lines and a table from pipe-delimited rows.
type ResponseDecoder struct {
	mode    ResponseMode
	object  *Object
	columns []string
	rows    Table
}

// NewResponseDecoder creates a decoder in ModeNone.
func NewResponseDecoder() *ResponseDecoder {
	return &ResponseDecoder{}
}

// Mode returns the established mode.
func (d *ResponseDecoder) Mode() ResponseMode {
	return d.mode
}

// Reset returns the decoder to ModeNone with no accumulated data.
func (d *ResponseDecoder) Reset() {
	d.mode = ModeNone
	d.object = nil
	d.columns = nil
	d.rows = nil
}

// FeedObjectLine adds one "key: value" line.
func (d *ResponseDecoder) FeedObjectLine(line string) error {
	if len(line) > MaxObjectLineLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrLineTooLong, len(line), MaxObjectLineLength)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch d.mode {
	case ModeNone:
		d.mode = ModeObject
		d.object = NewObject()
	case ModeObject:
	default:
		return fmt.Errorf("%w: object line in %s mode", ErrInvalidState, d.mode)
	}

	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return fmt.Errorf("%w: no key separator in %q", ErrMalformedLine, line)
	}
	key := CamelCase(line[:idx])
	if key == "" {
		return fmt.Errorf("%w: empty key in %q", ErrMalformedLine, line)
	}
	d.object.Add(key, ParseValue(line[idx+1:]))
	return nil
}

// FeedTableLine adds one pipe-delimited table line. Divider lines are
// ignored and the first content line becomes the column schema.
func (d *ResponseDecoder) FeedTableLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || isTableDivider(line) {
		return nil
	}

	switch d.mode {
	case ModeNone:
		d.mode = ModeTable
	case ModeTable:
	default:
		return fmt.Errorf("%w: table line in %s mode", ErrInvalidState, d.mode)
	}

	cells := splitTableRow(line)
	if d.columns == nil {
		d.columns = make([]string, len(cells))
		for i, cell := range cells {
			d.columns[i] = CamelCase(cell)
		}
		d.rows = Table{}
		return nil
	}

	row := NewObject()
	for i, col := range d.columns {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		row.Set(col, ParseValue(cell))
	}
	d.rows = append(d.rows, row)
	return nil
}

// FeedDetectLine adds a line of either format. The first content line
// selects the mode: a leading or trailing pipe means a table, a ':' past
// the first character means an object.
func (d *ResponseDecoder) FeedDetectLine(line string) error {
	switch d.mode {
	case ModeObject:
		return d.FeedObjectLine(line)
	case ModeTable:
		return d.FeedTableLine(line)
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "|") || strings.HasSuffix(trimmed, "|") {
		return d.FeedTableLine(line)
	}
	if strings.IndexByte(trimmed, ':') > 0 {
		return d.FeedObjectLine(line)
	}
	return fmt.Errorf("%w: cannot detect response format of %q", ErrMalformedLine, trimmed)
}

// FeedText splits text into lines and feeds each with FeedDetectLine. It
// stops at the first error.
func (d *ResponseDecoder) FeedText(text string) error {
	for _, line := range strings.Split(text, "\n") {
		if err := d.FeedDetectLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Response returns a detached copy of the accumulated response: an
// *Object, a Table, or nil when nothing has been decoded.
func (d *ResponseDecoder) Response() any {
	switch d.mode {
	case ModeObject:
		return d.object.Clone()
	case ModeTable:
		rows := make(Table, len(d.rows))
		for i, row := range d.rows {
			rows[i] = row.Clone()
		}
		return rows
	default:
		return nil
	}
}

// Columns returns the table column schema, if any.
func (d *ResponseDecoder) Columns() []string {
	return append([]string(nil), d.columns...)
}

func isTableDivider(line string) bool {
	segments := 0
	for _, seg := range strings.Split(line, "|") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if len(seg) < MinTableDivider {
			return false
		}
		for _, r := range seg {
			if r != '-' && r != '=' {
				return false
			}
		}
		segments++
	}
	return segments > 0
}

func splitTableRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
