// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatEvent formats an event into a human-readable line
func FormatEvent(ev Event) string {
	switch e := ev.(type) {
	case CommandBegin:
		return fmt.Sprintf("COMMAND_BEGIN %s", e.Name)
	case ResponseChunk:
		kind := "RESPONSE"
		if e.Error {
			kind = "ERROR_RESPONSE"
		}
		return fmt.Sprintf("%s len=%d %q", kind, len(e.Data), truncate(string(e.Data), 60))
	case PacketReceived:
		return fmt.Sprintf("PACKET len=%d", len(e.Payload))
	case PacketCorrupt:
		return fmt.Sprintf("PACKET_CORRUPT len=%d: %v", len(e.Payload), e.Err)
	case CommandEnd:
		if e.Error {
			return "COMMAND_END error"
		}
		return "COMMAND_END ok"
	case CommandResponse:
		return fmt.Sprintf("COMMAND_RESPONSE error=%t output=%d bytes\n%s", e.Error, len(e.Output), FormatResponse(e.Response))
	case CommandOutput:
		return fmt.Sprintf("OUTPUT %q", truncate(string(e.Data), 60))
	case InputRequested:
		return "INPUT_REQUESTED"
	case LogEntry:
		return fmt.Sprintf("[%s] LOG %-5s %s %s", stamp(e.Received), e.Type, e.Clock, e.Message)
	case AuroraEvent:
		return fmt.Sprintf("[%s] EVENT %s (%d) flags=0x%08X", stamp(e.Received), e.Name, e.ID, e.Flags)
	case DataSample:
		values := make([]string, len(e.Values))
		for i, v := range e.Values {
			values[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return fmt.Sprintf("[%s] DATA %s = %s", stamp(e.Received), e.Name, strings.Join(values, ", "))
	case StreamData:
		values := make([]string, len(e.Values))
		for i, v := range e.Values {
			values[i] = fmt.Sprint(v)
		}
		return fmt.Sprintf("[%s] STREAM %s (%d) %s[%d] %s", stamp(e.Received), e.Name, e.ID, e.Type, len(e.Values), strings.Join(values, ", "))
	case UnknownLine:
		return fmt.Sprintf("UNKNOWN %q", e.Line)
	case ParseError:
		return fmt.Sprintf("PARSE_ERROR %v", e.Err)
	case Disconnected:
		return fmt.Sprintf("DISCONNECTED %v", e.Err)
	default:
		return fmt.Sprintf("%T", ev)
	}
}

// FormatResult formats a command result
func FormatResult(res *Result) string {
	status := "OK"
	if res.Error {
		status = "ERROR"
	}
	result := fmt.Sprintf("%s [%s] %s in %s\n", res.Command, res.Origin, status, res.Duration.Round(time.Millisecond))
	result += FormatResponse(res.Response)
	if len(res.Packets) > 0 {
		total := 0
		for _, p := range res.Packets {
			total += len(p)
		}
		result += fmt.Sprintf("  (%d packets, %d bytes)\n", len(res.Packets), total)
	}
	return result
}

// FormatResponse formats a decoded response: objects as key/value lines,
// tables as aligned columns.
func FormatResponse(v any) string {
	switch r := v.(type) {
	case nil:
		return "  (no response)\n"
	case *Object:
		if r.Len() == 0 {
			return "  (empty)\n"
		}
		width := 0
		for _, k := range r.Keys() {
			width = max(width, len(k))
		}
		var b strings.Builder
		for _, k := range r.Keys() {
			val, _ := r.Get(k)
			fmt.Fprintf(&b, "  %-*s %s\n", width+1, k+":", formatValue(val))
		}
		return b.String()
	case Table:
		return formatTable(r)
	case []string:
		var b strings.Builder
		for _, line := range r {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		return b.String()
	case string:
		if r == "" {
			return "  (empty)\n"
		}
		if !strings.HasSuffix(r, "\n") {
			r += "\n"
		}
		return r
	default:
		return fmt.Sprintf("  %v\n", v)
	}
}

func formatTable(t Table) string {
	if len(t) == 0 {
		return "  (no rows)\n"
	}
	cols := t[0].Keys()
	widths := make([]int, len(cols))
	cells := make([][]string, len(t))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for r, row := range t {
		cells[r] = make([]string, len(cols))
		for i, c := range cols {
			val, _ := row.Get(c)
			cells[r][i] = formatValue(val)
			widths[i] = max(widths[i], len(cells[r][i]))
		}
	}

	var b strings.Builder
	writeRow := func(values []string) {
		b.WriteString(" ")
		for i, v := range values {
			fmt.Fprintf(&b, " %-*s", widths[i], v)
		}
		b.WriteString("\n")
	}
	writeRow(cols)
	for _, row := range cells {
		writeRow(row)
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Object:
		return strings.TrimSpace(FormatResponse(val))
	default:
		return fmt.Sprint(v)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "--:--:--.---"
	}
	return t.Format("15:04:05.000")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
