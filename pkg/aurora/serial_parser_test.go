// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func osInfoResponse(divider string) []byte {
	return []byte("# os-info\n" + strings.Repeat(divider, 64) + "\n" +
		"version: 1.0.1\n" + "\r\n" + strings.Repeat(divider, 64) + "\n")
}

// ============================================================
// Command Framing Tests
// ============================================================

func TestSerialParser_SuccessResponse(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	p.Feed(osInfoResponse("-"))

	assert.Equal(t, []Event{
		CommandBegin{Name: "os-info"},
		ResponseChunk{Data: []byte("version: 1.0.1\n"), Error: false},
		CommandEnd{Error: false},
	}, rec.all())
	assert.Equal(t, SerialNoCommand, p.State())
	assert.Equal(t, 0, p.Buffered())
}

func TestSerialParser_ErrorResponse(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	p.Feed(osInfoResponse("~"))

	assert.Equal(t, []Event{
		CommandBegin{Name: "os-info"},
		ResponseChunk{Data: []byte("version: 1.0.1\n"), Error: true},
		CommandEnd{Error: true},
	}, rec.all())
}

func TestSerialParser_ByteAtATime(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	for _, b := range osInfoResponse("-") {
		p.Feed([]byte{b})
	}

	assert.Equal(t, "version: 1.0.1\n", rec.body(false))
	assert.Equal(t, []Event{CommandBegin{Name: "os-info"}, CommandEnd{Error: false}}, rec.withoutChunks())
}

func TestSerialParser_StatesInOrder(t *testing.T) {
	p := NewSerialParser(nil)
	div := strings.Repeat("-", 64)

	p.Feed([]byte("# led-set 1\n"))
	assert.Equal(t, SerialCommandHeader, p.State())
	p.Feed([]byte(div + "\n"))
	assert.Equal(t, SerialResponseSuccessBody, p.State())
	p.Feed([]byte("ok\r\n" + div))
	assert.Equal(t, SerialFooterSuccess, p.State())
	p.Feed([]byte("\r\n"))
	assert.Equal(t, SerialNoCommand, p.State())
}

func TestSerialParser_CommandWithArguments(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	p.Feed(EncodeResponse("sd-dir-read / 0", nil, false))

	assert.Equal(t, []Event{CommandBegin{Name: "sd-dir-read / 0"}, CommandEnd{Error: false}}, rec.all())
}

func TestSerialParser_LongBodyStreams(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)
	div := strings.Repeat("-", 64)
	body := strings.Repeat("line of response text\n", 40)

	p.Feed([]byte("# log-read\n" + div + "\n"))
	p.Feed([]byte(body))

	// Everything but the footer-sized tail is already delivered.
	assert.Equal(t, len(body)-footerHold, len(rec.body(false)))

	p.Feed([]byte("\r\n" + div + "\r\n"))
	assert.Equal(t, body, rec.body(false))
	assert.Len(t, eventsOf[CommandEnd](rec.all()), 1)
}

func TestSerialParser_LongerDividers(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)
	div := strings.Repeat("~", 80)

	p.Feed([]byte("# bad\n" + div + "\nUnknown command\n\r\n" + div + "\n"))

	assert.Equal(t, "Unknown command\n", rec.body(true))
	assert.Equal(t, []CommandEnd{{Error: true}}, eventsOf[CommandEnd](rec.all()))
}

func TestSerialParser_ShortDividerIsNotAHeader(t *testing.T) {
	p := NewSerialParser(nil)

	p.Feed([]byte("# cmd\n" + strings.Repeat("-", 63) + "\n"))
	assert.Equal(t, SerialCommandHeader, p.State())

	p.Feed([]byte(strings.Repeat("-", 64) + "\n"))
	assert.Equal(t, SerialResponseSuccessBody, p.State())
}

func TestSerialParser_BackToBackCommands(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	stream := append(osInfoResponse("-"), osInfoResponse("~")...)
	p.Feed(stream)

	assert.Equal(t, []CommandEnd{{Error: false}, {Error: true}}, eventsOf[CommandEnd](rec.all()))
	assert.Len(t, eventsOf[CommandBegin](rec.all()), 2)
}

// ============================================================
// Packet Mode Tests
// ============================================================

func TestSerialParser_PacketMode(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	body := append([]byte("start\n"), MustEncodePacket([]byte("hello"))...)
	body = append(body, MustEncodePacket([]byte("world"))...)
	p.Feed(EncodeResponse("sd-file-read /a.bin", body, false))

	assert.Equal(t, []Event{
		CommandBegin{Name: "sd-file-read /a.bin"},
		ResponseChunk{Data: []byte("start\n")},
		PacketReceived{Payload: []byte("hello")},
		PacketReceived{Payload: []byte("world")},
		CommandEnd{},
	}, rec.all())
}

func TestSerialParser_PacketSplitAcrossFeeds(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}

	p.Feed([]byte("# dl\n" + strings.Repeat("-", 64) + "\n"))
	frame := MustEncodePacket(payload)
	for i := 0; i < len(frame); i += 7 {
		end := min(i+7, len(frame))
		p.Feed(frame[i:end])
	}

	packets := eventsOf[PacketReceived](rec.all())
	require.Len(t, packets, 1)
	assert.Equal(t, payload, packets[0].Payload)
	assert.Empty(t, eventsOf[ResponseChunk](rec.all()))
}

func TestSerialParser_PacketChecksumMismatch(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	frame := MustEncodePacket([]byte{1, 2, 3})
	frame[len(frame)-4] ^= 0x01
	p.Feed(EncodeResponse("dl", frame, false))

	corrupt := eventsOf[PacketCorrupt](rec.all())
	require.Len(t, corrupt, 1)
	assert.Equal(t, []byte{1, 2, 3}, corrupt[0].Payload)
	require.NotNil(t, corrupt[0].Err)
	assert.Equal(t, int32(-7), corrupt[0].Err.Computed)
	assert.Empty(t, eventsOf[PacketReceived](rec.all()))
	assert.Len(t, eventsOf[CommandEnd](rec.all()), 1)
}

func TestSerialParser_NoPacketModeInErrorBody(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	frame := MustEncodePacket([]byte("x"))
	p.Feed(EncodeResponse("dl", frame, true))

	assert.Empty(t, eventsOf[PacketReceived](rec.all()))
	assert.Equal(t, string(frame), rec.body(true))
}

// ============================================================
// Out-of-band Line Tests
// ============================================================

func TestSerialParser_OutOfBandLines(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	p := NewSerialParser(rec.handle, WithClock(func() time.Time { return now }))

	p.Feed([]byte("< info | 01:02:03.456 > booted ok\r\n"))
	p.Feed([]byte("event-4: 12\n"))
	p.Feed([]byte("heart-rate: 60, 61.5\n"))
	p.Feed([]byte("version: 1.0.1\n"))
	p.Feed([]byte("\n"))

	assert.Equal(t, []Event{
		LogEntry{
			Type:     "INFO",
			Clock:    "01:02:03.456",
			Offset:   time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond,
			Message:  "booted ok",
			Received: now,
		},
		AuroraEvent{ID: 4, Name: "awakening", Flags: 12, Received: now},
		DataSample{Name: "heart-rate", Values: []float64{60, 61.5}, Received: now},
		UnknownLine{Line: "version: 1.0.1"},
	}, rec.all())
	for _, ev := range rec.all() {
		assert.True(t, ev.OutOfBand())
	}
}

func TestSerialParser_HexEventFlags(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	p.Feed([]byte("event-99: 0x10\n"))

	events := eventsOf[AuroraEvent](rec.all())
	require.Len(t, events, 1)
	assert.Equal(t, "unknown-event", events[0].Name)
	assert.Equal(t, uint32(16), events[0].Flags)
}

func TestSerialParser_OutOfBandBeforeCommand(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	p.Feed(append([]byte("< WARN | 00:00:01.000 > low battery\n"), osInfoResponse("-")...))

	events := rec.all()
	require.Len(t, events, 4)
	assert.IsType(t, LogEntry{}, events[0])
	assert.Equal(t, CommandBegin{Name: "os-info"}, events[1])
}

func TestSerialParser_UnterminatedLineDropped(t *testing.T) {
	rec := &recorder{}
	p := NewSerialParser(rec.handle)

	p.Feed([]byte(strings.Repeat("x", MaxPendingLine+1)))

	errs := eventsOf[ParseError](rec.all())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, ErrLineTooLong)
	assert.Equal(t, 0, p.Buffered())

	// Still usable.
	p.Feed(osInfoResponse("-"))
	assert.Len(t, eventsOf[CommandEnd](rec.all()), 1)
}

// ============================================================
// Reset Tests
// ============================================================

func TestSerialParser_ResetFromEveryState(t *testing.T) {
	div := strings.Repeat("-", 64)
	prefixes := map[SerialState]string{
		SerialNoCommand:           "partial line",
		SerialCommandHeader:       "# cmd\n--",
		SerialResponseSuccessBody: "# cmd\n" + div + "\nbody",
		SerialResponseErrorBody:   "# cmd\n" + strings.Repeat("~", 64) + "\nbody",
		SerialFooterSuccess:       "# cmd\n" + div + "\nbody\r\n" + div,
		SerialFooterError:         "# cmd\n" + strings.Repeat("~", 64) + "\nbody\r\n" + strings.Repeat("~", 64),
	}

	for state, prefix := range prefixes {
		t.Run(state.String(), func(t *testing.T) {
			rec := &recorder{}
			p := NewSerialParser(rec.handle)
			p.Feed([]byte(prefix))
			require.Equal(t, state, p.State())

			p.Reset()
			assert.Equal(t, SerialNoCommand, p.State())
			assert.Equal(t, 0, p.Buffered())

			p.Reset()
			assert.Equal(t, SerialNoCommand, p.State())
			assert.Equal(t, 0, p.Buffered())

			rec.reset()
			p.Feed(osInfoResponse("-"))
			assert.Equal(t, "version: 1.0.1\n", rec.body(false))
			assert.Len(t, eventsOf[CommandEnd](rec.all()), 1)
		})
	}
}
