// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mockdevice is an in-memory Aurora serial console. It answers
// command lines with framed responses and serves packet-mode transfers
// with acknowledgment handling.
package mockdevice

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("mock device closed")

// Reply is the device's answer to one command.
type Reply struct {
	Body    string
	Error   bool
	Packets [][]byte

	// Corrupt is the number of transmissions of the first packet sent with
	// a bad checksum.
	Corrupt int

	// Input, when set, makes the device wait for one line of input and
	// echo it into the body before the footer.
	Input bool
}

// Handler answers a command.
type Handler func(args []string) Reply

type transfer struct {
	reply   Reply
	next    int
	corrupt int
}

// Device implements usb.Port.
type Device struct {
	mu       sync.Mutex
	cond     *sync.Cond
	out      bytes.Buffer
	in       bytes.Buffer
	closed   bool
	readErr  error
	handlers map[string]Handler
	lines    []string
	replies  []byte

	xfer    *transfer
	waiting *transfer
}

// New creates a device with the built-in commands.
func New() *Device {
	d := &Device{handlers: map[string]Handler{}}
	d.cond = sync.NewCond(&d.mu)
	d.Handle("os-info", func([]string) Reply {
		return Reply{Body: "Version: 2.1.0\nBattery: 87%\nSD card: true\n"}
	})
	d.Handle("sd-dir-read", func([]string) Reply {
		return Reply{Body: "| name | size | type |\n|---|---|---|\n| session.txt | 1024 | file |\n| profiles | 0 | dir |\n"}
	})
	return d
}

// Handle registers h for command name.
func (d *Device) Handle(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Lines returns the command lines received.
func (d *Device) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// Replies returns the packet acknowledgment bytes received.
func (d *Device) Replies() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.replies...)
}

// Emit writes raw bytes to the host, such as an out-of-band log line.
func (d *Device) Emit(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out.Write(data)
	d.cond.Broadcast()
}

// Drop makes the next Read fail with err, as when the cable is pulled.
func (d *Device) Drop(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
	d.cond.Broadcast()
}

func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.out.Len() == 0 && !d.closed && d.readErr == nil {
		d.cond.Wait()
	}
	if d.out.Len() > 0 {
		return d.out.Read(p)
	}
	if d.closed {
		return 0, io.EOF
	}
	return 0, d.readErr
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	for _, b := range p {
		d.receive(b)
	}
	d.cond.Broadcast()
	return len(p), nil
}

// ResetInputBuffer discards bytes not yet read by the host.
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out.Reset()
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
	return nil
}

func (d *Device) receive(b byte) {
	if d.xfer != nil && (b == aurora.PacketAckByte || b == aurora.PacketErrorByte) {
		d.replies = append(d.replies, b)
		if b == aurora.PacketAckByte {
			d.xfer.next++
		}
		d.sendPacket()
		return
	}
	if b != '\n' {
		d.in.WriteByte(b)
		return
	}
	line := strings.TrimRight(d.in.String(), "\r")
	d.in.Reset()

	if d.waiting != nil {
		t := d.waiting
		d.waiting = nil
		d.out.WriteString(line + "\n")
		d.finish(t)
		return
	}
	d.command(line)
}

func (d *Device) command(line string) {
	// A new command line ends any transfer the host gave up on.
	d.xfer = nil
	d.lines = append(d.lines, line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	h, ok := d.handlers[fields[0]]
	reply := Reply{Body: "Unknown command '" + fields[0] + "'\n", Error: true}
	if ok {
		reply = h(fields[1:])
	}

	t := &transfer{reply: reply, corrupt: reply.Corrupt}
	d.out.WriteString(aurora.PromptMarker + line + "\n")
	d.out.WriteString(aurora.Divider(reply.Error) + "\n")
	d.out.WriteString(reply.Body)

	switch {
	case len(reply.Packets) > 0 && !reply.Error:
		d.xfer = t
		d.sendPacket()
	case reply.Input:
		d.waiting = t
	default:
		d.finish(t)
	}
}

// sendPacket sends the next packet of the transfer, or the footer when
// every packet was acknowledged.
func (d *Device) sendPacket() {
	t := d.xfer
	if t.next >= len(t.reply.Packets) {
		d.xfer = nil
		d.finish(t)
		return
	}
	frame := aurora.MustEncodePacket(t.reply.Packets[t.next])
	if t.next == 0 && t.corrupt > 0 {
		t.corrupt--
		frame[len(frame)-1] ^= 0xFF
	}
	d.out.Write(frame)
}

func (d *Device) finish(t *transfer) {
	d.out.WriteString("\r\n" + aurora.Divider(t.reply.Error) + "\r\n")
}
