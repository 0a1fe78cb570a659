// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package usb

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Port is a byte stream to the device.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// inputResetter is implemented by ports that can discard unread input.
type inputResetter interface {
	ResetInputBuffer() error
}

// Dialer opens a Port.
type Dialer func(ctx context.Context) (Port, error)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// SerialDialer opens a serial port in 8N1 mode.
func SerialDialer(portName string, baudRate int) Dialer {
	return func(ctx context.Context) (Port, error) {
		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(portName, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
		}
		return port, nil
	}
}

// WebSocketPort carries the byte stream in binary WebSocket messages.
type WebSocketPort struct {
	conn *websocket.Conn

	readMu    sync.Mutex
	buf       []byte
	bufOffset int
	closed    bool

	writeMu sync.Mutex
}

func (w *WebSocketPort) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	if w.closed {
		return 0, ErrConnectionClosed
	}
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		// Text frames carry bridge status, not device bytes.
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ResetInputBuffer drops the unread part of the current message.
func (w *WebSocketPort) ResetInputBuffer() error {
	w.readMu.Lock()
	defer w.readMu.Unlock()
	w.buf, w.bufOffset = nil, 0
	return nil
}

func (w *WebSocketPort) Close() error {
	return w.conn.Close()
}

// WebSocketDialer connects to a serial bridge with HTTP Basic auth.
func WebSocketDialer(wsURL, username, password string, skipSSLVerify bool) Dialer {
	return func(ctx context.Context) (Port, error) {
		u, err := url.Parse(wsURL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss":
		default:
			return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
		}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		if u.Scheme == "wss" {
			dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
		}

		headers := http.Header{}
		if username != "" && password != "" {
			credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
			headers.Set("Authorization", "Basic "+credentials)
		}

		conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("WebSocket connection failed: %w", err)
		}
		return &WebSocketPort{conn: conn}, nil
	}
}
