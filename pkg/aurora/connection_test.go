// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitionLog struct {
	mu   sync.Mutex
	seen [][2]State
}

func (l *transitionLog) record(next, prev State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, [2]State{next, prev})
}

func (l *transitionLog) all() [][2]State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][2]State(nil), l.seen...)
}

// ============================================================
// Connect / Disconnect Tests
// ============================================================

func TestConnection_ConnectDisconnect(t *testing.T) {
	f := newFakeTransport(OriginUSB)
	c := NewConnection(f)
	log := &transitionLog{}
	c.OnStateChange(log.record)

	assert.False(t, c.IsConnected())
	require.NoError(t, c.Connect(context.Background(), time.Second))
	assert.True(t, c.IsConnected())
	assert.False(t, c.IsConnecting())

	assert.ErrorIs(t, c.Connect(context.Background(), time.Second), ErrAlreadyConnected)

	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Disconnect())

	assert.Equal(t, [][2]State{
		{StateConnecting, StateDisconnected},
		{StateConnectedIdle, StateConnecting},
		{StateDisconnected, StateConnectedIdle},
	}, log.all())
}

func TestConnection_ConnectFailure(t *testing.T) {
	f := newFakeTransport(OriginUSB)
	f.openErr = errors.New("no such port")
	c := NewConnection(f)

	err := c.Connect(context.Background(), time.Second)
	assert.ErrorContains(t, err, "no such port")
	assert.Equal(t, StateDisconnected, c.State())

	f.openErr = nil
	require.NoError(t, c.Connect(context.Background(), time.Second))
}

func TestConnection_ConnectTimeout(t *testing.T) {
	f := newFakeTransport(OriginBLE)
	f.block = true
	c := NewConnection(f)

	err := c.Connect(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnection_DisconnectWhileConnecting(t *testing.T) {
	f := newFakeTransport(OriginBLE)
	f.block = true
	c := NewConnection(f)

	done := make(chan error, 1)
	go func() {
		done <- c.Connect(context.Background(), 5*time.Second)
	}()
	require.Eventually(t, c.IsConnecting, time.Second, time.Millisecond)

	require.NoError(t, c.Disconnect())
	err := <-done
	assert.ErrorIs(t, err, ErrConnectAborted)
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.IsConnecting())
}

func TestConnection_DisconnectWaitsForConnectAbort(t *testing.T) {
	f := newFakeTransport(OriginBLE)
	f.block = true
	f.teardown = 50 * time.Millisecond
	c := NewConnection(f)

	var stoppedAtDisconnect atomic.Value
	c.OnStateChange(func(next, prev State) {
		if next == StateDisconnected {
			stoppedAtDisconnect.Store(f.scanStopped.Load())
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Connect(context.Background(), 5*time.Second)
	}()
	require.Eventually(t, c.IsConnecting, time.Second, time.Millisecond)

	require.NoError(t, c.Disconnect())
	assert.True(t, f.scanStopped.Load())
	assert.Equal(t, true, stoppedAtDisconnect.Load())
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, <-done, ErrConnectAborted)

	// The aborted attempt no longer holds the connect slot.
	f.mu.Lock()
	f.block = false
	f.mu.Unlock()
	require.NoError(t, c.Connect(context.Background(), time.Second))
	assert.True(t, c.IsConnected())
}

func TestConnection_DisconnectRejectsCommand(t *testing.T) {
	c, _ := connectedUSB(t, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), NewCommand("os-info"))
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State() == StateConnectedBusy }, time.Second, time.Millisecond)

	require.NoError(t, c.Disconnect())
	err := <-done
	assert.ErrorIs(t, err, ErrLostConnection)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnection_LinkLostRejectsCommand(t *testing.T) {
	c, f := connectedUSB(t, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), NewCommand("os-info"))
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State() == StateConnectedBusy }, time.Second, time.Millisecond)

	f.drop()
	err := <-done
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.ErrorIs(t, err, ErrLostConnection)
	assert.Equal(t, "os-info", cmdErr.Command)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, f.closes)

	// A new connection can be established and used.
	f.device = answer("a: 1\n", false)
	require.NoError(t, c.Connect(context.Background(), time.Second))
	_, err = c.Submit(context.Background(), NewCommand("os-info"))
	assert.NoError(t, err)
}

// ============================================================
// Notification Routing Tests
// ============================================================

func TestConnection_NotificationsDuringCommand(t *testing.T) {
	var mu sync.Mutex
	var notes []Event
	c, f := connectedUSB(t, nil)
	c.OnNotification(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		notes = append(notes, ev)
	})

	f.device = func(f *fakeTransport, line string) {
		f.feed([]byte("event-1: 3\n"))
		f.feed(EncodeResponse(line, []byte("a: 1\n"), false))
		f.feed([]byte("< INFO | 00:00:01.000 > done\n"))
	}
	res, err := c.Submit(context.Background(), NewCommand("os-info"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, res.Object().Map())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notes, 2)
	assert.IsType(t, AuroraEvent{}, notes[0])
	assert.IsType(t, LogEntry{}, notes[1])

	counters := c.Statistics().Counters()
	assert.Equal(t, uint64(1), counters.AuroraEvents)
	assert.Equal(t, uint64(1), counters.LogEntries)
	assert.Equal(t, uint64(1), counters.CommandsOK)
}

func TestConnection_StrayCommandEventsIgnored(t *testing.T) {
	c, f := connectedUSB(t, nil)

	// Output of a command issued by someone else.
	f.feed(EncodeResponse("os-info", []byte("a: 1\n"), false))
	assert.Equal(t, StateConnectedIdle, c.State())

	f.device = answer("b: 2\n", false)
	res, err := c.Submit(context.Background(), NewCommand("os-info"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": float64(2)}, res.Object().Map())
}

// ============================================================
// Independence Tests
// ============================================================

func TestConnection_TransportsIndependent(t *testing.T) {
	usb, usbFake := connectedUSB(t, nil)
	ble, _ := connectedBLE(t, func(f *fakeTransport, line string) {
		f.ble.OnStatus([]byte{byte(StatusCmdExecute)})
		f.ble.OnStatus([]byte{byte(StatusObjectReady), 3, 0})
		f.ble.OnData([]byte("b:2"))
		f.ble.OnStatus([]byte{byte(StatusIdle), 0, 0})
	})

	done := make(chan *Result, 1)
	go func() {
		res, _ := usb.Submit(context.Background(), NewCommand("slow"))
		done <- res
	}()
	require.Eventually(t, func() bool { return usb.State() == StateConnectedBusy }, time.Second, time.Millisecond)

	res, err := ble.Submit(context.Background(), NewCommand("os-info"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": float64(2)}, res.Object().Map())

	usbFake.feed(EncodeResponse("slow", []byte("a: 1\n"), false))
	usbRes := <-done
	require.NotNil(t, usbRes)
	assert.Equal(t, OriginUSB, usbRes.Origin)
}
