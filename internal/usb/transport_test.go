// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package usb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/somnium/internal/mockdevice"
	"github.com/Thermoquad/somnium/pkg/aurora"
)

func dialDevice(d *mockdevice.Device) Dialer {
	return func(context.Context) (Port, error) {
		return d, nil
	}
}

func connect(t *testing.T, d *mockdevice.Device) (*aurora.Connection, *Transport) {
	t.Helper()
	tr := New(dialDevice(d))
	c := aurora.NewConnection(tr)
	require.NoError(t, c.Connect(context.Background(), time.Second))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, tr
}

// ============================================================
// Command Tests
// ============================================================

func TestTransport_ObjectCommand(t *testing.T) {
	d := mockdevice.New()
	c, _ := connect(t, d)

	res, err := c.Submit(context.Background(), aurora.NewCommand("os-info"))
	require.NoError(t, err)
	assert.False(t, res.Error)
	assert.Equal(t, aurora.OriginUSB, res.Origin)
	assert.Equal(t, map[string]any{
		"version": "2.1.0",
		"battery": float64(87),
		"sdCard":  true,
	}, res.Object().Map())
	assert.Equal(t, []string{"os-info"}, d.Lines())
}

func TestTransport_TableCommand(t *testing.T) {
	c, _ := connect(t, mockdevice.New())

	res, err := c.Submit(context.Background(), aurora.NewCommand("sd-dir-read", "/"))
	require.NoError(t, err)
	table := res.Table()
	require.Len(t, table, 2)
	assert.Equal(t, map[string]any{"name": "session.txt", "size": float64(1024), "type": "file"}, table[0].Map())
}

func TestTransport_UnknownCommandIsDeviceError(t *testing.T) {
	c, _ := connect(t, mockdevice.New())

	res, err := c.Submit(context.Background(), aurora.NewCommand("bogus").WithResponseTypes(aurora.ResponseString, aurora.ResponseString))
	require.NoError(t, err)
	assert.True(t, res.Error)
	assert.Equal(t, "Unknown command 'bogus'\n", res.Response)
}

func TestTransport_SequentialCommands(t *testing.T) {
	d := mockdevice.New()
	c, _ := connect(t, d)

	for i := 0; i < 5; i++ {
		_, err := c.Submit(context.Background(), aurora.NewCommand("os-info"))
		require.NoError(t, err)
	}
	assert.Len(t, d.Lines(), 5)
}

// ============================================================
// Packet Mode Tests
// ============================================================

func TestTransport_PacketTransferWithRetry(t *testing.T) {
	d := mockdevice.New()
	d.Handle("sd-file-read", func([]string) mockdevice.Reply {
		return mockdevice.Reply{
			Packets: [][]byte{[]byte("chunk-1"), []byte("chunk-2")},
			Corrupt: 2,
		}
	})
	c, _ := connect(t, d)

	res, err := c.Submit(context.Background(), aurora.NewCommand("sd-file-read", "/night.bin"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("chunk-1"), []byte("chunk-2")}, res.Packets)
	assert.Equal(t, []byte{
		aurora.PacketErrorByte, aurora.PacketErrorByte,
		aurora.PacketAckByte, aurora.PacketAckByte,
	}, d.Replies())
}

func TestTransport_PacketRetriesExhausted(t *testing.T) {
	d := mockdevice.New()
	d.Handle("sd-file-read", func([]string) mockdevice.Reply {
		return mockdevice.Reply{Packets: [][]byte{[]byte("x")}, Corrupt: 10}
	})
	c, _ := connect(t, d)

	cmd := aurora.NewCommand("sd-file-read", "/a").WithTimeout(200 * time.Millisecond)
	_, err := c.Submit(context.Background(), cmd)
	assert.ErrorIs(t, err, aurora.ErrPacketRetriesExhausted)
	assert.Len(t, d.Replies(), aurora.MaxPacketRetries)

	// The transport was flushed and the next command runs normally.
	res, err := c.Submit(context.Background(), aurora.NewCommand("os-info"))
	require.NoError(t, err)
	assert.False(t, res.Error)
}

// ============================================================
// Input and Notification Tests
// ============================================================

func TestTransport_CommandInput(t *testing.T) {
	d := mockdevice.New()
	d.Handle("wifi-connect", func([]string) mockdevice.Reply {
		return mockdevice.Reply{Body: "password?\n", Input: true}
	})
	c, _ := connect(t, d)

	done := make(chan *aurora.Result, 1)
	go func() {
		res, _ := c.Submit(context.Background(), aurora.NewCommand("wifi-connect").WithResponseTypes(aurora.ResponseArray, aurora.ResponseArray))
		done <- res
	}()
	require.Eventually(t, func() bool { return len(d.Lines()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.WriteCommandInput([]byte("hunter2\n")))
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, []string{"password?", "hunter2"}, res.Response)
}

func TestTransport_OutOfBandNotifications(t *testing.T) {
	d := mockdevice.New()
	c, _ := connect(t, d)

	var mu sync.Mutex
	var got []aurora.Event
	c.OnNotification(func(ev aurora.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	d.Emit([]byte("< WARN | 00:12:30.500 > low battery\n"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	entry, ok := got[0].(aurora.LogEntry)
	require.True(t, ok)
	assert.Equal(t, "WARN", entry.Type)
	assert.Equal(t, "low battery", entry.Message)
}

// ============================================================
// Connection Loss Tests
// ============================================================

func TestTransport_LinkLoss(t *testing.T) {
	d := mockdevice.New()
	d.Handle("slow", func([]string) mockdevice.Reply {
		return mockdevice.Reply{Input: true}
	})
	c, tr := connect(t, d)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), aurora.NewCommand("slow"))
		done <- err
	}()
	require.Eventually(t, func() bool { return len(d.Lines()) == 1 }, time.Second, time.Millisecond)

	d.Drop(errors.New("unplugged"))
	assert.ErrorIs(t, <-done, aurora.ErrLostConnection)
	tr.Wait()
	assert.Equal(t, aurora.StateDisconnected, c.State())

	assert.ErrorIs(t, tr.SendCommand("os-info"), ErrNotOpen)
}

func TestTransport_DialFailure(t *testing.T) {
	tr := New(func(context.Context) (Port, error) {
		return nil, errors.New("no such device")
	})
	c := aurora.NewConnection(tr)

	err := c.Connect(context.Background(), time.Second)
	assert.ErrorContains(t, err, "no such device")
	assert.Equal(t, aurora.StateDisconnected, c.State())
}

func TestTransport_CloseStopsReader(t *testing.T) {
	d := mockdevice.New()
	tr := New(dialDevice(d))
	require.NoError(t, tr.Open(context.Background(), func(aurora.Event) {}))
	assert.ErrorIs(t, tr.Open(context.Background(), func(aurora.Event) {}), aurora.ErrAlreadyConnected)

	require.NoError(t, tr.Close())
	tr.Wait()
	assert.NoError(t, tr.Close())
}
