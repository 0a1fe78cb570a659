// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// ErrDisconnected is reported when the peripheral drops the link.
var ErrDisconnected = errors.New("peripheral disconnected")

// Adapter is a Radio backed by the host Bluetooth adapter.
type Adapter struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	mu    sync.Mutex
	links map[string]func(error)
}

// NewAdapter wraps the default host adapter.
func NewAdapter() *Adapter {
	a := &Adapter{
		adapter: bluetooth.DefaultAdapter,
		links:   map[string]func(error){},
	}
	a.adapter.SetConnectHandler(a.connectEvent)
	return a
}

func (a *Adapter) enable() error {
	a.enableOnce.Do(func() {
		if err := a.adapter.Enable(); err != nil {
			a.enableErr = fmt.Errorf("failed to enable bluetooth: %w", err)
		}
	})
	return a.enableErr
}

func (a *Adapter) connectEvent(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	key := strings.ToUpper(device.Address.String())
	a.mu.Lock()
	fn := a.links[key]
	delete(a.links, key)
	a.mu.Unlock()
	if fn != nil {
		fn(ErrDisconnected)
	}
}

// Connect scans until a matching device advertises, connects to it and
// discovers the Aurora characteristics.
func (a *Adapter) Connect(ctx context.Context, target Target, onDisconnect func(error)) (Link, error) {
	if err := a.enable(); err != nil {
		return nil, err
	}

	result, err := a.scan(ctx, target)
	if err != nil {
		return nil, err
	}

	device, err := a.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", result.Address.String(), err)
	}
	if err := ctx.Err(); err != nil {
		_ = device.Disconnect()
		return nil, err
	}

	link, err := discover(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}

	a.mu.Lock()
	a.links[strings.ToUpper(result.Address.String())] = onDisconnect
	a.mu.Unlock()
	return link, nil
}

// scan runs until a match is found or ctx ends.
func (a *Adapter) scan(ctx context.Context, target Target) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !target.Matches(result.Address.String(), result.LocalName()) {
				return
			}
			select {
			case found <- result:
			default:
			}
			_ = adapter.StopScan()
		})
	}()

	select {
	case result := <-found:
		<-scanErr
		return result, nil
	case err := <-scanErr:
		select {
		case result := <-found:
			return result, nil
		default:
		}
		if err == nil {
			err = errors.New("scan ended without finding the device")
		}
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	case <-ctx.Done():
		_ = a.adapter.StopScan()
		<-scanErr
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

// Discover scans until ctx ends, passing every advertisement to fn.
func (a *Adapter) Discover(ctx context.Context, fn func(Device)) error {
	if err := a.enable(); err != nil {
		return err
	}

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			fn(Device{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    int(result.RSSI),
			})
		})
	}()

	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = a.adapter.StopScan()
		return <-scanErr
	}
}

func discover(device bluetooth.Device) (*deviceLink, error) {
	serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service UUID: %w", err)
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("aurora service not found: %v", err)
	}

	uuids := make([]bluetooth.UUID, 0, len(allCharacteristics))
	for _, c := range allCharacteristics {
		u, err := bluetooth.ParseUUID(c.UUID())
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s UUID: %w", c, err)
		}
		uuids = append(uuids, u)
	}
	chars, err := services[0].DiscoverCharacteristics(uuids)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", err)
	}

	link := &deviceLink{device: device, chars: map[Characteristic]bluetooth.DeviceCharacteristic{}}
	for _, dc := range chars {
		uuid := strings.ToLower(dc.UUID().String())
		for _, c := range allCharacteristics {
			if uuid == c.UUID() {
				link.chars[c] = dc
			}
		}
	}
	for _, c := range allCharacteristics {
		if _, ok := link.chars[c]; !ok {
			return nil, fmt.Errorf("characteristic %s not found", c)
		}
	}
	return link, nil
}

type deviceLink struct {
	device bluetooth.Device
	chars  map[Characteristic]bluetooth.DeviceCharacteristic
}

func (l *deviceLink) Write(c Characteristic, data []byte) error {
	if _, err := l.chars[c].WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("write %s: %w", c, err)
	}
	return nil
}

func (l *deviceLink) Subscribe(c Characteristic, fn func([]byte)) error {
	if err := l.chars[c].EnableNotifications(fn); err != nil {
		return fmt.Errorf("subscribe %s: %w", c, err)
	}
	return nil
}

func (l *deviceLink) Disconnect() error {
	return l.device.Disconnect()
}
