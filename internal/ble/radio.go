// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ble

import (
	"context"
	"strings"
	"sync"
)

// Target selects the peripheral to connect to. An empty Address matches
// any device advertising Name.
type Target struct {
	Address string
	Name    string
}

// Matches reports whether an advertisement matches the target.
func (t Target) Matches(address, name string) bool {
	if t.Address != "" {
		return strings.EqualFold(address, t.Address)
	}
	want := t.Name
	if want == "" {
		want = DeviceName
	}
	return name == want
}

// Radio scans for and connects to a peripheral. The scan must stop when
// ctx ends. onDisconnect is called once if the link drops later.
type Radio interface {
	Connect(ctx context.Context, target Target, onDisconnect func(error)) (Link, error)
}

// Link is a connected peripheral exposing the Aurora characteristics.
type Link interface {
	Write(c Characteristic, data []byte) error
	Subscribe(c Characteristic, fn func([]byte)) error
	Disconnect() error
}

// Device describes a peripheral seen while scanning.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi"`
}

// Discovery collects the distinct devices accepted by a match function.
type Discovery struct {
	match func(address, name string) bool

	mu      sync.Mutex
	index   map[string]int
	devices []Device
}

// NewDiscovery creates an empty Discovery. A nil match accepts every
// device; pass Target.Matches to keep only Auroras.
func NewDiscovery(match func(address, name string) bool) *Discovery {
	if match == nil {
		match = func(string, string) bool { return true }
	}
	return &Discovery{match: match, index: map[string]int{}}
}

// Add records an advertisement and reports whether it is a new match. A
// device seen again keeps its first position with the latest RSSI.
func (d *Discovery) Add(dev Device) bool {
	if !d.match(dev.Address, dev.Name) {
		return false
	}
	key := strings.ToUpper(dev.Address)

	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.index[key]; ok {
		d.devices[i].RSSI = dev.RSSI
		if dev.Name != "" {
			d.devices[i].Name = dev.Name
		}
		return false
	}
	d.index[key] = len(d.devices)
	d.devices = append(d.devices, dev)
	return true
}

// Devices returns the devices seen so far in discovery order.
func (d *Discovery) Devices() []Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Device(nil), d.devices...)
}
