// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Somnium - Aurora sleep tracker host driver
//
// A CLI tool for sending commands to an Aurora over USB serial or BLE and
// following its log lines, events and stream data.

package main

import (
	"os"

	"github.com/Thermoquad/somnium/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
