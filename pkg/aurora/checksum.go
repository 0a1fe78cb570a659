// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

// CalculateChecksum computes the packet-mode checksum: the one's complement
// of the 32-bit sum of the payload bytes.
func CalculateChecksum(payload []byte) int32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return int32(^sum)
}
