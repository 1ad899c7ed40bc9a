// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

// CRC-16/CCITT-FALSE (polynomial 0x1021, initial value 0xffff), the
// checksum the v5 format uses for its hunk map and per-hunk check
// values.

var crc16Table = makeCRC16Table()

func makeCRC16Table() [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

func crc16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}
