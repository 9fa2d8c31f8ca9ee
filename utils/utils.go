// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Miscellaneous utility functions

package utils

import (
	"fmt"
)

// GetBE24 decodes an unaligned big-endian 24-bit value, as found in READ(6) transfer lengths,
// SPACE counts and mode block descriptors.
func GetBE24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutBE24 encodes the low 24 bits of v into b in big-endian order.
func PutBE24(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// SignExtend24 interprets a 24-bit two's complement quantity.
func SignExtend24(v uint32) int32 {
	v &= 0xffffff
	if v&0x800000 != 0 {
		return int32(v | 0xff000000)
	}

	return int32(v)
}

// FormatBytes formats a uint64 byte quantity using human-readble units, e.g. kilobyte, megabyte.
func FormatBytes(v uint64) string {
	var i int

	suffixes := [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	d := uint64(1)

	for i = 0; i < len(suffixes)-1; i++ {
		if v >= d*1000 {
			d *= 1000
		} else {
			break
		}
	}

	if i == 0 {
		return fmt.Sprintf("%d %s", v, suffixes[i])
	}

	// Print 3 significant digits
	return fmt.Sprintf("%.3g %s", float64(v)/float64(d), suffixes[i])
}
