// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"fmt"
	"hash/crc32"
	"strings"
)

// Checksum describes a frame checksum. Compute returns the value whose low
// Size bytes are placed on the wire, least significant byte first.
// A zero Size means frames carry no checksum.
type Checksum struct {
	Name    string
	Size    int
	Compute func(data []byte) uint32
}

// NoChecksum disables frame checksums.
var NoChecksum = Checksum{Name: "none"}

// Sum8 is the low byte of the arithmetic sum of all bytes.
var Sum8 = Checksum{Name: "sum8", Size: 1, Compute: sum8}

// Sum16 is the arithmetic sum of all bytes modulo 2^16.
var Sum16 = Checksum{Name: "sum16", Size: 2, Compute: sum16}

// XOR8 is the exclusive or of all bytes.
var XOR8 = Checksum{Name: "xor8", Size: 1, Compute: xor8}

// CRC32 is the IEEE CRC-32.
var CRC32 = Checksum{Name: "crc32", Size: 4, Compute: crc32.ChecksumIEEE}

var checksums = []Checksum{NoChecksum, Sum8, Sum16, XOR8, CRC32}

// LookupChecksum returns the built-in checksum with the given name.
func LookupChecksum(name string) (Checksum, error) {
	for _, c := range checksums {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return Checksum{}, fmt.Errorf("%w: unknown checksum %q", ErrBadArguments, name)
}

func (c Checksum) String() string {
	return c.Name
}

// put writes the checksum of data into dst, which must hold c.Size bytes.
func (c Checksum) put(dst []byte, data ...[]byte) {
	if c.Size == 0 {
		return
	}
	var v uint32
	if len(data) == 1 {
		v = c.Compute(data[0])
	} else {
		var joined []byte
		for _, d := range data {
			joined = append(joined, d...)
		}
		v = c.Compute(joined)
	}
	for i := 0; i < c.Size; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

func sum8(data []byte) uint32 {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return uint32(sum)
}

func sum16(data []byte) uint32 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return uint32(sum)
}

func xor8(data []byte) uint32 {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return uint32(x)
}
