// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// OTP layout: 4 rows of 32 bits, 4 bytes per row.
const (
	OTPRows     = 4
	OTPRowBits  = 32
	OTPRowBytes = OTPRowBits / 8
	OTPSize     = OTPRows * OTPRowBytes
)

// OTPFlags is the one-time-programmable configuration reported by the boot
// ROM. Row r holds bytes 4r through 4r+3, each rendered most significant
// bit first.
type OTPFlags [OTPSize]byte

// DecodeOTP builds OTPFlags from exactly OTPSize bytes.
func DecodeOTP(b []byte) (OTPFlags, error) {
	var otp OTPFlags
	if len(b) != OTPSize {
		return otp, fmt.Errorf("%w: OTP block is %d bytes, want %d", ErrLengthMismatch, len(b), OTPSize)
	}
	copy(otp[:], b)
	return otp, nil
}

// Bit reports the flag at row, col. Column 0 is the most significant bit of
// the row's first byte.
func (o OTPFlags) Bit(row, col int) bool {
	if row < 0 || row >= OTPRows || col < 0 || col >= OTPRowBits {
		return false
	}
	b := o[row*OTPRowBytes+col/8]
	return b&(0x80>>uint(col%8)) != 0
}

// Bits expands the flags into a 4x32 matrix.
func (o OTPFlags) Bits() [OTPRows][OTPRowBits]bool {
	var m [OTPRows][OTPRowBits]bool
	for r := 0; r < OTPRows; r++ {
		for c := 0; c < OTPRowBits; c++ {
			m[r][c] = o.Bit(r, c)
		}
	}
	return m
}

// Row renders row i as four space separated groups of binary digits.
func (o OTPFlags) Row(i int) string {
	if i < 0 || i >= OTPRows {
		return ""
	}
	groups := make([]string, OTPRowBytes)
	for j := range groups {
		groups[j] = fmt.Sprintf("%08b", o[i*OTPRowBytes+j])
	}
	return strings.Join(groups, " ")
}

// String renders all rows, one per line.
func (o OTPFlags) String() string {
	rows := make([]string, OTPRows)
	for i := range rows {
		rows[i] = o.Row(i)
	}
	return strings.Join(rows, "\n")
}

// Bytes returns a copy of the raw flags.
func (o OTPFlags) Bytes() []byte {
	b := make([]byte, OTPSize)
	copy(b, o[:])
	return b
}

// BootInfo is the reply to the get boot info command.
type BootInfo struct {
	Version uint32
	OTP     OTPFlags
}

// DecodeBootInfo parses a boot info payload: a little endian 32 bit ROM
// version followed by the OTP block.
func DecodeBootInfo(payload []byte) (BootInfo, error) {
	if len(payload) != BootInfoSize {
		return BootInfo{}, fmt.Errorf("%w: boot info is %d bytes, want %d", ErrLengthMismatch, len(payload), BootInfoSize)
	}
	otp, err := DecodeOTP(payload[4:])
	if err != nil {
		return BootInfo{}, err
	}
	return BootInfo{
		Version: binary.LittleEndian.Uint32(payload[:4]),
		OTP:     otp,
	}, nil
}

// Bytes encodes the boot info the way the device sends it.
func (b BootInfo) Bytes() []byte {
	buf := make([]byte, BootInfoSize)
	binary.LittleEndian.PutUint32(buf, b.Version)
	copy(buf[4:], b.OTP[:])
	return buf
}
