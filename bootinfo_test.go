// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot_test

import (
	"math/bits"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchirp/blboot"
)

var exampleOTP = []byte{
	0x00, 0x00, 0x00, 0x00,
	0x03, 0x00, 0x00, 0x00,
	0x58, 0x9E, 0x02, 0x42,
	0xE8, 0xB4, 0x1D, 0x00,
}

var exampleRows = []string{
	"00000000 00000000 00000000 00000000",
	"00000011 00000000 00000000 00000000",
	"01011000 10011110 00000010 01000010",
	"11101000 10110100 00011101 00000000",
}

func TestDecodeOTPRows(t *testing.T) {
	otp, err := blboot.DecodeOTP(exampleOTP)
	require.NoError(t, err)
	for i, want := range exampleRows {
		assert.Equal(t, want, otp.Row(i), "row %d", i)
	}
	assert.Equal(t, strings.Join(exampleRows, "\n"), otp.String())
	assert.Empty(t, otp.Row(4))
}

func TestOTPBits(t *testing.T) {
	otp, err := blboot.DecodeOTP(exampleOTP)
	require.NoError(t, err)

	assert.True(t, otp.Bit(1, 6))
	assert.True(t, otp.Bit(1, 7))
	assert.False(t, otp.Bit(1, 5))
	assert.False(t, otp.Bit(0, 0))
	assert.True(t, otp.Bit(3, 0))
	assert.False(t, otp.Bit(4, 0))
	assert.False(t, otp.Bit(0, 32))

	set := 0
	for _, b := range exampleOTP {
		set += bits.OnesCount8(b)
	}
	m := otp.Bits()
	count := 0
	for r := range m {
		for c := range m[r] {
			if m[r][c] {
				count++
			}
			assert.Equal(t, exampleRows[r][c+c/8] == '1', m[r][c], "row %d col %d", r, c)
		}
	}
	assert.Equal(t, set, count)
}

func TestOTPBytesIsACopy(t *testing.T) {
	otp, err := blboot.DecodeOTP(exampleOTP)
	require.NoError(t, err)
	b := otp.Bytes()
	b[0] = 0xFF
	assert.Equal(t, exampleOTP, otp.Bytes())
}

func TestDecodeOTPLength(t *testing.T) {
	for _, n := range []int{0, 15, 17} {
		_, err := blboot.DecodeOTP(make([]byte, n))
		assert.ErrorIs(t, err, blboot.ErrLengthMismatch, "%d bytes", n)
	}
}

func TestDecodeBootInfo(t *testing.T) {
	payload := append([]byte{0x01, 0x00, 0x00, 0x00}, exampleOTP...)
	info, err := blboot.DecodeBootInfo(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Version)
	assert.Equal(t, exampleOTP, info.OTP.Bytes())
	assert.Equal(t, payload, info.Bytes())
}

func TestDecodeBootInfoLength(t *testing.T) {
	for _, n := range []int{0, 4, 19, 21} {
		_, err := blboot.DecodeBootInfo(make([]byte, n))
		assert.ErrorIs(t, err, blboot.ErrLengthMismatch, "%d bytes", n)
	}
}
