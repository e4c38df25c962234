// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package romsim_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchirp/blboot"
	"github.com/openchirp/blboot/romsim"
)

const wait = 50 * time.Millisecond

func burst(p blboot.Profile) []byte {
	return p.Sync.Bytes(blboot.DefaultBaudRate)
}

func syncRaw(t *testing.T, rom *romsim.ROM, p blboot.Profile) {
	t.Helper()
	_, err := rom.Write(burst(p))
	require.NoError(t, err)
	ack, err := blboot.ReadExact(rom, 2, wait)
	require.NoError(t, err)
	require.Equal(t, []byte("OK"), ack)
}

func TestAckAfter(t *testing.T) {
	p := blboot.BL60x()
	rom := romsim.New(p, romsim.WithAckAfter(3))

	for i := 1; i <= 2; i++ {
		_, err := rom.Write(burst(p))
		require.NoError(t, err)
		_, err = blboot.ReadExact(rom, 2, wait)
		assert.ErrorIs(t, err, blboot.ErrTimeout, "burst %d", i)
	}
	syncRaw(t, rom, p)
	assert.Equal(t, 3, rom.Bursts())
}

func TestIgnoresFramesBeforeSync(t *testing.T) {
	p := blboot.BL60x()
	rom := romsim.New(p)

	frame, err := p.Request.Encode(0x10, nil)
	require.NoError(t, err)
	_, err = rom.Write(frame)
	require.NoError(t, err)

	_, err = blboot.ReadExact(rom, 1, wait)
	assert.ErrorIs(t, err, blboot.ErrTimeout)
	assert.Empty(t, rom.Frames())
}

func TestSplitFrameWrites(t *testing.T) {
	p := blboot.BL60x()
	rom := romsim.New(p)
	syncRaw(t, rom, p)

	frame, err := p.Request.Encode(0x10, nil)
	require.NoError(t, err)
	for _, b := range frame {
		_, err := rom.Write([]byte{b})
		require.NoError(t, err)
	}

	resp, err := blboot.ReadExact(rom, 2+2+blboot.BootInfoSize, wait)
	require.NoError(t, err)
	assert.Equal(t, []byte{'O', 'K', 0x14, 0x00}, resp[:4])
	assert.Equal(t, romsim.DefaultBootInfo.Bytes(), resp[4:])
}

func TestBadChecksum(t *testing.T) {
	p := blboot.Checksummed()
	rom := romsim.New(p)
	syncRaw(t, rom, p)

	frame, err := p.Request.Encode(0x10, nil)
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0x01
	_, err = rom.Write(frame)
	require.NoError(t, err)

	f, err := p.ResponseFormat.ReadFrame(readerFor(rom))
	require.NoError(t, err)
	assert.Equal(t, p.FailCode, f.Code)
	assert.Equal(t, []byte{0x03, 0x01}, f.Payload)
	assert.Empty(t, rom.Frames())
}

func TestUnknownCode(t *testing.T) {
	p := blboot.BL60x()
	rom := romsim.New(p)
	syncRaw(t, rom, p)

	frame, err := p.Request.Encode(0x7E, nil)
	require.NoError(t, err)
	_, err = rom.Write(frame)
	require.NoError(t, err)

	resp, err := blboot.ReadExact(rom, 4, wait)
	require.NoError(t, err)
	assert.Equal(t, []byte{'F', 'L', 0x01, 0x01}, resp)
}

func TestOversizedRead(t *testing.T) {
	p := blboot.BL60x()
	rom := romsim.New(p)
	syncRaw(t, rom, p)

	for _, cmd := range []blboot.Command{blboot.CmdMemRead, blboot.CmdFlashRead} {
		spec, err := p.Command(cmd)
		require.NoError(t, err)
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint32(payload[4:], 0x40000000)
		frame, err := p.Request.Encode(spec.Code, payload)
		require.NoError(t, err)
		_, err = rom.Write(frame)
		require.NoError(t, err)

		resp, err := blboot.ReadExact(rom, 4, wait)
		require.NoError(t, err, cmd)
		assert.Equal(t, []byte{'F', 'L', 0x02, 0x01}, resp, cmd)
	}
}

func TestIdleReset(t *testing.T) {
	now := time.Date(2017, 3, 13, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	p := blboot.BL60x()
	rom := romsim.New(p, romsim.WithClock(clock))
	syncRaw(t, rom, p)

	now = now.Add(p.IdleReset + time.Millisecond)
	frame, err := p.Request.Encode(0x10, nil)
	require.NoError(t, err)
	_, err = rom.Write(frame)
	require.NoError(t, err)

	_, err = blboot.ReadExact(rom, 1, wait)
	assert.ErrorIs(t, err, blboot.ErrTimeout)
	syncRaw(t, rom, p)
}

func TestSegmentSequence(t *testing.T) {
	p := blboot.BL60x()
	rom := romsim.New(p)
	s, err := blboot.NewDevice(rom).Sync()
	require.NoError(t, err)

	var romErr *blboot.ROMError
	err = s.LoadSegmentData(make([]byte, 16))
	require.ErrorAs(t, err, &romErr)
	assert.Equal(t, blboot.ROMCmdSeqError, romErr.Code)

	require.NoError(t, s.LoadBootHeader(make([]byte, blboot.BootHeaderSize)))
	require.NoError(t, s.LoadSegmentHeader(blboot.SegmentHeader{Dest: 0x22010000, Size: 8}))
	err = s.LoadSegmentData(make([]byte, 16))
	require.ErrorAs(t, err, &romErr)
	assert.Equal(t, blboot.ROMImgSectionDataLenError, romErr.Code)
}

func TestFlashStartsErased(t *testing.T) {
	rom := romsim.New(blboot.BL60x(), romsim.WithFlashSize(4096))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 4096), rom.Flash(0, 4096))
	assert.Equal(t, make([]byte, 8), rom.Memory(0x22010000, 8))
}

func TestClosed(t *testing.T) {
	rom := romsim.New(blboot.BL60x())
	require.NoError(t, rom.Close())
	assert.True(t, rom.Closed())

	_, err := rom.Write([]byte{0x55})
	assert.ErrorIs(t, err, romsim.ErrClosed)
	_, err = rom.Read(make([]byte, 1))
	assert.ErrorIs(t, err, romsim.ErrClosed)
}

func TestBaudChangeNeedsResync(t *testing.T) {
	p := blboot.BL60x()
	rom := romsim.New(p)
	syncRaw(t, rom, p)

	require.NoError(t, rom.SetBaudRate(2000000))
	assert.Equal(t, 2000000, rom.BaudRate())

	frame, err := p.Request.Encode(0x10, nil)
	require.NoError(t, err)
	_, err = rom.Write(frame)
	require.NoError(t, err)
	_, err = blboot.ReadExact(rom, 1, wait)
	assert.ErrorIs(t, err, blboot.ErrTimeout)
}

type romReader struct {
	rom *romsim.ROM
}

func readerFor(rom *romsim.ROM) romReader {
	return romReader{rom}
}

func (r romReader) Read(p []byte) (int, error) {
	b, err := blboot.ReadExact(r.rom, len(p), wait)
	return copy(p, b), err
}
