// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchirp/blboot"
	"github.com/openchirp/blboot/romsim"
)

func profiles() map[string]blboot.Profile {
	return map[string]blboot.Profile{
		"bl60x":       blboot.BL60x(),
		"checksummed": blboot.Checksummed(),
	}
}

// synced returns a session on a simulated ROM speaking p.
func synced(t *testing.T, p blboot.Profile, opts ...blboot.Option) (*blboot.Session, *romsim.ROM) {
	t.Helper()
	rom := romsim.New(p)
	opts = append([]blboot.Option{blboot.WithProfile(p), blboot.WithAttempts(3, attemptTimeout)}, opts...)
	s, err := blboot.NewDevice(rom, opts...).Sync()
	require.NoError(t, err)
	return s, rom
}

func TestGetBootInfo(t *testing.T) {
	for name, p := range profiles() {
		t.Run(name, func(t *testing.T) {
			s, rom := synced(t, p)
			info, err := s.GetBootInfo()
			require.NoError(t, err)
			assert.Equal(t, uint32(1), info.Version)
			assert.Equal(t, romsim.DefaultBootInfo, info)

			frames := rom.Frames()
			require.Len(t, frames, 1)
			assert.Equal(t, byte(0x10), frames[0].Code)
			assert.Empty(t, frames[0].Payload)
		})
	}
}

func TestReplacedChecksum(t *testing.T) {
	p := blboot.Checksummed()
	p.Request.Checksum = blboot.CRC32
	p.ResponseFormat.Checksum = blboot.CRC32
	s, _ := synced(t, p)

	info, err := s.GetBootInfo()
	require.NoError(t, err)
	assert.Equal(t, romsim.DefaultBootInfo, info)
	require.NoError(t, s.WriteMemory(0x42020000, pattern(100)))
}

func TestGetBootInfoWire(t *testing.T) {
	resp := []byte{
		0x4F, 0x4B, 0x14, 0x00, 0x01, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
		0x58, 0x9E, 0x02, 0x42, 0xE8, 0xB4, 0x1D, 0x00,
	}
	p := newScriptPort([]byte("OK"), resp)
	s, err := blboot.NewDevice(p).Sync()
	require.NoError(t, err)

	info, err := s.GetBootInfo()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Version)
	for i, row := range exampleRows {
		assert.Equal(t, row, info.OTP.Row(i))
	}

	require.Len(t, p.written, 2)
	assert.Equal(t, []byte{0x10, 0x00, 0x00, 0x00}, p.written[1])
}

func TestROMError(t *testing.T) {
	for name, p := range profiles() {
		t.Run(name, func(t *testing.T) {
			s, rom := synced(t, p)
			rom.Fail(blboot.CmdGetBootInfo, blboot.ROMCmdSeqError)

			_, err := s.GetBootInfo()
			var romErr *blboot.ROMError
			require.ErrorAs(t, err, &romErr)
			assert.Equal(t, blboot.CmdGetBootInfo, romErr.Command)
			assert.Equal(t, blboot.ROMCmdSeqError, romErr.Code)
			assert.Contains(t, err.Error(), "CMD_SEQ_ERROR")
		})
	}
}

func TestUnexpectedStatus(t *testing.T) {
	s, rom := synced(t, blboot.BL60x())
	rom.MangleNext(func([]byte) []byte { return []byte("NG") })

	_, err := s.GetBootInfo()
	assert.ErrorIs(t, err, blboot.ErrUnexpectedCommandCode)

	var respErr *blboot.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, []byte("NG"), respErr.Got)
}

func TestUnexpectedEchoCode(t *testing.T) {
	p := blboot.Checksummed()
	s, rom := synced(t, p)
	rom.MangleNext(func([]byte) []byte {
		b, err := p.ResponseFormat.Encode(0x42, nil)
		require.NoError(t, err)
		return b
	})

	_, err := s.GetBootInfo()
	assert.ErrorIs(t, err, blboot.ErrUnexpectedCommandCode)
}

func TestResponseChecksumMismatch(t *testing.T) {
	s, rom := synced(t, blboot.Checksummed())
	rom.MangleNext(func(b []byte) []byte {
		b[len(b)-1] ^= 0x01
		return b
	})

	_, err := s.GetBootInfo()
	assert.ErrorIs(t, err, blboot.ErrChecksumMismatch)
}

func TestTruncatedResponse(t *testing.T) {
	for name, p := range profiles() {
		t.Run(name, func(t *testing.T) {
			p := fastProfile(p)
			s, rom := synced(t, p)
			rom.MangleNext(func(b []byte) []byte { return b[:len(b)-3] })

			_, err := s.GetBootInfo()
			assert.ErrorIs(t, err, blboot.ErrTruncatedFrame)
			assert.NotErrorIs(t, err, blboot.ErrNoResponse)
		})
	}
}

func TestPartialStatusWord(t *testing.T) {
	s, rom := synced(t, fastProfile(blboot.BL60x()))
	rom.MangleNext(func([]byte) []byte { return []byte("O") })

	_, err := s.GetBootInfo()
	assert.ErrorIs(t, err, blboot.ErrTruncatedFrame)
}

func TestSilentDevice(t *testing.T) {
	for name, p := range profiles() {
		t.Run(name, func(t *testing.T) {
			s, rom := synced(t, fastProfile(p))
			rom.Mute(blboot.CmdGetBootInfo)

			start := time.Now()
			_, err := s.GetBootInfo()
			assert.ErrorIs(t, err, blboot.ErrNoResponse)
			assert.ErrorIs(t, err, blboot.ErrTimeout)
			assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
		})
	}
}

func TestSessionExpires(t *testing.T) {
	clk := newFakeClock()
	p := blboot.BL60x()
	rom := romsim.New(p, romsim.WithClock(clk.Now))
	d := blboot.NewDevice(rom, blboot.WithClock(clk.Now), blboot.WithAttempts(3, attemptTimeout))

	s, err := d.Sync()
	require.NoError(t, err)
	_, err = s.GetBootInfo()
	require.NoError(t, err)

	clk.Advance(time.Second)
	assert.False(t, s.Expired())
	_, err = s.GetBootInfo()
	require.NoError(t, err)

	clk.Advance(p.IdleReset + time.Millisecond)
	assert.True(t, s.Expired())
	_, err = s.GetBootInfo()
	assert.ErrorIs(t, err, blboot.ErrSessionExpired)
	assert.Len(t, rom.Frames(), 2, "nothing is sent on an expired session")

	s, err = d.Sync()
	require.NoError(t, err)
	assert.Equal(t, 2, rom.Bursts())
	_, err = s.GetBootInfo()
	assert.NoError(t, err)
}

func TestDeviceResetUnnoticed(t *testing.T) {
	// A profile without idle tracking only learns of the reset from the
	// silence that follows.
	clk := newFakeClock()
	host := fastProfile(blboot.BL60x())
	host.IdleReset = 0
	rom := romsim.New(blboot.BL60x(), romsim.WithClock(clk.Now))
	d := blboot.NewDevice(rom, blboot.WithProfile(host), blboot.WithClock(clk.Now))

	s, err := d.Sync()
	require.NoError(t, err)
	clk.Advance(3 * time.Second)

	_, err = s.GetBootInfo()
	assert.ErrorIs(t, err, blboot.ErrNoResponse)
}

func TestUnsupportedCommand(t *testing.T) {
	p := blboot.BL60x()
	delete(p.Commands, blboot.CmdChipErase)
	s, rom := synced(t, p)

	err := s.EraseChip()
	assert.ErrorIs(t, err, blboot.ErrUnsupportedCommand)
	assert.Empty(t, rom.Frames())
}

func TestPayloadLimit(t *testing.T) {
	p := blboot.BL60x()
	p.MaxPayload = 64
	s, rom := synced(t, p)

	err := s.LoadBootHeader(make([]byte, blboot.BootHeaderSize))
	assert.ErrorIs(t, err, blboot.ErrPayloadTooLarge)
	assert.Empty(t, rom.Frames())
}

func TestWithSessionClosesPort(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rom := romsim.New(blboot.BL60x())
		err := blboot.WithSession(rom, func(s *blboot.Session) error {
			_, err := s.GetBootInfo()
			return err
		})
		assert.NoError(t, err)
		assert.True(t, rom.Closed())
	})

	t.Run("callback error", func(t *testing.T) {
		rom := romsim.New(blboot.BL60x())
		boom := errors.New("boom")
		err := blboot.WithSession(rom, func(*blboot.Session) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.True(t, rom.Closed())
	})

	t.Run("sync failure", func(t *testing.T) {
		rom := romsim.New(blboot.BL60x(), romsim.WithAckAfter(0))
		called := false
		err := blboot.WithSession(rom, func(*blboot.Session) error {
			called = true
			return nil
		}, blboot.WithAttempts(2, attemptTimeout))
		assert.ErrorIs(t, err, blboot.ErrNoResponse)
		assert.False(t, called)
		assert.True(t, rom.Closed())
	})
}

func TestCommandBudget(t *testing.T) {
	spec := blboot.CommandSpec{Timeout: time.Second, PerKiB: 10 * time.Millisecond}
	assert.Equal(t, time.Second, spec.Budget(0))
	assert.Equal(t, time.Second+10*time.Millisecond, spec.Budget(1))
	assert.Equal(t, time.Second+10*time.Millisecond, spec.Budget(1024))
	assert.Equal(t, time.Second+20*time.Millisecond, spec.Budget(1025))
	assert.Equal(t, 4092, blboot.BL60x().ChunkSize())
}
