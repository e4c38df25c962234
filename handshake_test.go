// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchirp/blboot"
	"github.com/openchirp/blboot/romsim"
)

const attemptTimeout = 50 * time.Millisecond

func TestSyncBurstLength(t *testing.T) {
	p := blboot.BL60x().Sync
	assert.Len(t, p.Bytes(500000), 250)
	assert.Len(t, p.Bytes(2000000), 1000)
	assert.Len(t, p.Bytes(9600), 108)
	assert.Equal(t, bytes.Repeat([]byte{0x55}, 108), p.Bytes(115200))
}

func TestSyncAcknowledgedOnAttempt(t *testing.T) {
	for k := 1; k <= blboot.DefaultAttempts; k++ {
		t.Run(fmt.Sprintf("attempt %d", k), func(t *testing.T) {
			rom := romsim.New(blboot.BL60x(), romsim.WithAckAfter(k))
			d := blboot.NewDevice(rom, blboot.WithAttempts(blboot.DefaultAttempts, attemptTimeout))

			s, err := d.Sync()
			require.NoError(t, err)
			assert.NotNil(t, s)
			assert.Equal(t, k, rom.Bursts())
		})
	}
}

func TestSyncNeverAcknowledged(t *testing.T) {
	rom := romsim.New(blboot.BL60x(), romsim.WithAckAfter(0))
	d := blboot.NewDevice(rom, blboot.WithAttempts(3, attemptTimeout))

	start := time.Now()
	s, err := d.Sync()
	elapsed := time.Since(start)

	assert.Nil(t, s)
	assert.ErrorIs(t, err, blboot.ErrNoResponse)
	assert.ErrorIs(t, err, blboot.ErrTimeout)
	assert.Equal(t, 3, rom.Bursts())
	assert.GreaterOrEqual(t, elapsed, 3*attemptTimeout)
}

func TestSyncWrongAcknowledgement(t *testing.T) {
	rom := romsim.New(blboot.BL60x(), romsim.WithAck([]byte("NO")))
	d := blboot.NewDevice(rom, blboot.WithAttempts(5, attemptTimeout))

	_, err := d.Sync()
	assert.ErrorIs(t, err, blboot.ErrUnexpectedAck)

	var ackErr *blboot.AckError
	require.ErrorAs(t, err, &ackErr)
	assert.Equal(t, []byte("NO"), ackErr.Got)
	assert.Equal(t, []byte("OK"), ackErr.Want)
	assert.Equal(t, 1, rom.Bursts())
}

func TestSyncShortWrongAcknowledgement(t *testing.T) {
	p := newScriptPort([]byte("X"), []byte("X"), []byte("X"), []byte("X"), []byte("X"))
	d := blboot.NewDevice(p, blboot.WithAttempts(5, attemptTimeout))

	_, err := d.Sync()
	assert.ErrorIs(t, err, blboot.ErrUnexpectedAck)

	var ackErr *blboot.AckError
	require.ErrorAs(t, err, &ackErr)
	assert.Equal(t, []byte("X"), ackErr.Got)
	assert.Len(t, p.written, 1)
}

func TestSyncPartialAcknowledgementRetries(t *testing.T) {
	// Half an ack is not a mismatch; the next burst gets a full one.
	p := newScriptPort([]byte("O"), []byte("OK"))
	d := blboot.NewDevice(p, blboot.WithAttempts(3, attemptTimeout))

	s, err := d.Sync()
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Len(t, p.written, 2)
}

func TestSyncDiscardsStaleInput(t *testing.T) {
	// The garbage arrives before the burst and is purged ahead of it.
	p := newScriptPort()
	p.pending = []byte("garbage")
	p.replies = [][]byte{[]byte("OK")}
	d := blboot.NewDevice(p, blboot.WithAttempts(1, attemptTimeout))

	_, err := d.Sync()
	require.NoError(t, err)
	require.Len(t, p.written, 1)
	assert.Len(t, p.written[0], 250)
}

func TestResyncAfterBaudChange(t *testing.T) {
	p := fastProfile(blboot.BL60x())
	rom := romsim.New(p)
	d := blboot.NewDevice(rom, blboot.WithProfile(p), blboot.WithAttempts(3, attemptTimeout))
	s, err := d.Sync()
	require.NoError(t, err)
	require.Same(t, d, s.Device())

	require.NoError(t, s.Device().SetBaudRate(2000000))
	assert.Equal(t, 2000000, rom.BaudRate())

	// The ROM autobauds, so the old session no longer gets answers.
	_, err = s.GetBootInfo()
	assert.ErrorIs(t, err, blboot.ErrNoResponse)

	s, err = d.Sync()
	require.NoError(t, err)
	assert.Equal(t, 2, rom.Bursts())
	_, err = s.GetBootInfo()
	assert.NoError(t, err)
}
