// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot_test

import (
	"sync"
	"time"

	"github.com/openchirp/blboot"
)

// scriptPort replies to the n-th write with replies[n]. Reads with nothing
// pending wait out the read timeout.
type scriptPort struct {
	replies [][]byte
	pending []byte
	written [][]byte
	timeout time.Duration
	baud    int
	closed  bool
}

func newScriptPort(replies ...[]byte) *scriptPort {
	return &scriptPort{replies: replies, baud: blboot.DefaultBaudRate, timeout: 10 * time.Millisecond}
}

func (p *scriptPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		time.Sleep(p.timeout)
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.written = append(p.written, append([]byte(nil), b...))
	if len(p.replies) > 0 {
		p.pending = append(p.pending, p.replies[0]...)
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *scriptPort) Close() error {
	p.closed = true
	return nil
}

func (p *scriptPort) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return nil
}

func (p *scriptPort) SetBaudRate(baud int) error {
	p.baud = baud
	return nil
}

func (p *scriptPort) BaudRate() int { return p.baud }

func (p *scriptPort) ResetInputBuffer() error {
	p.pending = nil
	return nil
}

// dribblePort hands out its data one byte per read.
type dribblePort struct {
	scriptPort
}

func (p *dribblePort) Read(b []byte) (int, error) {
	if len(b) > 1 {
		b = b[:1]
	}
	return p.scriptPort.Read(b)
}

// fastProfile shortens every command budget so that failure cases finish
// quickly.
func fastProfile(p blboot.Profile) blboot.Profile {
	for name, spec := range p.Commands {
		spec.Timeout = 100 * time.Millisecond
		spec.PerKiB = 0
		p.Commands[name] = spec
	}
	return p
}

// fakeClock is a manually advanced clock shared by a device and a ROM.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2017, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
