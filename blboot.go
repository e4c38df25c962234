// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package blboot provides the low level interface to the serial boot ROM
// of the Bouffalo Lab BL60x family, and to the flash loader that shares its
// framing.
//
// A Device wraps an open Transport. Device.Sync performs the autobaud
// handshake and returns a Session; every command is a Session method, so
// nothing can be sent to a device that has not acknowledged the handshake.
//
// The wire format is described by a Profile. BL60x matches the physical
// boot ROM: requests are [cmd][sum8][len lo][len hi][payload] and responses
// are "OK" (optionally followed by [len lo][len hi][payload]) or "FL"
// followed by a 16 bit error code.
package blboot

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultAttempts is the number of handshake bursts sent before giving up.
	DefaultAttempts = 5
	// DefaultAttemptTimeout is how long each burst waits for the ack.
	DefaultAttemptTimeout = 500 * time.Millisecond
)

// ProgressFunc reports the progress of a chunked transfer.
type ProgressFunc func(cmd Command, done, total int)

// Device is a boot ROM on the other end of a Transport.
type Device struct {
	port           Transport
	profile        Profile
	attempts       int
	attemptTimeout time.Duration
	log            zerolog.Logger
	progress       ProgressFunc
	now            func() time.Time
}

// Option configures a Device.
type Option func(*Device)

// WithProfile selects the protocol dialect. The default is BL60x.
func WithProfile(p Profile) Option {
	return func(d *Device) { d.profile = p }
}

// WithAttempts sets the handshake retry policy.
func WithAttempts(attempts int, perAttempt time.Duration) Option {
	return func(d *Device) {
		if attempts > 0 {
			d.attempts = attempts
		}
		if perAttempt > 0 {
			d.attemptTimeout = perAttempt
		}
	}
}

// WithLogger sets the logger. Handshake attempts are logged at debug level,
// frames at trace level.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithProgress registers a callback for chunked transfers.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Device) { d.progress = fn }
}

// WithClock replaces the clock used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// NewDevice sets up a boot ROM device on an open transport. The device owns
// the transport from here on.
func NewDevice(port Transport, opts ...Option) *Device {
	d := &Device{
		port:           port,
		profile:        BL60x(),
		attempts:       DefaultAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		log:            zerolog.Nop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Profile returns the dialect in use.
func (d *Device) Profile() Profile {
	return d.profile
}

// Close releases the transport.
func (d *Device) Close() error {
	return d.port.Close()
}

// SetBaudRate changes the line speed. Any session established at the old
// speed should be considered lost.
func (d *Device) SetBaudRate(baud int) error {
	d.log.Debug().Int("baud", baud).Msg("changing baud rate")
	return d.port.SetBaudRate(baud)
}

// WithSession synchronizes with the device on port, runs fn, and closes the
// port whatever the outcome.
func WithSession(port Transport, fn func(*Session) error, opts ...Option) (err error) {
	d := NewDevice(port, opts...)
	defer func() {
		if cerr := d.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing port: %w", cerr)
		}
	}()

	s, err := d.Sync()
	if err != nil {
		return err
	}
	return fn(s)
}

func (d *Device) write(b []byte) error {
	n, err := d.port.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(b), io.ErrShortWrite)
	}
	return nil
}
