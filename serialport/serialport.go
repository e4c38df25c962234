// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package serialport opens serial devices as blboot transports.
//
// Two drivers are available. The native driver (go.bug.st/serial) supports
// arbitrary read timeouts, input purging and output draining. The termios
// driver (github.com/jacobsa/go-serial) polls in 100 ms steps and reopens
// the port to change speed.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/openchirp/blboot"
)

// Driver selects the serial port implementation.
type Driver string

const (
	Native  = Driver("native")
	Termios = Driver("termios")
)

// Config describes the port to open.
type Config struct {
	Path         string
	Baud         int
	Driver       Driver
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the settings the BL60x boot ROM expects.
func DefaultConfig() Config {
	return Config{
		Baud:         blboot.DefaultBaudRate,
		Driver:       Native,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

type backend interface {
	io.ReadWriteCloser
	setReadTimeout(d time.Duration) error
	setBaudRate(baud int) error
	resetInput() error
	drain() error
}

// Port is an open serial device. It implements blboot.Transport.
type Port struct {
	backend      backend
	path         string
	baud         int
	writeTimeout time.Duration
	log          zerolog.Logger
}

// Open opens the device described by cfg. Failures wrap
// blboot.ErrDeviceNotFound, blboot.ErrPermissionDenied or blboot.ErrPortBusy
// when the cause is known.
func Open(cfg Config, log zerolog.Logger) (*Port, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: no serial device given", blboot.ErrBadArguments)
	}
	if cfg.Baud <= 0 {
		cfg.Baud = blboot.DefaultBaudRate
	}

	var (
		b   backend
		err error
	)
	switch cfg.Driver {
	case Native, "":
		b, err = openNative(cfg.Path, cfg.Baud)
	case Termios:
		b, err = openTermios(cfg.Path, cfg.Baud)
	default:
		return nil, fmt.Errorf("%w: unknown serial driver %q", blboot.ErrBadArguments, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	p := &Port{
		backend:      b,
		path:         cfg.Path,
		baud:         cfg.Baud,
		writeTimeout: cfg.WriteTimeout,
		log:          log,
	}
	if cfg.ReadTimeout > 0 {
		if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
			p.Close()
			return nil, err
		}
	}
	log.Debug().
		Str("port", cfg.Path).
		Str("driver", string(cfg.Driver)).
		Int("baud", cfg.Baud).
		Msg("serial port opened")
	return p, nil
}

// List returns the serial ports present on the system.
func List() ([]string, error) {
	return serial.GetPortsList()
}

func (p *Port) Read(b []byte) (int, error) {
	return p.backend.Read(b)
}

// Write sends b and waits for it to leave the port. It gives up with an
// error wrapping blboot.ErrTimeout once the write timeout elapses.
func (p *Port) Write(b []byte) (int, error) {
	if p.writeTimeout <= 0 {
		return p.writeAll(b)
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.writeAll(b)
		done <- result{n, err}
	}()

	timer := time.NewTimer(p.writeTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		return 0, fmt.Errorf("write %d bytes to %s: %w", len(b), p.path, blboot.ErrTimeout)
	}
}

func (p *Port) writeAll(b []byte) (int, error) {
	n, err := p.backend.Write(b)
	if err != nil {
		return n, err
	}
	return n, p.backend.drain()
}

func (p *Port) Close() error {
	p.log.Debug().Str("port", p.path).Msg("serial port closed")
	return p.backend.Close()
}

func (p *Port) SetReadTimeout(d time.Duration) error {
	return p.backend.setReadTimeout(d)
}

func (p *Port) SetBaudRate(baud int) error {
	if err := p.backend.setBaudRate(baud); err != nil {
		return fmt.Errorf("set baud rate %d on %s: %w", baud, p.path, err)
	}
	p.baud = baud
	return nil
}

func (p *Port) BaudRate() int {
	return p.baud
}

func (p *Port) ResetInputBuffer() error {
	return p.backend.resetInput()
}

// mapOpenError translates driver specific open failures into the blboot
// acquisition errors.
func mapOpenError(path string, err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PortBusy:
			return fmt.Errorf("open %s: %w: %v", path, blboot.ErrPortBusy, err)
		case serial.PermissionDenied:
			return fmt.Errorf("open %s: %w: %v", path, blboot.ErrPermissionDenied, err)
		case serial.PortNotFound:
			return fmt.Errorf("open %s: %w: %v", path, blboot.ErrDeviceNotFound, err)
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("open %s: %w: %v", path, blboot.ErrDeviceNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("open %s: %w: %v", path, blboot.ErrPermissionDenied, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("open %s: %w: %v", path, blboot.ErrPortBusy, err)
	}
	return fmt.Errorf("open %s: %w", path, err)
}
