// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package serialport

import (
	"errors"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

const (
	// pollInterval is the VTIME granularity of the termios driver, in ms.
	pollInterval = 100
	// maxFlushReads bounds the reads spent discarding stale input.
	maxFlushReads = 64
)

// termiosPort is backed by github.com/jacobsa/go-serial with VMIN=0 and
// VTIME=100ms. A Read that sees no data returns io.EOF from the driver;
// reads are repeated until the configured timeout passes, so a timeout may
// be overshot by up to one poll interval.
type termiosPort struct {
	rwc         io.ReadWriteCloser
	options     serial.OpenOptions
	readTimeout time.Duration
}

func openTermios(path string, baud int) (*termiosPort, error) {
	options := serial.OpenOptions{
		PortName:              path,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: pollInterval,
	}
	rwc, err := serial.Open(options)
	if err != nil {
		return nil, mapOpenError(path, err)
	}
	return &termiosPort{rwc: rwc, options: options, readTimeout: time.Second}, nil
}

func (t *termiosPort) Read(p []byte) (int, error) {
	deadline := time.Now().Add(t.readTimeout)
	for {
		n, err := t.rwc.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
	}
}

func (t *termiosPort) Write(p []byte) (int, error) {
	return t.rwc.Write(p)
}

func (t *termiosPort) Close() error {
	return t.rwc.Close()
}

func (t *termiosPort) setReadTimeout(d time.Duration) error {
	t.readTimeout = d
	return nil
}

// setBaudRate reopens the port, the driver fixes the speed at open time.
func (t *termiosPort) setBaudRate(baud int) error {
	if err := t.rwc.Close(); err != nil {
		return err
	}
	options := t.options
	options.BaudRate = uint(baud)
	rwc, err := serial.Open(options)
	if err != nil {
		return mapOpenError(options.PortName, err)
	}
	t.rwc = rwc
	t.options = options
	return nil
}

// resetInput reads until the line has been quiet for one poll interval.
func (t *termiosPort) resetInput() error {
	buf := make([]byte, 256)
	for i := 0; i < maxFlushReads; i++ {
		n, err := t.rwc.Read(buf)
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (t *termiosPort) drain() error {
	return nil
}
