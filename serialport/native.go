// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package serialport

import (
	"time"

	"go.bug.st/serial"
)

// nativePort is backed by go.bug.st/serial. Its Read already returns
// (0, nil) when the read timeout expires.
type nativePort struct {
	serial.Port
}

func openNative(path string, baud int) (*nativePort, error) {
	port, err := serial.Open(path, mode(baud))
	if err != nil {
		return nil, mapOpenError(path, err)
	}
	return &nativePort{port}, nil
}

func mode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (n *nativePort) setReadTimeout(d time.Duration) error {
	return n.SetReadTimeout(d)
}

func (n *nativePort) setBaudRate(baud int) error {
	return n.SetMode(mode(baud))
}

func (n *nativePort) resetInput() error {
	return n.ResetInputBuffer()
}

func (n *nativePort) drain() error {
	return n.Drain()
}
