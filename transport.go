// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Transport is a byte stream to the device.
//
// Read must return after at most the configured read timeout, with n == 0
// and a nil error when nothing arrived. Write must honour the transport's
// own write timeout and return an error wrapping ErrTimeout on expiry.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds how long a single Read may block.
	SetReadTimeout(d time.Duration) error

	// SetBaudRate changes the line speed of the open port.
	SetBaudRate(baud int) error

	// BaudRate returns the current line speed.
	BaudRate() int

	// ResetInputBuffer discards unread input.
	ResetInputBuffer() error
}

// ReadExact reads exactly n bytes from t. It returns an error wrapping
// ErrTimeout, along with the bytes that did arrive, when timeout elapses
// first.
func ReadExact(t Transport, n int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(newDeadlineReader(t, timeout), buf)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return buf[:got], fmt.Errorf("%w: read %d of %d bytes in %v", ErrTimeout, got, n, timeout)
		}
		return buf[:got], err
	}
	return buf, nil
}

// deadlineReader turns a transport with per-read timeouts into an
// io.Reader bounded by a single deadline. Each Read blocks until at least
// one byte arrives or the deadline passes.
type deadlineReader struct {
	t        Transport
	deadline time.Time
}

func newDeadlineReader(t Transport, timeout time.Duration) *deadlineReader {
	return &deadlineReader{t: t, deadline: time.Now().Add(timeout)}
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		remaining := time.Until(r.deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}
		if err := r.t.SetReadTimeout(remaining); err != nil {
			return 0, err
		}
		n, err := r.t.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
