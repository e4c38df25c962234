// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Session is a synchronized device. It is only obtained from Device.Sync and
// is not safe for concurrent use.
type Session struct {
	dev  *Device
	last time.Time
}

// Device returns the device the session talks to.
func (s *Session) Device() *Device {
	return s.dev
}

// Expired reports whether the device has been idle long enough to have
// reset itself.
func (s *Session) Expired() bool {
	idle := s.dev.profile.IdleReset
	return idle > 0 && s.dev.now().Sub(s.last) > idle
}

// exchange sends one command and returns the response payload, if the
// command has one. size is the number of bytes the command covers and
// scales its timeout.
func (s *Session) exchange(cmd Command, payload []byte, size int) ([]byte, error) {
	d := s.dev
	p := d.profile

	spec, err := p.Command(cmd)
	if err != nil {
		return nil, err
	}
	if s.Expired() {
		return nil, fmt.Errorf("%s: %w", cmd, ErrSessionExpired)
	}
	if p.MaxPayload > 0 && len(payload) > p.MaxPayload {
		return nil, fmt.Errorf("%s: %w: %d bytes, limit %d", cmd, ErrPayloadTooLarge, len(payload), p.MaxPayload)
	}
	frame, err := p.Request.Encode(spec.Code, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	if err := d.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	d.log.Trace().Str("cmd", string(cmd)).Hex("frame", frame).Msg("send")
	if err := d.write(frame); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	s.last = d.now()

	r := newDeadlineReader(d.port, spec.Budget(size))
	var resp []byte
	switch p.Response {
	case EchoResponse:
		resp, err = s.readEcho(cmd, spec, r)
	default:
		resp, err = s.readStatus(cmd, spec, r)
	}
	s.last = d.now()
	if err != nil {
		d.log.Debug().Str("cmd", string(cmd)).Err(err).Msg("command failed")
		return nil, err
	}
	d.log.Trace().Str("cmd", string(cmd)).Hex("payload", resp).Msg("recv")
	return resp, nil
}

func (s *Session) readStatus(cmd Command, spec CommandSpec, r io.Reader) ([]byte, error) {
	p := s.dev.profile

	status := make([]byte, len(p.OK))
	if n, err := io.ReadFull(r, status); err != nil {
		return nil, silence(cmd, n, len(status), err)
	}

	switch {
	case bytes.Equal(status, p.OK):
		if !spec.Reply {
			return nil, nil
		}
		body, err := p.ResponseFormat.ReadBody(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cmd, midFrame(err))
		}
		return body, nil

	case bytes.Equal(status, p.Fail):
		code := make([]byte, 2)
		if n, err := io.ReadFull(r, code); err != nil {
			return nil, fmt.Errorf("%s: %w: error code %d of 2 bytes: %v", cmd, ErrTruncatedFrame, n, err)
		}
		return nil, &ROMError{Command: cmd, Code: ROMErrorCode(binary.LittleEndian.Uint16(code))}

	default:
		return nil, &ResponseError{Command: cmd, Got: status}
	}
}

func (s *Session) readEcho(cmd Command, spec CommandSpec, r io.Reader) ([]byte, error) {
	p := s.dev.profile

	f, err := p.ResponseFormat.ReadFrame(r)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%s: %w", cmd, ErrNoResponse)
		}
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	switch f.Code {
	case spec.Code:
		return f.Payload, nil
	case p.FailCode:
		if len(f.Payload) != 2 {
			return nil, fmt.Errorf("%s: %w: failure payload is %d bytes", cmd, ErrLengthMismatch, len(f.Payload))
		}
		return nil, &ROMError{Command: cmd, Code: ROMErrorCode(binary.LittleEndian.Uint16(f.Payload))}
	default:
		return nil, &ResponseError{Command: cmd, Got: []byte{f.Code}}
	}
}

// silence classifies a failed read of the first response bytes.
func silence(cmd Command, got, want int, err error) error {
	switch {
	case got == 0 && errors.Is(err, ErrTimeout):
		return fmt.Errorf("%s: %w", cmd, ErrNoResponse)
	case got > 0:
		return fmt.Errorf("%s: %w: status %d of %d bytes: %v", cmd, ErrTruncatedFrame, got, want, err)
	default:
		return fmt.Errorf("%s: %w", cmd, err)
	}
}

// midFrame turns a timeout after the status word into a truncation.
func midFrame(err error) error {
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}
	return err
}
