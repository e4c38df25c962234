// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"errors"
	"fmt"
)

// Port acquisition errors. These are fatal and never retried.
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied opening serial device")
	ErrPortBusy         = errors.New("serial device is busy")
)

// ErrTimeout is returned when a read or write does not complete within its
// budget.
var ErrTimeout = errors.New("timed out waiting for device")

// ErrNoResponse is returned when the device stays silent. It wraps
// ErrTimeout.
var ErrNoResponse = fmt.Errorf("no response from device: %w", ErrTimeout)

var ErrUnexpectedAck = errors.New("unexpected handshake acknowledgement")

var ErrUnexpectedCommandCode = errors.New("unexpected command code in response")

var ErrChecksumMismatch = errors.New("frame checksum mismatch")

var ErrLengthMismatch = errors.New("frame length mismatch")

// ErrTruncatedFrame means the frame ended before its declared length. A
// truncated frame is also a length mismatch.
var ErrTruncatedFrame = fmt.Errorf("%w: truncated frame", ErrLengthMismatch)

var ErrPayloadTooLarge = errors.New("payload exceeds the maximum frame length")

var ErrBadArguments = errors.New("the arguments supplied are invalid")

var ErrUnsupportedCommand = errors.New("command not supported by this profile")

// ErrSessionExpired is returned when the boot ROM has been idle long enough
// to fall back to its reset state. The device must be synchronized again.
var ErrSessionExpired = errors.New("session expired, device must be synchronized again")

var ErrVerifyMismatch = errors.New("flash contents do not match")

// AckError carries the bytes received in place of the handshake
// acknowledgement.
type AckError struct {
	Want []byte
	Got  []byte
}

func (e *AckError) Error() string {
	return fmt.Sprintf("unexpected handshake acknowledgement: got % X, want % X", e.Got, e.Want)
}

func (e *AckError) Unwrap() error { return ErrUnexpectedAck }

// ResponseError reports a response whose status or echoed command code did
// not match the request.
type ResponseError struct {
	Command Command
	Got     []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response % X", e.Command, e.Got)
}

func (e *ResponseError) Unwrap() error { return ErrUnexpectedCommandCode }

// ROMError is a failure reported by the device itself.
type ROMError struct {
	Command Command
	Code    ROMErrorCode
}

func (e *ROMError) Error() string {
	return fmt.Sprintf("%s: device reported %v (0x%04X)", e.Command, e.Code, uint16(e.Code))
}

// VerifyError reports a flash region whose digest does not match the
// expected data.
type VerifyError struct {
	Address  uint32
	Size     uint32
	Expected [32]byte
	Actual   [32]byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("flash verify failed at 0x%08X (%d bytes): sha256 %x, want %x",
		e.Address, e.Size, e.Actual, e.Expected)
}

func (e *VerifyError) Unwrap() error { return ErrVerifyMismatch }
