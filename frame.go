// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength is the largest payload a 16 bit length field can describe.
const MaxFrameLength = 0xFFFF

// Placement selects where the checksum sits in a frame.
type Placement int

const (
	// ChecksumTrailer lays frames out as [code][len lo][len hi][payload][checksum].
	ChecksumTrailer Placement = iota
	// ChecksumAfterCode lays frames out as [code][checksum][len lo][len hi][payload].
	ChecksumAfterCode
)

func (p Placement) String() string {
	switch p {
	case ChecksumTrailer:
		return "trailer"
	case ChecksumAfterCode:
		return "after-code"
	default:
		return fmt.Sprintf("Placement(%d)", int(p))
	}
}

// Format describes the framing of one direction of the protocol. The length
// field and payload are always covered by the checksum; CoverCode adds the
// code byte.
type Format struct {
	Checksum  Checksum
	Placement Placement
	CoverCode bool
}

// Frame is a decoded command or response.
type Frame struct {
	Code    byte
	Payload []byte
}

func (f Format) headerChecksum() int {
	if f.Placement == ChecksumAfterCode {
		return f.Checksum.Size
	}
	return 0
}

func (f Format) trailerChecksum() int {
	if f.Placement == ChecksumTrailer {
		return f.Checksum.Size
	}
	return 0
}

// Overhead returns the number of framing bytes around a payload, including
// the code byte.
func (f Format) Overhead() int {
	return 1 + 2 + f.Checksum.Size
}

// Encode builds a frame for code and payload.
func (f Format) Encode(code byte, payload []byte) ([]byte, error) {
	return f.encode([]byte{code}, payload)
}

// EncodeBody builds a frame without the leading code byte.
func (f Format) EncodeBody(payload []byte) ([]byte, error) {
	return f.encode(nil, payload)
}

func (f Format) encode(code, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	hdr := len(code) + f.headerChecksum()
	buf := make([]byte, hdr+2+len(payload)+f.trailerChecksum())
	copy(buf, code)
	binary.LittleEndian.PutUint16(buf[hdr:], uint16(len(payload)))
	copy(buf[hdr+2:], payload)

	covered := buf[hdr : hdr+2+len(payload)]
	var dst []byte
	if f.Placement == ChecksumAfterCode {
		dst = buf[len(code):hdr]
	} else {
		dst = buf[hdr+2+len(payload):]
	}
	if f.CoverCode && len(code) > 0 {
		f.Checksum.put(dst, code, covered)
	} else {
		f.Checksum.put(dst, covered)
	}
	return buf, nil
}

// Decode validates a complete frame and returns its contents.
func (f Format) Decode(b []byte) (Frame, error) {
	if len(b) < 1 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrTruncatedFrame)
	}
	payload, err := f.decode(b[:1], b[1:])
	if err != nil {
		return Frame{}, err
	}
	return Frame{Code: b[0], Payload: payload}, nil
}

// DecodeBody validates a frame without a code byte and returns its payload.
func (f Format) DecodeBody(b []byte) ([]byte, error) {
	return f.decode(nil, b)
}

func (f Format) decode(code, b []byte) ([]byte, error) {
	hdr := f.headerChecksum() + 2
	if len(b) < hdr {
		return nil, fmt.Errorf("%w: %d of %d header bytes", ErrTruncatedFrame, len(b), hdr)
	}
	n := int(binary.LittleEndian.Uint16(b[hdr-2:]))
	want := hdr + n + f.trailerChecksum()
	if len(b) < want {
		return nil, fmt.Errorf("%w: have %d bytes, length field requires %d", ErrTruncatedFrame, len(b), want)
	}
	if len(b) > want {
		return nil, fmt.Errorf("%w: %d bytes beyond declared length %d", ErrLengthMismatch, len(b)-want, n)
	}

	covered := b[hdr-2 : hdr+n]
	var got []byte
	if f.Placement == ChecksumAfterCode {
		got = b[:f.Checksum.Size]
	} else {
		got = b[hdr+n:]
	}
	expect := make([]byte, f.Checksum.Size)
	if f.CoverCode && len(code) > 0 {
		f.Checksum.put(expect, code, covered)
	} else {
		f.Checksum.put(expect, covered)
	}
	for i := range expect {
		if expect[i] != got[i] {
			return nil, fmt.Errorf("%w: got % X, computed % X", ErrChecksumMismatch, got, expect)
		}
	}

	payload := make([]byte, n)
	copy(payload, b[hdr:hdr+n])
	return payload, nil
}

// ReadFrame reads exactly one frame from r. The length field decides how many
// payload bytes are consumed; nothing past the frame is read. A stream that
// ends early yields ErrTruncatedFrame, or the reader's own timeout error if
// not a single byte arrived.
func (f Format) ReadFrame(r io.Reader) (Frame, error) {
	buf, err := f.read(r, 1)
	if err != nil {
		return Frame{}, err
	}
	return f.Decode(buf)
}

// ReadBody reads one frame without a code byte from r.
func (f Format) ReadBody(r io.Reader) ([]byte, error) {
	buf, err := f.read(r, 0)
	if err != nil {
		return nil, err
	}
	return f.DecodeBody(buf)
}

func (f Format) read(r io.Reader, codeLen int) ([]byte, error) {
	hdr := codeLen + f.headerChecksum() + 2
	buf := make([]byte, hdr)
	if n, err := io.ReadFull(r, buf); err != nil {
		return nil, readError(n, hdr, err)
	}
	n := int(binary.LittleEndian.Uint16(buf[hdr-2:]))
	rest := n + f.trailerChecksum()
	buf = append(buf, make([]byte, rest)...)
	if got, err := io.ReadFull(r, buf[hdr:]); err != nil {
		return nil, readError(hdr+got, hdr+rest, err)
	}
	return buf, nil
}

// readError classifies a short read. Silence before the first byte is the
// reader's error; anything that stops mid-frame is a truncation.
func readError(got, want int, err error) error {
	if got == 0 && !errors.Is(err, io.EOF) {
		return err
	}
	return fmt.Errorf("%w: received %d of %d bytes: %v", ErrTruncatedFrame, got, want, err)
}
