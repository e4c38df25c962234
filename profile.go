// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// DefaultBaudRate is the line speed the BL60x boot ROM autobauds to reliably.
const DefaultBaudRate = 500000

// SyncPattern is the autobaud burst written during the handshake.
type SyncPattern struct {
	Byte byte
	// Burst is how long the pattern should occupy the line.
	Burst time.Duration
	// MinBytes is the smallest burst ever sent, whatever the baud rate.
	MinBytes int
}

// Bytes returns one burst for the given baud rate, assuming 10 bits per
// byte on the wire.
func (s SyncPattern) Bytes(baud int) []byte {
	n := int(int64(baud) * int64(s.Burst) / int64(10*time.Second))
	if n < s.MinBytes {
		n = s.MinBytes
	}
	if n < 1 {
		n = 1
	}
	return bytes.Repeat([]byte{s.Byte}, n)
}

// ResponseStyle selects how a profile's responses are laid out.
type ResponseStyle int

const (
	// StatusResponse replies with a status word (OK or Fail). Commands with
	// a Reply follow OK with a length-prefixed body. Fail is followed by a
	// 16 bit little endian error code.
	StatusResponse ResponseStyle = iota
	// EchoResponse replies with a full frame carrying the request code, or
	// FailCode with a 16 bit little endian error code as payload.
	EchoResponse
)

func (r ResponseStyle) String() string {
	switch r {
	case StatusResponse:
		return "status"
	case EchoResponse:
		return "echo"
	default:
		return fmt.Sprintf("ResponseStyle(%d)", int(r))
	}
}

// Profile holds everything that differs between boot ROM dialects. It is
// plain data so that a configuration file can adjust it.
type Profile struct {
	Name string

	Sync SyncPattern
	Ack  []byte

	Request        Format
	Response       ResponseStyle
	ResponseFormat Format

	// Status words for StatusResponse.
	OK   []byte
	Fail []byte

	// FailCode is the response code of a failed EchoResponse.
	FailCode byte

	// IdleReset is how long the device tolerates silence before it falls
	// back to its reset state. Zero disables idle tracking.
	IdleReset time.Duration

	// MaxPayload is the largest request payload the device accepts.
	MaxPayload int

	Commands map[Command]CommandSpec
}

// Command returns the table entry for c.
func (p Profile) Command(c Command) (CommandSpec, error) {
	spec, ok := p.Commands[c]
	if !ok {
		return CommandSpec{}, fmt.Errorf("%w: %s in profile %s", ErrUnsupportedCommand, c, p.Name)
	}
	return spec, nil
}

// CommandByCode does the reverse lookup of a wire code.
func (p Profile) CommandByCode(code byte) (Command, bool) {
	for name, spec := range p.Commands {
		if spec.Code == code {
			return name, true
		}
	}
	return "", false
}

// ChunkSize is the data carried by one chunked transfer frame, leaving room
// for a 32 bit address.
func (p Profile) ChunkSize() int {
	return p.MaxPayload - 4
}

// BL60x returns the profile of the Bouffalo Lab BL60x boot ROM and its
// flash loader.
func BL60x() Profile {
	return Profile{
		Name: "bl60x",
		Sync: SyncPattern{Byte: 0x55, Burst: 5 * time.Millisecond, MinBytes: 108},
		Ack:  []byte("OK"),
		Request: Format{
			Checksum:  Sum8,
			Placement: ChecksumAfterCode,
		},
		Response:       StatusResponse,
		ResponseFormat: Format{Checksum: NoChecksum},
		OK:             []byte("OK"),
		Fail:           []byte("FL"),
		IdleReset:      2 * time.Second,
		MaxPayload:     4096,
		Commands:       defaultCommands(),
	}
}

// Checksummed returns a profile whose requests and responses share the
// [code][len lo][len hi][payload][sum8] layout, with the checksum covering
// every preceding byte. Responses echo the request code.
func Checksummed() Profile {
	f := Format{Checksum: Sum8, Placement: ChecksumTrailer, CoverCode: true}
	return Profile{
		Name:           "checksummed",
		Sync:           SyncPattern{Byte: 0x55, Burst: 2 * time.Millisecond, MinBytes: 16},
		Ack:            []byte("OK"),
		Request:        f,
		Response:       EchoResponse,
		ResponseFormat: f,
		FailCode:       0xFF,
		MaxPayload:     4096,
		Commands:       defaultCommands(),
	}
}

func defaultCommands() map[Command]CommandSpec {
	return map[Command]CommandSpec{
		CmdGetBootInfo:       {Code: 0x10, Timeout: 2 * time.Second, Reply: true},
		CmdLoadBootHeader:    {Code: 0x11, Timeout: 2 * time.Second},
		CmdLoadSegmentHeader: {Code: 0x17, Timeout: 2 * time.Second, Reply: true},
		CmdLoadSegmentData:   {Code: 0x18, Timeout: 2 * time.Second, PerKiB: 10 * time.Millisecond},
		CmdCheckImage:        {Code: 0x19, Timeout: 2 * time.Second},
		CmdRunImage:          {Code: 0x1a, Timeout: 2 * time.Second},
		CmdFlashErase:        {Code: 0x30, Timeout: 5 * time.Second, PerKiB: 100 * time.Millisecond},
		CmdFlashWrite:        {Code: 0x31, Timeout: 2 * time.Second, PerKiB: 20 * time.Millisecond},
		CmdFlashRead:         {Code: 0x32, Timeout: 2 * time.Second, PerKiB: 10 * time.Millisecond, Reply: true},
		CmdChipErase:         {Code: 0x3c, Timeout: 120 * time.Second},
		CmdFlashReadSHA:      {Code: 0x3d, Timeout: 5 * time.Second, PerKiB: 2 * time.Millisecond, Reply: true},
		CmdMemWrite:          {Code: 0x50, Timeout: 2 * time.Second, PerKiB: 10 * time.Millisecond},
		CmdMemRead:           {Code: 0x51, Timeout: 2 * time.Second, PerKiB: 10 * time.Millisecond, Reply: true},
	}
}

// LookupProfile returns a fresh copy of the named built-in profile.
func LookupProfile(name string) (Profile, error) {
	switch strings.ToLower(name) {
	case "", "bl60x", "bl602":
		return BL60x(), nil
	case "checksummed":
		return Checksummed(), nil
	default:
		return Profile{}, fmt.Errorf("%w: unknown profile %q", ErrBadArguments, name)
	}
}
