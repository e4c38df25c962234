// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package romsim simulates a BL60x boot ROM and flash loader behind the
// blboot.Transport interface. It backs the tests and the CLI demo mode.
package romsim

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sync"
	"time"

	"github.com/openchirp/blboot"
)

// ErrClosed is returned by I/O on a closed simulator.
var ErrClosed = errors.New("romsim: port closed")

const (
	// DefaultFlashSize is the simulated flash size.
	DefaultFlashSize = 1 << 20
	// maxReadWait caps how long an empty Read sleeps.
	maxReadWait = 2 * time.Second
)

// DefaultBootInfo is what the simulated ROM reports unless told otherwise.
var DefaultBootInfo = blboot.BootInfo{
	Version: 1,
	OTP: blboot.OTPFlags{
		0x00, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x00, 0x00,
		0x58, 0x9e, 0x02, 0x42,
		0xe8, 0xb4, 0x1d, 0x00,
	},
}

// ROM is a simulated device. Responses are queued synchronously by Write
// and handed out by Read.
type ROM struct {
	mu sync.Mutex

	profile     blboot.Profile
	baud        int
	readTimeout time.Duration
	now         func() time.Time
	closed      bool

	out []byte
	in  []byte

	synced   bool
	bursts   int
	ackAfter int
	ack      []byte
	last     time.Time

	info       blboot.BootInfo
	flash      []byte
	mem        map[uint32]byte
	bootHeader []byte
	segDest    uint32
	segLeft    uint32
	running    bool

	failures map[blboot.Command]blboot.ROMErrorCode
	muted    map[blboot.Command]bool
	mangle   func([]byte) []byte
	frames   []blboot.Frame
}

// Option configures a ROM.
type Option func(*ROM)

// WithAckAfter makes the ROM acknowledge the k-th sync burst. Zero means it
// never acknowledges.
func WithAckAfter(k int) Option {
	return func(r *ROM) { r.ackAfter = k }
}

// WithAck replaces the acknowledgement the ROM sends.
func WithAck(ack []byte) Option {
	return func(r *ROM) { r.ack = ack }
}

// WithBootInfo sets the reply to the get boot info command.
func WithBootInfo(info blboot.BootInfo) Option {
	return func(r *ROM) { r.info = info }
}

// WithFlashSize sets the simulated flash size in bytes.
func WithFlashSize(n int) Option {
	return func(r *ROM) { r.flash = bytes.Repeat([]byte{0xFF}, n) }
}

// WithClock replaces the clock used to model the idle reset.
func WithClock(now func() time.Time) Option {
	return func(r *ROM) { r.now = now }
}

// New returns a simulated ROM speaking the given profile.
func New(p blboot.Profile, opts ...Option) *ROM {
	r := &ROM{
		profile:     p,
		baud:        blboot.DefaultBaudRate,
		readTimeout: 100 * time.Millisecond,
		now:         time.Now,
		ackAfter:    1,
		ack:         p.Ack,
		info:        DefaultBootInfo,
		mem:         make(map[uint32]byte),
		failures:    make(map[blboot.Command]blboot.ROMErrorCode),
		muted:       make(map[blboot.Command]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.flash == nil {
		r.flash = bytes.Repeat([]byte{0xFF}, DefaultFlashSize)
	}
	return r
}

// Fail makes every following cmd fail with code.
func (r *ROM) Fail(cmd blboot.Command, code blboot.ROMErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[cmd] = code
}

// Mute makes the ROM swallow cmd without replying.
func (r *ROM) Mute(cmd blboot.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted[cmd] = true
}

// MangleNext rewrites the next response before it is queued.
func (r *ROM) MangleNext(fn func([]byte) []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mangle = fn
}

// Bursts returns the number of sync bursts received.
func (r *ROM) Bursts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bursts
}

// Frames returns the request frames received since synchronization.
func (r *ROM) Frames() []blboot.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]blboot.Frame(nil), r.frames...)
}

// Flash returns a copy of n bytes of simulated flash at addr.
func (r *ROM) Flash(addr, n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.flash[addr:addr+n]...)
}

// Memory returns n bytes of simulated RAM at addr. Unwritten bytes read 0.
func (r *ROM) Memory(addr uint32, n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readMem(addr, n)
}

// Running reports whether a loaded image was started.
func (r *ROM) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Closed reports whether Close was called.
func (r *ROM) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Read hands out queued response bytes. With nothing queued it waits out
// the read timeout and returns no data.
func (r *ROM) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	if len(r.out) == 0 {
		wait := min(r.readTimeout, maxReadWait)
		r.mu.Unlock()
		time.Sleep(wait)
		return 0, nil
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	r.mu.Unlock()
	return n, nil
}

// Write feeds sync bursts and request frames to the ROM.
func (r *ROM) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}

	if r.synced && r.profile.IdleReset > 0 && r.now().Sub(r.last) > r.profile.IdleReset {
		r.synced = false
		r.in = nil
	}
	r.last = r.now()

	if len(r.in) == 0 && r.isBurst(p) {
		r.bursts++
		if r.ackAfter > 0 && r.bursts >= r.ackAfter {
			r.out = append(r.out, r.ack...)
			r.synced = true
			r.frames = nil
		}
		return len(p), nil
	}
	if !r.synced {
		return len(p), nil
	}

	r.in = append(r.in, p...)
	for {
		frame, ok := r.nextFrame()
		if !ok {
			break
		}
		r.handle(frame)
	}
	return len(p), nil
}

func (r *ROM) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *ROM) SetReadTimeout(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readTimeout = d
	return nil
}

// SetBaudRate changes the simulated line speed. The ROM autobauds, so a new
// speed needs a new handshake.
func (r *ROM) SetBaudRate(baud int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baud = baud
	r.synced = false
	return nil
}

func (r *ROM) BaudRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baud
}

func (r *ROM) ResetInputBuffer() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = nil
	return nil
}

func (r *ROM) isBurst(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	for _, b := range p {
		if b != r.profile.Sync.Byte {
			return false
		}
	}
	return true
}

// nextFrame cuts one complete request frame off the input buffer.
func (r *ROM) nextFrame() ([]byte, bool) {
	f := r.profile.Request
	hdr := 1 + 2
	trailer := 0
	if f.Placement == blboot.ChecksumAfterCode {
		hdr += f.Checksum.Size
	} else {
		trailer = f.Checksum.Size
	}
	if len(r.in) < hdr {
		return nil, false
	}
	total := hdr + int(binary.LittleEndian.Uint16(r.in[hdr-2:])) + trailer
	if len(r.in) < total {
		return nil, false
	}
	frame := r.in[:total]
	r.in = r.in[total:]
	return frame, true
}

func (r *ROM) handle(raw []byte) {
	frame, err := r.profile.Request.Decode(raw)
	if err != nil {
		r.reply(0, false, nil, blboot.ROMCmdCRCError)
		return
	}
	r.frames = append(r.frames, frame)

	cmd, ok := r.profile.CommandByCode(frame.Code)
	if !ok {
		r.reply(frame.Code, false, nil, blboot.ROMCmdIDError)
		return
	}
	spec, _ := r.profile.Command(cmd)
	if r.muted[cmd] {
		return
	}
	if code, ok := r.failures[cmd]; ok {
		r.reply(spec.Code, spec.Reply, nil, code)
		return
	}

	body, code := r.dispatch(cmd, frame.Payload)
	r.reply(spec.Code, spec.Reply, body, code)
}

func (r *ROM) dispatch(cmd blboot.Command, p []byte) ([]byte, blboot.ROMErrorCode) {
	switch cmd {
	case blboot.CmdGetBootInfo:
		return r.info.Bytes(), blboot.ROMSuccess

	case blboot.CmdLoadBootHeader:
		if len(p) != blboot.BootHeaderSize {
			return nil, blboot.ROMImgBootHeaderLenError
		}
		r.bootHeader = append([]byte(nil), p...)
		return nil, blboot.ROMSuccess

	case blboot.CmdLoadSegmentHeader:
		if len(p) != blboot.SegmentHeaderSize {
			return nil, blboot.ROMCmdLenError
		}
		if r.bootHeader == nil {
			return nil, blboot.ROMImgBootHeaderNotLoadError
		}
		if crc32.ChecksumIEEE(p[:12]) != binary.LittleEndian.Uint32(p[12:]) {
			return nil, blboot.ROMImgSectionHeaderCRCError
		}
		r.segDest = binary.LittleEndian.Uint32(p[0:])
		r.segLeft = binary.LittleEndian.Uint32(p[4:])
		return append([]byte(nil), p...), blboot.ROMSuccess

	case blboot.CmdLoadSegmentData:
		if r.segLeft == 0 {
			return nil, blboot.ROMCmdSeqError
		}
		if uint32(len(p)) > r.segLeft {
			return nil, blboot.ROMImgSectionDataLenError
		}
		r.writeMem(r.segDest, p)
		r.segDest += uint32(len(p))
		r.segLeft -= uint32(len(p))
		return nil, blboot.ROMSuccess

	case blboot.CmdCheckImage:
		if r.bootHeader == nil {
			return nil, blboot.ROMImgBootHeaderNotLoadError
		}
		return nil, blboot.ROMSuccess

	case blboot.CmdRunImage:
		r.running = true
		return nil, blboot.ROMSuccess

	case blboot.CmdFlashErase:
		if len(p) != 8 {
			return nil, blboot.ROMCmdLenError
		}
		start, end := binary.LittleEndian.Uint32(p[0:]), binary.LittleEndian.Uint32(p[4:])
		if start > end || int(end) >= len(r.flash) {
			return nil, blboot.ROMFlashEraseParaError
		}
		for i := start; i <= end; i++ {
			r.flash[i] = 0xFF
		}
		return nil, blboot.ROMSuccess

	case blboot.CmdChipErase:
		for i := range r.flash {
			r.flash[i] = 0xFF
		}
		return nil, blboot.ROMSuccess

	case blboot.CmdFlashWrite:
		if len(p) < 4 {
			return nil, blboot.ROMFlashWriteParaError
		}
		addr := int(binary.LittleEndian.Uint32(p))
		if addr+len(p)-4 > len(r.flash) {
			return nil, blboot.ROMFlashWriteAddrError
		}
		copy(r.flash[addr:], p[4:])
		return nil, blboot.ROMSuccess

	case blboot.CmdFlashRead, blboot.CmdFlashReadSHA:
		if len(p) != 8 {
			return nil, blboot.ROMCmdLenError
		}
		addr, n := int(binary.LittleEndian.Uint32(p[0:])), int(binary.LittleEndian.Uint32(p[4:]))
		if cmd == blboot.CmdFlashRead && r.tooLong(uint32(n)) {
			return nil, blboot.ROMCmdLenError
		}
		if addr+n > len(r.flash) {
			return nil, blboot.ROMFlashWriteAddrError
		}
		if cmd == blboot.CmdFlashReadSHA {
			sum := sha256.Sum256(r.flash[addr : addr+n])
			return sum[:], blboot.ROMSuccess
		}
		return append([]byte(nil), r.flash[addr:addr+n]...), blboot.ROMSuccess

	case blboot.CmdMemWrite:
		if len(p) < 4 {
			return nil, blboot.ROMCmdLenError
		}
		r.writeMem(binary.LittleEndian.Uint32(p), p[4:])
		return nil, blboot.ROMSuccess

	case blboot.CmdMemRead:
		if len(p) != 8 {
			return nil, blboot.ROMCmdLenError
		}
		addr, n := binary.LittleEndian.Uint32(p[0:]), binary.LittleEndian.Uint32(p[4:])
		if r.tooLong(n) {
			return nil, blboot.ROMCmdLenError
		}
		return r.readMem(addr, int(n)), blboot.ROMSuccess
	}
	return nil, blboot.ROMCmdIDError
}

// tooLong reports whether a read of n bytes cannot fit one response.
func (r *ROM) tooLong(n uint32) bool {
	return r.profile.MaxPayload > 0 && n > uint32(r.profile.MaxPayload)
}

// reply queues the response in the profile's style.
func (r *ROM) reply(code byte, hasBody bool, body []byte, status blboot.ROMErrorCode) {
	p := r.profile
	var resp []byte
	errCode := make([]byte, 2)
	binary.LittleEndian.PutUint16(errCode, uint16(status))

	switch p.Response {
	case blboot.EchoResponse:
		if status != blboot.ROMSuccess {
			resp, _ = p.ResponseFormat.Encode(p.FailCode, errCode)
		} else {
			resp, _ = p.ResponseFormat.Encode(code, body)
		}
	default:
		if status != blboot.ROMSuccess {
			resp = append(append([]byte(nil), p.Fail...), errCode...)
		} else {
			resp = append([]byte(nil), p.OK...)
			if hasBody {
				b, _ := p.ResponseFormat.EncodeBody(body)
				resp = append(resp, b...)
			}
		}
	}

	if r.mangle != nil {
		resp = r.mangle(resp)
		r.mangle = nil
	}
	r.out = append(r.out, resp...)
}

func (r *ROM) writeMem(addr uint32, data []byte) {
	for i, b := range data {
		r.mem[addr+uint32(i)] = b
	}
}

func (r *ROM) readMem(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = r.mem[addr+uint32(i)]
	}
	return out
}
