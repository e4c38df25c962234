// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// GetBootInfo asks the boot ROM for its version and OTP flags.
func (s *Session) GetBootInfo() (BootInfo, error) {
	resp, err := s.exchange(CmdGetBootInfo, nil, 0)
	if err != nil {
		return BootInfo{}, err
	}
	info, err := DecodeBootInfo(resp)
	if err != nil {
		return BootInfo{}, fmt.Errorf("%s: %w", CmdGetBootInfo, err)
	}
	return info, nil
}

// LoadBootHeader sends the boot header of a RAM image. It must precede the
// image's segments.
func (s *Session) LoadBootHeader(header []byte) error {
	if len(header) != BootHeaderSize {
		return fmt.Errorf("%w: boot header is %d bytes, want %d", ErrBadArguments, len(header), BootHeaderSize)
	}
	_, err := s.exchange(CmdLoadBootHeader, header, len(header))
	return err
}

// SegmentHeader announces a block of image data and where it goes in RAM.
type SegmentHeader struct {
	Dest     uint32
	Size     uint32
	Reserved uint32
}

// Bytes encodes the header followed by the CRC-32 of its first 12 bytes.
func (h SegmentHeader) Bytes() []byte {
	b := make([]byte, SegmentHeaderSize)
	binary.LittleEndian.PutUint32(b[0:], h.Dest)
	binary.LittleEndian.PutUint32(b[4:], h.Size)
	binary.LittleEndian.PutUint32(b[8:], h.Reserved)
	binary.LittleEndian.PutUint32(b[12:], crc32.ChecksumIEEE(b[:12]))
	return b
}

// CRC returns the checksum carried in the encoded header.
func (h SegmentHeader) CRC() uint32 {
	return binary.LittleEndian.Uint32(h.Bytes()[12:])
}

// LoadSegmentHeader sends a segment header and checks that the device
// echoes it back unchanged.
func (s *Session) LoadSegmentHeader(h SegmentHeader) error {
	want := h.Bytes()
	resp, err := s.exchange(CmdLoadSegmentHeader, want, len(want))
	if err != nil {
		return err
	}
	if len(resp) != len(want) {
		return fmt.Errorf("%s: %w: echo is %d bytes, want %d", CmdLoadSegmentHeader, ErrLengthMismatch, len(resp), len(want))
	}
	if !bytes.Equal(resp, want) {
		return &ResponseError{Command: CmdLoadSegmentHeader, Got: resp}
	}
	return nil
}

// LoadSegmentData streams segment data in frames of at most ChunkSize bytes.
func (s *Session) LoadSegmentData(data []byte) error {
	chunk := s.dev.profile.ChunkSize()
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		if _, err := s.exchange(CmdLoadSegmentData, data[off:end], end-off); err != nil {
			return fmt.Errorf("segment data at offset %d: %w", off, err)
		}
		s.report(CmdLoadSegmentData, end, len(data))
	}
	return nil
}

// LoadSegment sends the header of seg, sized to its data, followed by the
// data itself.
func (s *Session) LoadSegment(seg Segment) error {
	err := s.LoadSegmentHeader(seg.Header())
	if err != nil {
		return err
	}
	return s.LoadSegmentData(seg.Data)
}

// CheckImage asks the boot ROM to validate the loaded image.
func (s *Session) CheckImage() error {
	_, err := s.exchange(CmdCheckImage, nil, 0)
	return err
}

// RunImage starts the loaded image. The session is of no further use once
// the image runs.
func (s *Session) RunImage() error {
	_, err := s.exchange(CmdRunImage, nil, 0)
	return err
}

// EraseFlash erases size bytes of flash starting at addr.
func (s *Session) EraseFlash(addr, size uint32) error {
	if size == 0 {
		return fmt.Errorf("%w: erase of zero bytes", ErrBadArguments)
	}
	if err := checkRange(CmdFlashErase, addr, uint64(size)); err != nil {
		return err
	}
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], addr)
	binary.LittleEndian.PutUint32(payload[4:], addr+size-1)
	_, err := s.exchange(CmdFlashErase, payload, int(size))
	return err
}

// EraseChip erases the whole flash.
func (s *Session) EraseChip() error {
	_, err := s.exchange(CmdChipErase, nil, 0)
	return err
}

// WriteFlash programs data at addr. The region must have been erased.
func (s *Session) WriteFlash(addr uint32, data []byte) error {
	return s.writeChunked(CmdFlashWrite, addr, data)
}

// ReadFlash reads size bytes of flash starting at addr.
func (s *Session) ReadFlash(addr, size uint32) ([]byte, error) {
	return s.readChunked(CmdFlashRead, addr, size)
}

// FlashSHA256 asks the device for the SHA-256 digest of a flash region.
func (s *Session) FlashSHA256(addr, size uint32) ([SHA256Size]byte, error) {
	var sum [SHA256Size]byte
	if err := checkRange(CmdFlashReadSHA, addr, uint64(size)); err != nil {
		return sum, err
	}
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], addr)
	binary.LittleEndian.PutUint32(payload[4:], size)
	resp, err := s.exchange(CmdFlashReadSHA, payload, int(size))
	if err != nil {
		return sum, err
	}
	if len(resp) != SHA256Size {
		return sum, fmt.Errorf("%s: %w: digest is %d bytes", CmdFlashReadSHA, ErrLengthMismatch, len(resp))
	}
	copy(sum[:], resp)
	return sum, nil
}

// VerifyFlash compares the flash at addr against data by digest.
func (s *Session) VerifyFlash(addr uint32, data []byte) error {
	want := sha256.Sum256(data)
	got, err := s.FlashSHA256(addr, uint32(len(data)))
	if err != nil {
		return err
	}
	if got != want {
		return &VerifyError{Address: addr, Size: uint32(len(data)), Expected: want, Actual: got}
	}
	return nil
}

// ReadMemory reads size bytes of device memory starting at addr.
func (s *Session) ReadMemory(addr, size uint32) ([]byte, error) {
	return s.readChunked(CmdMemRead, addr, size)
}

// WriteMemory writes data to device memory at addr.
func (s *Session) WriteMemory(addr uint32, data []byte) error {
	return s.writeChunked(CmdMemWrite, addr, data)
}

func (s *Session) writeChunked(cmd Command, addr uint32, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s of zero bytes", ErrBadArguments, cmd)
	}
	if err := checkRange(cmd, addr, uint64(len(data))); err != nil {
		return err
	}
	chunk := s.dev.profile.ChunkSize()
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		payload := make([]byte, 4+end-off)
		binary.LittleEndian.PutUint32(payload, addr+uint32(off))
		copy(payload[4:], data[off:end])
		if _, err := s.exchange(cmd, payload, end-off); err != nil {
			return fmt.Errorf("at 0x%08X: %w", addr+uint32(off), err)
		}
		s.report(cmd, end, len(data))
	}
	return nil
}

// readChunked returns nothing unless every chunk arrives intact.
func (s *Session) readChunked(cmd Command, addr, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: %s of zero bytes", ErrBadArguments, cmd)
	}
	if err := checkRange(cmd, addr, uint64(size)); err != nil {
		return nil, err
	}
	chunk := uint32(s.dev.profile.ChunkSize())
	out := make([]byte, 0, min(chunk, size))
	for off := uint32(0); off < size; off += chunk {
		n := min(chunk, size-off)
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint32(payload[0:], addr+off)
		binary.LittleEndian.PutUint32(payload[4:], n)
		resp, err := s.exchange(cmd, payload, int(n))
		if err != nil {
			return nil, fmt.Errorf("at 0x%08X: %w", addr+off, err)
		}
		if uint32(len(resp)) != n {
			return nil, fmt.Errorf("%s at 0x%08X: %w: got %d bytes, want %d", cmd, addr+off, ErrLengthMismatch, len(resp), n)
		}
		out = append(out, resp...)
		s.report(cmd, len(out), int(size))
	}
	return out, nil
}

// checkRange rejects regions that run past the top of the 32 bit address
// space.
func checkRange(cmd Command, addr uint32, size uint64) error {
	if uint64(addr)+size > 1<<32 {
		return fmt.Errorf("%w: %s of %d bytes at 0x%08X wraps the address space", ErrBadArguments, cmd, size, addr)
	}
	return nil
}

func (s *Session) report(cmd Command, done, total int) {
	if s.dev.progress != nil {
		s.dev.progress(cmd, done, total)
	}
}
