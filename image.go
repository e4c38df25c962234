// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Boot header magics, one per CPU.
var (
	MagicCPU0 = []byte("BFNP")
	MagicCPU1 = []byte("BFAP")
)

// Segment is a block of image data bound for RAM. Reserved is carried in
// the segment header as found in the image.
type Segment struct {
	Dest     uint32
	Reserved uint32
	Data     []byte
}

// Header returns the segment header announcing s.
func (s Segment) Header() SegmentHeader {
	return SegmentHeader{Dest: s.Dest, Size: uint32(len(s.Data)), Reserved: s.Reserved}
}

// Image is a RAM image as the vendor tools lay it out: a boot header
// followed by segments, each a SegmentHeader and its data.
type Image struct {
	BootHeader []byte
	Segments   []Segment
}

// ParseImage splits a RAM image into its boot header and segments. Segment
// headers must carry a valid CRC and every segment must be complete.
func ParseImage(b []byte) (*Image, error) {
	if len(b) < BootHeaderSize+SegmentHeaderSize {
		return nil, fmt.Errorf("%w: image of %d bytes is too short", ErrBadArguments, len(b))
	}
	magic := b[:4]
	if !bytes.Equal(magic, MagicCPU0) && !bytes.Equal(magic, MagicCPU1) {
		return nil, fmt.Errorf("%w: bad boot header magic %q", ErrBadArguments, magic)
	}

	img := &Image{BootHeader: b[:BootHeaderSize]}
	rest := b[BootHeaderSize:]
	for off := BootHeaderSize; len(rest) > 0; {
		if len(rest) < SegmentHeaderSize {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrBadArguments, len(rest), off)
		}
		h := SegmentHeader{
			Dest:     binary.LittleEndian.Uint32(rest[0:]),
			Size:     binary.LittleEndian.Uint32(rest[4:]),
			Reserved: binary.LittleEndian.Uint32(rest[8:]),
		}
		if crc := binary.LittleEndian.Uint32(rest[12:]); crc != h.CRC() {
			return nil, fmt.Errorf("%w: segment header at offset %d: crc 0x%08X, want 0x%08X", ErrBadArguments, off, crc, h.CRC())
		}
		rest = rest[SegmentHeaderSize:]
		off += SegmentHeaderSize
		if uint64(h.Size) > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: segment at offset %d needs %d bytes, %d left", ErrBadArguments, off, h.Size, len(rest))
		}
		img.Segments = append(img.Segments, Segment{Dest: h.Dest, Reserved: h.Reserved, Data: rest[:h.Size]})
		rest = rest[h.Size:]
		off += int(h.Size)
	}
	return img, nil
}

// LoadImage sends the boot header and every segment of img, then asks the
// boot ROM to check it.
func (s *Session) LoadImage(img *Image) error {
	if err := s.LoadBootHeader(img.BootHeader); err != nil {
		return err
	}
	for i, seg := range img.Segments {
		s.dev.log.Debug().Int("segment", i).Uint32("dest", seg.Dest).Int("size", len(seg.Data)).Msg("loading segment")
		if err := s.LoadSegment(seg); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return s.CheckImage()
}
