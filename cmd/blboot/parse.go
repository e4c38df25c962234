// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openchirp/blboot"
)

// parseNumber accepts decimal, 0x hex and 0o/0b literals with an optional
// K or M suffix (powers of 1024).
func parseNumber(s string) (uint32, error) {
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult, s = 1024, s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult, s = 1024*1024, s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", blboot.ErrBadArguments, s)
	}
	n *= mult
	if n > 0xFFFFFFFF {
		return 0, fmt.Errorf("%w: %q overflows 32 bits", blboot.ErrBadArguments, s)
	}
	return uint32(n), nil
}

type segment struct {
	addr uint32
	path string
}

// parseSegment splits an ADDR:FILE argument.
func parseSegment(s string) (segment, error) {
	addr, path, ok := strings.Cut(s, ":")
	if !ok || path == "" {
		return segment{}, fmt.Errorf("%w: segment %q is not ADDR:FILE", blboot.ErrBadArguments, s)
	}
	a, err := parseNumber(addr)
	if err != nil {
		return segment{}, err
	}
	return segment{addr: a, path: path}, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", blboot.ErrBadArguments, path)
	}
	return data, nil
}
