// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openchirp/blboot"
)

var cmdMem = &cobra.Command{
	Use:   "mem",
	Short: "Read and write device memory",
}

var cmdMemRead = &cobra.Command{
	Use:   "read ADDR SIZE",
	Short: "Hex dump device memory",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemRead,
}

var cmdMemWrite = &cobra.Command{
	Use:   "write ADDR HEXBYTES",
	Short: "Write hex encoded bytes to device memory",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemWrite,
}

func init() {
	rootCmd.AddCommand(cmdMem)
	cmdMem.AddCommand(cmdMemRead, cmdMemWrite)
}

func runMemRead(cmd *cobra.Command, args []string) error {
	addr, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	size, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	var data []byte
	err = withSession(func(s *blboot.Session) error {
		data, err = s.ReadMemory(addr, size)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
	return nil
}

func runMemWrite(cmd *cobra.Command, args []string) error {
	addr, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(strings.ReplaceAll(args[1], " ", ""))
	if err != nil {
		return fmt.Errorf("%w: %v", blboot.ErrBadArguments, err)
	}
	err = withSession(func(s *blboot.Session) error {
		return s.WriteMemory(addr, data)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes at 0x%08X\n", len(data), addr)
	return nil
}
