// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openchirp/blboot"
)

var cmdFlash = &cobra.Command{
	Use:   "flash",
	Short: "Read, write, erase and verify external flash",
}

var cmdFlashRead = &cobra.Command{
	Use:   "read ADDR SIZE [FILE]",
	Short: "Read flash to a file, or hex dump it",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runFlashRead,
}

var cmdFlashWrite = &cobra.Command{
	Use:   "write FILE ADDR",
	Short: "Erase, program and verify a file at ADDR",
	Args:  cobra.ExactArgs(2),
	RunE:  runFlashWrite,
}

var cmdFlashErase = &cobra.Command{
	Use:   "erase [ADDR SIZE]",
	Short: "Erase a flash region, or the whole chip with --chip",
	RunE:  runFlashErase,
}

var cmdFlashVerify = &cobra.Command{
	Use:   "verify FILE ADDR",
	Short: "Compare flash at ADDR against a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runFlashVerify,
}

var (
	flashNoErase  bool
	flashNoVerify bool
	flashChip     bool
)

func init() {
	rootCmd.AddCommand(cmdFlash)
	cmdFlash.AddCommand(cmdFlashRead, cmdFlashWrite, cmdFlashErase, cmdFlashVerify)
	cmdFlashWrite.Flags().BoolVar(&flashNoErase, "no-erase", false, "Skip erasing the region first")
	cmdFlashWrite.Flags().BoolVar(&flashNoVerify, "no-verify", false, "Skip verifying after writing")
	cmdFlashErase.Flags().BoolVar(&flashChip, "chip", false, "Erase the whole chip")
}

func runFlashRead(cmd *cobra.Command, args []string) error {
	addr, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	size, err := parseNumber(args[1])
	if err != nil {
		return err
	}

	opts, wait := progressOptions()
	var data []byte
	err = withSession(func(s *blboot.Session) error {
		data, err = s.ReadFlash(addr, size)
		return err
	}, opts...)
	wait()
	if err != nil {
		return err
	}

	if len(args) == 3 {
		if err := os.WriteFile(args[2], data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "read %d bytes at 0x%08X into %s\n", len(data), addr, args[2])
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
	return nil
}

func runFlashWrite(cmd *cobra.Command, args []string) error {
	data, err := readFile(args[0])
	if err != nil {
		return err
	}
	addr, err := parseNumber(args[1])
	if err != nil {
		return err
	}

	opts, wait := progressOptions()
	err = withSession(func(s *blboot.Session) error {
		if !flashNoErase {
			log.Info().Uint32("addr", addr).Int("size", len(data)).Msg("erasing")
			if err := s.EraseFlash(addr, uint32(len(data))); err != nil {
				return err
			}
		}
		log.Info().Uint32("addr", addr).Int("size", len(data)).Msg("writing")
		if err := s.WriteFlash(addr, data); err != nil {
			return err
		}
		if flashNoVerify {
			return nil
		}
		return s.VerifyFlash(addr, data)
	}, opts...)
	wait()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %d bytes at 0x%08X\n", color.GreenString("ok:"), len(data), addr)
	return nil
}

func runFlashErase(cmd *cobra.Command, args []string) error {
	if flashChip {
		if len(args) != 0 {
			return fmt.Errorf("%w: --chip takes no region", blboot.ErrBadArguments)
		}
		err := withSession(func(s *blboot.Session) error {
			return s.EraseChip()
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s chip erased\n", color.GreenString("ok:"))
		return nil
	}

	if len(args) != 2 {
		return fmt.Errorf("%w: erase needs ADDR SIZE or --chip", blboot.ErrBadArguments)
	}
	addr, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	size, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	err = withSession(func(s *blboot.Session) error {
		return s.EraseFlash(addr, size)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s erased %d bytes at 0x%08X\n", color.GreenString("ok:"), size, addr)
	return nil
}

func runFlashVerify(cmd *cobra.Command, args []string) error {
	data, err := readFile(args[0])
	if err != nil {
		return err
	}
	addr, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	err = withSession(func(s *blboot.Session) error {
		return s.VerifyFlash(addr, data)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d bytes at 0x%08X match %s\n", color.GreenString("ok:"), len(data), addr, args[0])
	return nil
}
