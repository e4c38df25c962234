// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openchirp/blboot"
)

var cmdInfo = &cobra.Command{
	Use:   "info",
	Short: "Print the boot ROM version and OTP flags",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(cmdInfo)
}

func runInfo(cmd *cobra.Command, _ []string) error {
	return withSession(func(s *blboot.Session) error {
		info, err := s.GetBootInfo()
		if err != nil {
			return err
		}
		printBootInfo(cmd.OutOrStdout(), info)
		return nil
	})
}

func printBootInfo(w io.Writer, info blboot.BootInfo) {
	heading := color.New(color.Bold)
	heading.Fprint(w, "BootROM version:")
	fmt.Fprintf(w, " %d\n", info.Version)
	heading.Fprintln(w, "OTP flags:")
	for i := 0; i < blboot.OTPRows; i++ {
		fmt.Fprintf(w, "  %s\n", info.OTP.Row(i))
	}
}
