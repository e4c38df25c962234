// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openchirp/blboot/serialport"
)

var cmdPorts = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := serialport.List()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var cmdConfig = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration, or save it with --write",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configWrite != "" {
			if err := cfg.Save(configWrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", configWrite)
			return nil
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configWrite string

func init() {
	rootCmd.AddCommand(cmdPorts, cmdConfig)
	cmdConfig.Flags().StringVar(&configWrite, "write", "", "Save the configuration to this file")
}
