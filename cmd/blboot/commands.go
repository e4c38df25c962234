// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openchirp/blboot"
	"github.com/openchirp/blboot/internal/config"
	"github.com/openchirp/blboot/romsim"
	"github.com/openchirp/blboot/serialport"
)

var (
	rootCmd = &cobra.Command{
		Use:               "blboot",
		Short:             "Talk to the BL60x serial boot ROM.",
		Long:              ``,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

var (
	flagConfig   string
	flagPort     string
	flagBaud     int
	flagDriver   string
	flagProfile  string
	flagAttempts int
	flagVerbose  int
	flagDemo     bool
	flagProgress bool
)

var (
	cfg *config.Config
	log = zerolog.Nop()
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", config.DefaultPath, "Configuration file")
	pf.StringVarP(&flagPort, "port", "p", "", "Serial device (env SERIAL_PORT)")
	pf.IntVarP(&flagBaud, "baud", "b", blboot.DefaultBaudRate, "Baud rate (env BAUD_RATE)")
	pf.StringVar(&flagDriver, "driver", string(serialport.Native), "Serial driver: native or termios")
	pf.StringVar(&flagProfile, "profile", "bl60x", "Protocol profile: bl60x or checksummed")
	pf.IntVar(&flagAttempts, "attempts", blboot.DefaultAttempts, "Handshake attempts")
	pf.CountVarP(&flagVerbose, "verbose", "v", "Verbose logging, repeat for frame traces")
	pf.BoolVar(&flagDemo, "demo", false, "Talk to a simulated boot ROM")
	pf.BoolVar(&flagProgress, "progress", false, "Show progress bars")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads the config and applies explicit flags on top of it.
func setup(cmd *cobra.Command, _ []string) error {
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	c, err := config.Load(flagConfig, log)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Port.Path = flagPort
	}
	if flags.Changed("baud") {
		c.Port.BaudRate = flagBaud
	}
	if flags.Changed("driver") {
		c.Port.Driver = flagDriver
	}
	if flags.Changed("profile") {
		c.Protocol.Profile = flagProfile
	}
	if flags.Changed("attempts") {
		c.Handshake.Attempts = flagAttempts
	}

	level := c.Level()
	switch {
	case flagVerbose >= 2:
		level = zerolog.TraceLevel
	case flagVerbose == 1:
		level = zerolog.DebugLevel
	}
	log = log.Level(level)
	cfg = c
	return nil
}

// withSession opens the configured port, synchronizes and runs fn. The port
// is closed when fn returns.
func withSession(fn func(*blboot.Session) error, extra ...blboot.Option) error {
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts = append(opts, blboot.WithLogger(log))
	opts = append(opts, extra...)

	port, err := openTransport()
	if err != nil {
		return err
	}
	return blboot.WithSession(port, fn, opts...)
}

func openTransport() (blboot.Transport, error) {
	if flagDemo {
		p, err := cfg.Profile()
		if err != nil {
			return nil, err
		}
		log.Info().Str("profile", p.Name).Msg("using simulated boot ROM")
		return romsim.New(p), nil
	}
	return serialport.Open(cfg.Serial(), log)
}
