// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openchirp/blboot"
)

var cmdLoad = &cobra.Command{
	Use:   "load IMAGE | BOOTHEADER ADDR:FILE...",
	Short: "Load an image into RAM through the boot ROM",
	Long: `Loads a RAM image and asks the boot ROM to check it. A single argument
is a complete image: a 176 byte boot header followed by segments, each with
its own 16 byte header. Otherwise the first argument is a bare boot header
and every following ADDR:FILE is sent as a segment to that RAM address.
With --run the image is started afterwards.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

var loadRun bool

func init() {
	rootCmd.AddCommand(cmdLoad)
	cmdLoad.Flags().BoolVar(&loadRun, "run", false, "Run the image after loading it")
}

func runLoad(cmd *cobra.Command, args []string) error {
	img, err := loadArgs(args)
	if err != nil {
		return err
	}

	opts, wait := progressOptions()
	err = withSession(func(s *blboot.Session) error {
		if err := s.LoadImage(img); err != nil {
			return err
		}
		if loadRun {
			return s.RunImage()
		}
		return nil
	}, opts...)
	wait()
	if err != nil {
		return err
	}

	state := "loaded"
	if loadRun {
		state = "loaded and started"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s image %s (%d segments)\n", color.GreenString("ok:"), state, len(img.Segments))
	return nil
}

// loadArgs builds the image from either a single image file or a boot
// header plus ADDR:FILE segments.
func loadArgs(args []string) (*blboot.Image, error) {
	first, err := readFile(args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		img, err := blboot.ParseImage(first)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", args[0], err)
		}
		return img, nil
	}

	img := &blboot.Image{BootHeader: first}
	for _, a := range args[1:] {
		seg, err := parseSegment(a)
		if err != nil {
			return nil, err
		}
		data, err := readFile(seg.path)
		if err != nil {
			return nil, err
		}
		log.Info().Uint32("dest", seg.addr).Int("size", len(data)).Str("file", seg.path).Msg("segment")
		img.Segments = append(img.Segments, blboot.Segment{Dest: seg.addr, Data: data})
	}
	return img, nil
}
