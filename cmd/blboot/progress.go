// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/openchirp/blboot"
)

// progress draws one bar per running transfer.
type progress struct {
	p    *mpb.Progress
	bars map[blboot.Command]*mpb.Bar
	last map[blboot.Command]time.Time
}

func newProgress() *progress {
	return &progress{
		p: mpb.New(
			mpb.WithOutput(color.Output),
			mpb.WithAutoRefresh(),
		),
		bars: make(map[blboot.Command]*mpb.Bar),
		last: make(map[blboot.Command]time.Time),
	}
}

// progressOptions returns the device options for --progress along with a
// function that waits for the bars to finish drawing.
func progressOptions() ([]blboot.Option, func()) {
	if !flagProgress {
		return nil, func() {}
	}
	pr := newProgress()
	return []blboot.Option{blboot.WithProgress(pr.update)}, pr.wait
}

func (pr *progress) update(cmd blboot.Command, done, total int) {
	bar, ok := pr.bars[cmd]
	if !ok {
		bar = pr.p.AddBar(int64(total),
			mpb.PrependDecorators(
				decor.Name(string(cmd), decor.WCSyncSpaceR),
				decor.CountersKiloByte("% .1f / % .1f", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
				decor.Name(" "),
				decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
			),
		)
		pr.bars[cmd] = bar
		pr.last[cmd] = time.Now()
	}

	now := time.Now()
	bar.EwmaSetCurrent(int64(done), now.Sub(pr.last[cmd]))
	pr.last[cmd] = now

	if done >= total {
		delete(pr.bars, cmd)
		delete(pr.last, cmd)
	}
}

// wait aborts bars left unfinished by a failed transfer, then waits for
// rendering to stop.
func (pr *progress) wait() {
	for _, bar := range pr.bars {
		bar.Abort(false)
	}
	pr.p.Wait()
}
