// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"bytes"
	"errors"
	"fmt"
)

// Sync performs the autobaud handshake. Each attempt purges stale input,
// writes one sync burst and waits for the acknowledgement. Silence moves on
// to the next attempt; anything other than the expected acknowledgement
// fails at once.
func (d *Device) Sync() (*Session, error) {
	p := d.profile
	burst := p.Sync.Bytes(d.port.BaudRate())

	for attempt := 1; attempt <= d.attempts; attempt++ {
		d.log.Debug().
			Int("attempt", attempt).
			Int("burst", len(burst)).
			Int("baud", d.port.BaudRate()).
			Msg("sending sync burst")

		if err := d.port.ResetInputBuffer(); err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
		if err := d.write(burst); err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}

		ack, err := ReadExact(d.port, len(p.Ack), d.attemptTimeout)
		if errors.Is(err, ErrTimeout) {
			if len(ack) > 0 && !bytes.HasPrefix(p.Ack, ack) {
				return nil, &AckError{Want: p.Ack, Got: ack}
			}
			d.log.Debug().Int("attempt", attempt).Hex("partial", ack).Msg("no acknowledgement")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
		if !bytes.Equal(ack, p.Ack) {
			return nil, &AckError{Want: p.Ack, Got: ack}
		}

		d.log.Debug().Int("attempt", attempt).Msg("device synchronized")
		return &Session{dev: d, last: d.now()}, nil
	}

	return nil, fmt.Errorf("sync: %d attempts: %w", d.attempts, ErrNoResponse)
}
