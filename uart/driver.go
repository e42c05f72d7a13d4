// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package uart emulates the transmit side of a serial driver.
//
// The driver is the single consumer of the transmit virtualiser's
// downstream ring. It shifts bytes out to an io.Writer at the line rate
// and notifies the virtualiser whenever it frees space the virtualiser
// is waiting for.
package uart

import (
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"code.hybscloud.com/sermux"
)

// bitsPerByte is the frame length of 8N1: start bit, 8 data bits, stop bit.
const bitsPerByte = 10

// maxChunk bounds the bytes written to the output per dequeue.
const maxChunk = 256

// Config configures a Driver.
type Config struct {
	// Baud is the line rate. Zero transmits without pacing.
	Baud int

	// VirtChannel is the driver's channel to the transmit virtualiser.
	VirtChannel sermux.Channel

	// Logger receives driver diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Driver drains a transmit ring to an output.
type Driver struct {
	tx       *sermux.Ring
	out      io.Writer
	notifier sermux.Notifier
	limiter  *rate.Limiter
	virtCh   sermux.Channel
	logger   *slog.Logger
	buf      []byte
	sent     uint64
}

// New creates a driver consuming tx and writing to out. n carries the
// driver's notifications to the virtualiser.
func New(tx *sermux.Ring, out io.Writer, n sermux.Notifier, cfg Config) *Driver {
	chunk := maxChunk
	limiter := rate.NewLimiter(rate.Inf, chunk)
	if cfg.Baud > 0 {
		bps := max(cfg.Baud/bitsPerByte, 1)
		chunk = min(chunk, bps)
		limiter = rate.NewLimiter(rate.Limit(bps), chunk)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		tx:       tx,
		out:      out,
		notifier: n,
		limiter:  limiter,
		virtCh:   cfg.VirtChannel,
		logger:   logger,
		buf:      make([]byte, chunk),
	}
}

// Notified transmits on a notification from the virtualiser.
func (d *Driver) Notified(ch sermux.Channel) {
	if ch != d.virtCh {
		d.logger.Warn("uart: notification from unknown channel", "channel", ch)
		return
	}
	d.Transmit()
}

// Transmit writes out everything queued, pacing each chunk to the line
// rate. After every chunk it tells the virtualiser about the freed space
// if it asked. Before returning it re-arms the producer signal and
// re-checks the ring so that data queued meanwhile is not missed.
func (d *Driver) Transmit() {
	for {
		for {
			n, err := d.tx.Dequeue(d.buf)
			if err != nil {
				break
			}
			d.pace(n)
			if _, err := d.out.Write(d.buf[:n]); err != nil {
				d.logger.Error("uart: write failed", "error", err)
			}
			d.sent += uint64(n)
			if d.tx.ConsumerSignalRequested() {
				d.tx.CancelConsumerSignal()
				d.notifier.Notify(d.virtCh)
			}
		}

		d.tx.RequestProducerSignal()
		if d.tx.Empty() {
			return
		}
		d.tx.CancelProducerSignal()
	}
}

// pace waits for the line to shift out n bytes.
func (d *Driver) pace(n int) {
	r := d.limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return
	}
	time.Sleep(r.Delay())
}

// Sent returns the number of bytes written to the output.
// Not safe for concurrent use with Transmit.
func (d *Driver) Sent() uint64 {
	return d.sent
}
