// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import (
	"context"
	"fmt"
	"math/bits"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// MaxChannels is the number of channels a Loop can carry: one bit each in
// the loop's notification word.
const MaxChannels = 64

// Loop delivers notifications to one protection domain.
//
// Raised channels are bits of a single notification word. Any goroutine
// may Signal a channel; signalling a channel that is already raised has no
// effect, so signals are coalesced per channel. The bit is cleared before
// the handler runs, so a signal arriving during the handler is delivered
// again afterwards.
//
// A single goroutine calls Run (or Poll), which invokes the handler for
// one channel at a time. Raised channels are served round robin starting
// after the last one delivered, so a channel that keeps re-raising itself
// cannot starve the others.
//
// Loop also implements Notifier for the handler goroutine: outbound
// notifications are handed to the Router, and a delayed notification is
// held until the running handler returns.
//
// Example:
//
//	virt := sermux.NewLoop(3, func(ch sermux.Channel) {
//	    if ch == 0 {
//	        uartLoop.Signal(0) // driver
//	    }
//	})
//	mux := sermux.New(2).Notifier(virt).Build(drv, clients)
//	go virt.Run(ctx, mux)
type Loop struct {
	_        pad
	word     atomix.Uint64 // Raised channels, bit ch for channel ch
	_        pad
	channels int
	next     int // First channel to look at on the next delivery
	route    Router

	delayed    Channel
	hasDelayed bool
}

// NewLoop creates a loop for channels 0..channels-1.
// A nil route drops outbound notifications.
//
// Panics if channels is not in 1..MaxChannels.
func NewLoop(channels int, route Router) *Loop {
	if channels < 1 || channels > MaxChannels {
		panic("sermux: loop channels must be in 1..64")
	}
	if route == nil {
		route = func(Channel) {}
	}
	return &Loop{channels: channels, route: route}
}

// Channels returns the number of channels of the loop.
func (l *Loop) Channels() int {
	return l.channels
}

// Signal raises ch. Safe for concurrent use.
// Returns ErrUnknownChannel if ch is not a channel of the loop.
func (l *Loop) Signal(ch Channel) error {
	if int(ch) >= l.channels {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, ch)
	}
	bit := uint64(1) << ch
	sw := spin.Wait{}
	for {
		old := l.word.LoadAcquire()
		if old&bit != 0 || l.word.CompareAndSwapAcqRel(old, old|bit) {
			return nil
		}
		sw.Once()
	}
}

// Notify sends a notification on ch immediately.
func (l *Loop) Notify(ch Channel) {
	l.route(ch)
}

// NotifyDelayed sends a notification on ch once the running handler
// returns. Only one delayed notification is held: requesting a different
// channel sends the held one immediately.
func (l *Loop) NotifyDelayed(ch Channel) {
	if l.hasDelayed && l.delayed != ch {
		l.route(l.delayed)
	}
	l.delayed, l.hasDelayed = ch, true
}

// Run delivers notifications to h until ctx is done, backing off while
// nothing is raised. Returns ctx.Err().
func (l *Loop) Run(ctx context.Context, h Handler) error {
	var bo iox.Backoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.deliver(h) {
			bo.Reset()
			continue
		}
		bo.Wait()
	}
}

// Poll delivers raised notifications to h until none is left and
// returns how many were delivered. Poll does not block.
func (l *Loop) Poll(h Handler) int {
	n := 0
	for l.deliver(h) {
		n++
	}
	return n
}

func (l *Loop) deliver(h Handler) bool {
	ch, ok := l.take()
	if !ok {
		return false
	}
	h.Notified(ch)
	l.flush()
	return true
}

// take clears and returns the first raised channel at or after next,
// wrapping around.
func (l *Loop) take() (Channel, bool) {
	sw := spin.Wait{}
	for {
		word := l.word.LoadAcquire()
		if word == 0 {
			return 0, false
		}
		later := word &^ (uint64(1)<<l.next - 1)
		if later == 0 {
			later = word
		}
		ch := bits.TrailingZeros64(later)
		if l.word.CompareAndSwapAcqRel(word, word&^(uint64(1)<<ch)) {
			l.next = (ch + 1) % MaxChannels
			return Channel(ch), true
		}
		sw.Once()
	}
}

func (l *Loop) flush() {
	if !l.hasDelayed {
		return
	}
	l.hasDelayed = false
	l.route(l.delayed)
}
