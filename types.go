// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

// Channel identifies a notification endpoint of a protection domain.
//
// Channels are local to the domain that owns them: the multiplexer's
// channel 0 reaches the driver, its channel 1 reaches client 0, and so on.
// The driver and the clients number their own channels independently.
type Channel uint32

// Handler receives notifications delivered to a protection domain.
//
// Notified runs to completion before the next notification is delivered.
// Implementations must not block: there is no other scheduling point.
type Handler interface {
	Notified(ch Channel)
}

// Notifier sends notifications out of a protection domain.
//
// Notify delivers immediately. NotifyDelayed defers delivery until the
// running handler returns, so several requests made during one handler
// pass collapse into a single wake-up.
//
// Example:
//
//	// Inside a handler: coalesce the driver wake-up
//	if transferred && drv.ProducerSignalRequested() {
//	    drv.CancelProducerSignal()
//	    n.NotifyDelayed(driverCh)
//	}
type Notifier interface {
	Notify(ch Channel)
	NotifyDelayed(ch Channel)
}

// Router forwards an outbound notification on a local channel to the
// domain at the other end of it.
type Router func(ch Channel)

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ch Channel)

// Notified calls f(ch).
func (f HandlerFunc) Notified(ch Channel) {
	f(ch)
}
