// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sermux multiplexes the serial output of several clients onto
// one transmit driver.
//
// Every client owns a single-producer single-consumer byte Ring shared
// with the multiplexer; the multiplexer owns the producer end of one Ring
// shared with the driver. Nobody blocks: the sides wake each other with
// notifications, and each side says when it wants to be woken through the
// signal-request flags carried by every Ring.
//
// # Quick Start
//
//	drv := sermux.NewRing(4096)
//	cli := []*sermux.Ring{sermux.NewRing(1024), sermux.NewRing(1024)}
//
//	virt := sermux.NewLoop(3, func(ch sermux.Channel) { uartLoop.Signal(0) })
//	mux := sermux.New(2).Colour().Notifier(virt).Build(drv, cli)
//	go virt.Run(ctx, mux)
//
//	// Client 0
//	w := sermux.NewWriter(cli[0], func() { virt.Signal(mux.ClientChannel(0)) })
//	fmt.Fprintln(w, "hello")
//
// # Flow Control
//
// A client notification runs the direct dispatcher (Mux.Provide) for that
// client. The queue processor (Mux.Process) moves everything the client
// has queued into the driver ring as one chunk, or, when the chunk does
// not fit:
//
//   - requests a consumer signal from the driver (wake me on free space)
//     and checks the space once more,
//   - parks the client in the PendingSet (at most once per client),
//   - cancels the client's producer signal (stop waking me, I know).
//
// A driver notification runs the retry dispatcher (Mux.Return), which
// retries the clients parked before it started, in order. Both
// dispatchers keep draining a client while it has data and is not parked,
// and finish with at most one delayed notification to the driver, sent
// only if something was transferred and the driver asked for it.
//
// # Colour
//
// With colour enabled every chunk is bracketed by terminal escapes
// selecting the client's palette colour (client index mod 256):
//
//	ESC "[38;5;" <index> "m" <chunk> ESC "[0m"
//
// A chunk is never split, so the escapes always pair up on the line.
//
// # Shared Memory
//
// RingControl is a fixed-layout control block that can be overlaid on a
// shared region with ControlAt. Config describes where each client's
// control block and data live; BindVirt, BindClient and BindDriver bind
// the rings of each protection domain from the same regions.
//
// # Notifications
//
// Loop is the notification delivery of one protection domain: a 64-bit
// notification word with one bit per channel. Any goroutine may raise a
// bit; the loop delivers raised channels one at a time to a Handler, round
// robin. NotifyDelayed defers an outbound notification until the handler
// returns.
//
// # Error Handling
//
// Backpressure is not an error. At the ring boundary it is ErrWouldBlock
// (an alias for iox.ErrWouldBlock); inside the multiplexer it parks the
// client. Notifications on unknown channels are logged and ignored.
// Broken invariants, such as a pending set overflow, panic.
package sermux
