// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import (
	"fmt"
	"log/slog"
)

// Options configures multiplexer creation.
type Options struct {
	// Client count (fixed for the multiplexer's lifetime)
	clients int

	// Presentation
	colour bool
	names  []string

	// Channel numbering
	driverCh Channel
	offset   Channel

	// Collaborators
	logger   *slog.Logger
	notifier Notifier
}

// Builder creates a Mux with fluent configuration.
//
// Example:
//
//	// Two clients, colour tagged, default channel numbering
//	m := sermux.New(2).Colour().Notifier(loop).Build(drv, []*sermux.Ring{cli0, cli1})
//
//	// From a system configuration
//	m := cfg.Builder().Logger(logger).Notifier(loop).Build(drv, clients)
type Builder struct {
	opts Options
}

// New creates a multiplexer builder for the given number of clients.
//
// Defaults: pass-through tagging, driver channel 0, client channels
// starting at 1, clients named "client0", "client1", ..., and a logger
// that discards everything.
//
// Panics if clients < 1.
func New(clients int) *Builder {
	if clients < 1 {
		panic("sermux: clients must be >= 1")
	}
	return &Builder{opts: Options{
		clients:  clients,
		driverCh: 0,
		offset:   1,
	}}
}

// Colour tags each client's output with its palette colour.
func (b *Builder) Colour() *Builder {
	b.opts.colour = true
	return b
}

// Names sets the client names used in the colour legend.
// Panics if the count does not match the client count.
func (b *Builder) Names(names ...string) *Builder {
	if len(names) != b.opts.clients {
		panic("sermux: Names requires one name per client")
	}
	b.opts.names = names
	return b
}

// Channels sets the driver channel and the channel of client 0.
// Client i is reached on offset+i.
func (b *Builder) Channels(driver, offset Channel) *Builder {
	b.opts.driverCh = driver
	b.opts.offset = offset
	return b
}

// Logger sets the structured logger.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.opts.logger = l
	return b
}

// Notifier sets where the driver notification is sent. Required.
func (b *Builder) Notifier(n Notifier) *Builder {
	b.opts.notifier = n
	return b
}

// Build creates the multiplexer over the driver ring and one transmit
// ring per client, in client order.
//
// Panics if the configuration is inconsistent:
//   - no Notifier
//   - len(clients) differs from the client count
//   - the driver channel falls inside the client channel range
//   - a client ring could hold a tagged chunk larger than the driver ring,
//     which would park that client forever
func (b *Builder) Build(drv *Ring, clients []*Ring) *Mux {
	o := b.opts
	if o.notifier == nil {
		panic("sermux: Build requires a Notifier")
	}
	if drv == nil || len(clients) != o.clients {
		panic("sermux: Build requires a driver ring and one ring per client")
	}
	if o.driverCh >= o.offset && o.driverCh-o.offset < Channel(o.clients) {
		panic("sermux: driver channel overlaps client channels")
	}

	var tagger Tagger = PassThrough{}
	if o.colour {
		tagger = NewColour(o.clients)
	}
	for i, r := range clients {
		if r == nil || r.Cap()+tagger.Overhead() > drv.Cap() {
			panic(fmt.Sprintf("sermux: client %d ring does not fit the driver ring", i))
		}
	}

	names := o.names
	if names == nil {
		names = make([]string, o.clients)
		for i := range names {
			names[i] = fmt.Sprintf("client%d", i)
		}
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Mux{
		drv:      drv,
		clients:  clients,
		names:    names,
		pending:  NewPendingSet(o.clients),
		tagger:   tagger,
		notifier: o.notifier,
		logger:   logger,
		driverCh: o.driverCh,
		offset:   o.offset,
	}

	if o.colour {
		for i, name := range names {
			logger.Info("sermux: client colour",
				"client", i,
				"name", name,
				"colour", i%PaletteSize,
			)
		}
	}
	return m
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte
