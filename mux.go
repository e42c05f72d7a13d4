// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import (
	"fmt"
	"io"
	"log/slog"
)

// Mux multiplexes the transmit rings of N clients onto one driver ring.
//
// Mux is a Handler: it is driven entirely by notifications.
//   - Driver channel: the driver freed space; retry every parked client.
//   - Client channel (client + offset): the client queued new data.
//
// A client's bytes are moved downstream in whole chunks, one chunk per
// transfer, in the order the client produced them. A client whose chunk
// does not fit is parked in the pending set with its own signal silenced
// until the driver frees space. Wake-ups to the driver are coalesced into
// at most one delayed notification per handler pass.
//
// Mux is not safe for concurrent use. All methods except Stats must be
// called from the goroutine delivering its notifications.
type Mux struct {
	drv      *Ring
	clients  []*Ring
	names    []string
	pending  *PendingSet
	tagger   Tagger
	notifier Notifier
	logger   *slog.Logger
	driverCh Channel
	offset   Channel
	stats    counters
}

// drainState is the per-client state of a dispatcher pass.
type drainState uint8

const (
	draining drainState = iota // Attempt another transfer
	idle                       // Client ring is empty
	parked                     // Client waits in the pending set
)

// Notified dispatches a notification to Return or Provide.
func (m *Mux) Notified(ch Channel) {
	if ch == m.driverCh {
		m.Return()
		return
	}
	m.Provide(ch)
}

// Process attempts to move everything queued by client downstream.
//
// Returns true if a chunk was transferred. Returns false if the client
// has nothing queued (its producer signal is re-armed) or if the chunk
// does not fit (the driver's consumer signal is requested, the client is
// parked and its producer signal is cancelled).
func (m *Mux) Process(client int) bool {
	src := m.clients[client]
	if src.Empty() {
		src.RequestProducerSignal()
		return false
	}

	prefix, suffix := m.tagger.Wrap(client)
	tags := len(prefix) + len(suffix)
	for {
		queued := src.Len()
		if !m.reserve(queued + tags) {
			m.park(client, queued)
			return false
		}
		n, err := src.TransferAll(m.drv, prefix, suffix)
		if err != nil {
			// The client enqueued more after the space check.
			continue
		}
		src.RequestProducerSignal()

		m.stats.transfers.AddAcqRel(1)
		m.stats.bytes.AddAcqRel(uint64(n))
		m.logger.Debug("sermux: chunk transferred",
			"client", client,
			"bytes", n,
		)
		return true
	}
}

// reserve reports whether the driver ring has need bytes free. If not, it
// asks the driver for a consumer signal and looks again, so that space
// freed by a driver that went idle before seeing the request is not
// missed.
func (m *Mux) reserve(need int) bool {
	if need <= m.drv.Free() {
		return true
	}
	m.logger.Debug("sermux: driver ring full",
		"need", need,
		"free", m.drv.Free(),
	)
	m.drv.RequestConsumerSignal()
	if need > m.drv.Free() {
		return false
	}
	if m.pending.Len() == 0 {
		m.drv.CancelConsumerSignal()
	}
	return true
}

// park queues client for a retry. The driver's consumer signal has been
// requested by reserve.
func (m *Mux) park(client, queued int) {
	m.pending.Push(client)
	m.clients[client].CancelProducerSignal()

	m.stats.parked.AddAcqRel(1)
	m.logger.Debug("sermux: client parked",
		"client", client,
		"queued", queued,
		"free", m.drv.Free(),
	)
}

// Return retries the clients parked before the call, once each.
//
// Clients parked again during the pass wait for the next driver
// notification. If anything was transferred and the driver asked to be
// told about new data, a single delayed notification is sent.
func (m *Mux) Return() {
	n := m.pending.Len()
	if n == 0 {
		return
	}

	transferred := false
	for range n {
		if m.drain(m.pending.Pop()) {
			transferred = true
		}
	}
	m.kick(transferred)
}

// Provide drains the client behind channel ch.
//
// Channels outside the client range are logged and ignored without
// touching any state.
func (m *Mux) Provide(ch Channel) {
	client, ok := m.client(ch)
	if !ok {
		m.stats.spurious.AddAcqRel(1)
		m.logger.Warn("sermux: notification from unknown channel", "channel", ch)
		return
	}
	m.kick(m.drain(client))
}

// drain transfers from client until its ring is empty or it is parked.
// A client that keeps producing while being drained is drained again with
// its producer signal cancelled, so it does not also notify.
func (m *Mux) drain(client int) (transferred bool) {
	for state := draining; state == draining; state = m.next(client) {
		if m.Process(client) {
			transferred = true
		}
	}
	return transferred
}

func (m *Mux) next(client int) drainState {
	switch {
	case m.pending.Contains(client):
		return parked
	case m.clients[client].Empty():
		return idle
	}
	m.clients[client].CancelProducerSignal()
	return draining
}

// kick sends the coalesced driver notification at the end of a pass.
func (m *Mux) kick(transferred bool) {
	if !transferred || !m.drv.ProducerSignalRequested() {
		return
	}
	m.drv.CancelProducerSignal()
	m.notifier.NotifyDelayed(m.driverCh)
	m.stats.notifications.AddAcqRel(1)
}

func (m *Mux) client(ch Channel) (int, bool) {
	if ch < m.offset || ch-m.offset >= Channel(len(m.clients)) {
		return 0, false
	}
	return int(ch - m.offset), true
}

// Clients returns the number of clients.
func (m *Mux) Clients() int {
	return len(m.clients)
}

// Pending returns the number of parked clients.
func (m *Mux) Pending() int {
	return m.pending.Len()
}

// IsPending reports whether client is parked.
func (m *Mux) IsPending(client int) bool {
	return m.pending.Contains(client)
}

// DriverChannel returns the channel the driver is reached on.
func (m *Mux) DriverChannel() Channel {
	return m.driverCh
}

// ClientChannel returns the channel client notifies on.
func (m *Mux) ClientChannel(client int) Channel {
	return m.offset + Channel(client)
}

// Legend writes one line per client naming its colour, in that colour.
func (m *Mux) Legend(w io.Writer) error {
	var line []byte
	for i, name := range m.names {
		line = AppendColourStart(line[:0], i)
		line = fmt.Appendf(line, "%s is client %d", name, i)
		line = AppendColourReset(line)
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}
