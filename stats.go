// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import "code.hybscloud.com/atomix"

// Stats is a snapshot of multiplexer activity.
type Stats struct {
	Transfers     uint64 // Chunks moved downstream
	Bytes         uint64 // Client bytes moved downstream, excluding tags
	Parked        uint64 // Transfers deferred for lack of space
	Spurious      uint64 // Notifications on unknown channels
	Notifications uint64 // Wake-ups sent to the driver
}

// counters are written by the handler goroutine only and may be read
// from any goroutine.
type counters struct {
	transfers     atomix.Uint64
	bytes         atomix.Uint64
	parked        atomix.Uint64
	spurious      atomix.Uint64
	notifications atomix.Uint64
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (m *Mux) Stats() Stats {
	return Stats{
		Transfers:     m.stats.transfers.LoadAcquire(),
		Bytes:         m.stats.bytes.LoadAcquire(),
		Parked:        m.stats.parked.LoadAcquire(),
		Spurious:      m.stats.spurious.LoadAcquire(),
		Notifications: m.stats.notifications.LoadAcquire(),
	}
}
