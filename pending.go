// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

// PendingSet is a bounded FIFO of client indices awaiting a retry.
//
// Capacity is exactly the number of clients. A per-client flag gives O(1)
// duplicate detection, so a client is queued at most once and the set can
// never hold more than one entry per client.
//
// Head and tail increase monotonically and are reduced modulo the
// capacity when indexing. PendingSet is not safe for concurrent use; it is
// owned by the multiplexer's handler.
type PendingSet struct {
	queue   []uint32
	pending []bool
	head    uint64
	tail    uint64
}

// NewPendingSet creates a pending set for clients 0..n-1.
func NewPendingSet(n int) *PendingSet {
	if n < 1 {
		panic("sermux: pending set needs at least one client")
	}
	return &PendingSet{
		queue:   make([]uint32, n),
		pending: make([]bool, n),
	}
}

// Len returns the number of queued clients.
func (s *PendingSet) Len() int {
	return int(s.tail - s.head)
}

// Cap returns the number of clients the set was created for.
func (s *PendingSet) Cap() int {
	return len(s.queue)
}

// Contains reports whether client is queued.
func (s *PendingSet) Contains(client int) bool {
	return s.pending[s.index(client)]
}

// Push appends client unless it is already queued.
// Panics if client is out of range or the set is full.
func (s *PendingSet) Push(client int) {
	c := s.index(client)
	if s.pending[c] {
		return
	}
	if s.Len() >= len(s.queue) {
		panic("sermux: pending set overflow")
	}

	s.queue[s.tail%uint64(len(s.queue))] = uint32(c)
	s.pending[c] = true
	s.tail++
}

// Pop removes and returns the oldest queued client.
// Panics if the set is empty.
func (s *PendingSet) Pop() int {
	if s.tail == s.head {
		panic("sermux: pop from empty pending set")
	}

	c := s.queue[s.head%uint64(len(s.queue))]
	s.pending[c] = false
	s.head++
	return int(c)
}

func (s *PendingSet) index(client int) int {
	if client < 0 || client >= len(s.pending) {
		panic("sermux: client index out of range")
	}
	return client
}
