// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import (
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// RingControl is the control block shared by both sides of a Ring.
//
// It is laid out so that it can live in a shared memory region (see
// ControlAt). The zero value is an empty ring with both signals requested,
// which is the state of freshly zeroed shared memory.
//
// Signal flags are stored inverted: a set flag means the side has already
// been signalled and does not want another signal until it asks again.
type RingControl struct {
	_                 pad
	head              atomix.Uint64 // Consumer advances
	_                 pad
	tail              atomix.Uint64 // Producer advances
	_                 pad
	producerSignalled atomix.Bool // Consumer does not want a data signal
	_                 pad
	consumerSignalled atomix.Bool // Producer does not want a space signal
	_                 pad
}

// RingControlSize is the number of bytes a RingControl occupies.
const RingControlSize = int(unsafe.Sizeof(RingControl{}))

// ControlAt overlays a RingControl on the start of region.
//
// The region must be at least RingControlSize bytes and 8-byte aligned.
// Both domains sharing a ring must overlay the same region. The control
// block is used as is: a zeroed region is an empty ring.
func ControlAt(region []byte) (*RingControl, error) {
	if len(region) < RingControlSize {
		return nil, fmt.Errorf("%w: control block needs %d bytes, have %d", ErrRegionTooSmall, RingControlSize, len(region))
	}
	p := unsafe.Pointer(unsafe.SliceData(region))
	if uintptr(p)%8 != 0 {
		return nil, fmt.Errorf("%w: control block is not 8-byte aligned", ErrInvalidConfig)
	}
	return (*RingControl)(p), nil
}

// Ring is a single-producer single-consumer bounded byte queue.
//
// Based on Lamport's ring buffer with cached index optimization: indices
// increase monotonically and are masked into the data region, the
// producer caches the consumer's head and the consumer caches the
// producer's tail.
//
// Besides the data path a Ring carries two signal-request flags:
//
//   - Producer signal: the consumer asks the producer to notify it after
//     the next enqueue. Requested by the consumer, tested and cancelled by
//     the producer right before it notifies.
//   - Consumer signal: the producer asks the consumer to notify it once
//     space has been freed. Requested by the producer, tested and cancelled
//     by the consumer right before it notifies.
//
// Cancelling a signal is always safe; it only stops a future wake-up and
// can be re-armed at any time.
//
// A Ring is a handle: both sides may hold their own Ring bound to the same
// RingControl and data region, or share one handle within a process.
type Ring struct {
	ctl        *RingControl
	buffer     []byte
	mask       uint64
	_          pad
	cachedHead uint64 // Producer's cached view of head
	_          pad
	cachedTail uint64 // Consumer's cached view of tail
	_          pad
}

// NewRing creates a ring with private control and data memory.
// Capacity rounds up to the next power of 2.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		panic("sermux: capacity must be >= 2")
	}
	return BindRing(&RingControl{}, make([]byte, roundToPow2(capacity)))
}

// BindRing binds a handle to an existing control block and data region.
//
// The data region length must be a power of 2 and at least 2 bytes.
// Panics otherwise: region sizes are static system configuration.
func BindRing(ctl *RingControl, data []byte) *Ring {
	if ctl == nil {
		panic("sermux: nil ring control")
	}
	n := len(data)
	if n < 2 || n&(n-1) != 0 {
		panic("sermux: ring data size must be a power of 2 >= 2")
	}
	return &Ring{
		ctl:        ctl,
		buffer:     data,
		mask:       uint64(n - 1),
		cachedHead: ctl.head.LoadAcquire(),
		cachedTail: ctl.tail.LoadAcquire(),
	}
}

// Cap returns the ring capacity in bytes.
func (q *Ring) Cap() int {
	return int(q.mask + 1)
}

// Len returns the number of bytes currently queued.
func (q *Ring) Len() int {
	// Head first: head never passes the tail observed after it.
	head := q.ctl.head.LoadAcquire()
	tail := q.ctl.tail.LoadAcquire()
	return int(tail - head)
}

// Free returns the number of bytes the producer can enqueue now.
func (q *Ring) Free() int {
	return q.Cap() - q.Len()
}

// Empty reports whether no bytes are queued.
func (q *Ring) Empty() bool {
	return q.Len() == 0
}

// Enqueue copies as much of p as fits into the ring (producer only).
// Returns the number of bytes written, or (0, ErrWouldBlock) if the ring
// is full and p is not empty.
func (q *Ring) Enqueue(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	tail := q.ctl.tail.LoadRelaxed()
	if tail-q.cachedHead+uint64(len(p)) > q.mask+1 {
		q.cachedHead = q.ctl.head.LoadAcquire()
	}
	free := q.mask + 1 - (tail - q.cachedHead)
	if free == 0 {
		return 0, ErrWouldBlock
	}

	n := min(uint64(len(p)), free)
	q.ctl.tail.StoreRelease(q.put(tail, p[:n]))
	return int(n), nil
}

// Dequeue copies up to len(p) queued bytes into p (consumer only).
// Returns the number of bytes read, or (0, ErrWouldBlock) if the ring
// is empty and p is not empty.
func (q *Ring) Dequeue(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	head := q.ctl.head.LoadRelaxed()
	if q.cachedTail-head < uint64(len(p)) {
		q.cachedTail = q.ctl.tail.LoadAcquire()
	}
	avail := q.cachedTail - head
	if avail == 0 {
		return 0, ErrWouldBlock
	}

	n := min(uint64(len(p)), avail)
	q.get(head, p[:n])
	q.ctl.head.StoreRelease(head + n)
	return int(n), nil
}

// TransferAll moves every byte currently queued in q into dst, bracketed
// by prefix and suffix (q consumer, dst producer).
//
// The transfer is all-or-nothing: if dst cannot hold prefix, data and
// suffix together, nothing moves and ErrWouldBlock is returned. The chunk
// is published to dst's consumer with a single tail update, so it never
// observes a partial chunk. Returns the number of source bytes moved;
// an empty q moves nothing and writes no prefix or suffix.
func (q *Ring) TransferAll(dst *Ring, prefix, suffix []byte) (int, error) {
	head := q.ctl.head.LoadRelaxed()
	q.cachedTail = q.ctl.tail.LoadAcquire()
	n := q.cachedTail - head
	if n == 0 {
		return 0, nil
	}

	need := n + uint64(len(prefix)+len(suffix))
	tail := dst.ctl.tail.LoadRelaxed()
	if need > dst.mask+1-(tail-dst.cachedHead) {
		dst.cachedHead = dst.ctl.head.LoadAcquire()
		if need > dst.mask+1-(tail-dst.cachedHead) {
			return 0, ErrWouldBlock
		}
	}

	off := head & q.mask
	first := min(n, q.mask+1-off)
	pos := dst.put(tail, prefix)
	pos = dst.put(pos, q.buffer[off:off+first])
	pos = dst.put(pos, q.buffer[:n-first])
	pos = dst.put(pos, suffix)

	dst.ctl.tail.StoreRelease(pos)
	q.ctl.head.StoreRelease(head + n)
	return int(n), nil
}

// put copies p into the data region starting at index pos, wrapping at
// the end. len(p) must not exceed the free space. Returns pos+len(p).
func (q *Ring) put(pos uint64, p []byte) uint64 {
	n := copy(q.buffer[pos&q.mask:], p)
	copy(q.buffer, p[n:])
	return pos + uint64(len(p))
}

// get copies len(p) bytes starting at index pos into p, wrapping at the end.
func (q *Ring) get(pos uint64, p []byte) {
	n := copy(p, q.buffer[pos&q.mask:])
	copy(p[n:], q.buffer)
}

// RequestProducerSignal asks the producer to notify after its next enqueue.
func (q *Ring) RequestProducerSignal() {
	q.ctl.producerSignalled.StoreRelease(false)
}

// CancelProducerSignal withdraws a producer signal request.
func (q *Ring) CancelProducerSignal() {
	q.ctl.producerSignalled.StoreRelease(true)
}

// ProducerSignalRequested reports whether the consumer is waiting to be
// told about new data.
func (q *Ring) ProducerSignalRequested() bool {
	return !q.ctl.producerSignalled.LoadAcquire()
}

// RequestConsumerSignal asks the consumer to notify once it frees space.
func (q *Ring) RequestConsumerSignal() {
	q.ctl.consumerSignalled.StoreRelease(false)
}

// CancelConsumerSignal withdraws a consumer signal request.
func (q *Ring) CancelConsumerSignal() {
	q.ctl.consumerSignalled.StoreRelease(true)
}

// ConsumerSignalRequested reports whether the producer is waiting to be
// told about freed space.
func (q *Ring) ConsumerSignalRequested() bool {
	return !q.ctl.consumerSignalled.LoadAcquire()
}
