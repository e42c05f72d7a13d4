// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import (
	"context"

	"code.hybscloud.com/iox"
)

// Writer is the client end of a transmit ring.
//
// Write enqueues into the ring and notifies the multiplexer whenever it
// asked for a producer signal. While the ring is full Write backs off;
// the multiplexer frees the ring as the driver consumes.
//
// Writer is used by the ring's single producer only.
type Writer struct {
	ring   *Ring
	signal func()
}

// NewWriter creates a writer over r. signal notifies the multiplexer.
func NewWriter(r *Ring, signal func()) *Writer {
	return &Writer{ring: r, signal: signal}
}

// Write enqueues all of p. It blocks while the ring is full.
func (w *Writer) Write(p []byte) (int, error) {
	return w.WriteContext(context.Background(), p)
}

// WriteContext enqueues all of p, blocking while the ring is full until
// ctx is done. Returns the number of bytes enqueued.
func (w *Writer) WriteContext(ctx context.Context, p []byte) (int, error) {
	var bo iox.Backoff
	written := 0
	for written < len(p) {
		n, err := w.ring.Enqueue(p[written:])
		if err != nil {
			w.Flush()
			if err := ctx.Err(); err != nil {
				return written, err
			}
			bo.Wait()
			continue
		}
		bo.Reset()
		written += n
	}
	w.Flush()
	return written, nil
}

// Flush notifies the multiplexer if it is waiting for data.
// Cancel-then-notify: the multiplexer re-arms the request when it has
// drained the ring.
func (w *Writer) Flush() {
	if w.ring.ProducerSignalRequested() {
		w.ring.CancelProducerSignal()
		w.signal()
	}
}
