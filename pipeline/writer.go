// File: pipeline/writer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WriterStage funnels any number of outbound submissions through the
// head's single-pending-write contract, one buffer sequence at a time.

package pipeline

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-reactor/api"
)

// WriterStage queues outbound buffer sequences and flushes them in FIFO
// order. Submit never blocks; a background flusher awaits each write
// completion before issuing the next, so the head never sees a second
// concurrent write. Implements api.Stage so it can sit in a pipeline and
// observe disconnection.
type WriterStage struct {
	head api.Head
	log  *zap.Logger

	mu       sync.Mutex
	fifo     *queue.Queue // of [][]byte, guarded by mu
	flushing bool
	closed   bool
}

var _ api.Stage = (*WriterStage)(nil)

// NewWriterStage attaches a writer above head. A nil logger defaults to
// no-op.
func NewWriterStage(head api.Head, log *zap.Logger) *WriterStage {
	if log == nil {
		log = zap.NewNop()
	}
	return &WriterStage{head: head, log: log, fifo: queue.New()}
}

// Submit queues a buffer sequence for transmission. The caller must not
// mutate the buffers until the stage is done with them. Never blocks.
func (w *WriterStage) Submit(buffers [][]byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return api.ErrStageClosed
	}
	w.fifo.Add(buffers)
	start := !w.flushing
	if start {
		w.flushing = true
	}
	w.mu.Unlock()
	if start {
		go w.flush()
	}
	return nil
}

// QueuedSequences reports how many submissions await transmission.
func (w *WriterStage) QueuedSequences() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fifo.Length()
}

// HandleCommand drops all queued output when the channel disconnects.
func (w *WriterStage) HandleCommand(cmd api.Command) {
	if cmd != api.CommandDisconnected {
		return
	}
	w.mu.Lock()
	w.closed = true
	for w.fifo.Length() > 0 {
		w.fifo.Remove()
	}
	w.mu.Unlock()
}

// flush drains the FIFO, one pending write at a time. Short writes keep
// the remainder of the current sequence in front of the queue.
func (w *WriterStage) flush() {
	var carry [][]byte
	for {
		bufs := carry
		carry = nil
		if bufs == nil {
			w.mu.Lock()
			if w.closed || w.fifo.Length() == 0 {
				w.flushing = false
				w.mu.Unlock()
				return
			}
			bufs = w.fifo.Remove().([][]byte)
			w.mu.Unlock()
		}
		p, err := w.head.RequestWrite(bufs)
		if err != nil {
			w.log.Warn("outbound write rejected", zap.Error(err))
			w.abort()
			return
		}
		res := p.Await()
		if res.Err != nil {
			w.log.Warn("outbound write failed", zap.Error(res.Err))
			w.abort()
			return
		}
		if rest := remainder(bufs, res.N); len(rest) > 0 {
			carry = rest
		}
	}
}

// abort stops flushing and discards queued output after a failure.
func (w *WriterStage) abort() {
	w.mu.Lock()
	w.flushing = false
	w.closed = true
	for w.fifo.Length() > 0 {
		w.fifo.Remove()
	}
	w.mu.Unlock()
}

// remainder returns the unsent tail of a buffer sequence after n bytes.
func remainder(bufs [][]byte, n int) [][]byte {
	for i, b := range bufs {
		if n < len(b) {
			rest := make([][]byte, 0, len(bufs)-i)
			rest = append(rest, b[n:])
			return append(rest, bufs[i+1:]...)
		}
		n -= len(b)
	}
	return nil
}
