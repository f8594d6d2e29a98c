// File: pipeline/head.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HeadStage adapts selector-loop readiness into read/write completions
// for the pipeline above. It owns at most one pending read and one
// pending write; a second request in either direction is rejected, never
// queued. Completions are produced only by the owning loop goroutine, so
// the pending slots need no lock beyond atomic set/clear.

package pipeline

import (
	"sync/atomic"

	"github.com/pkg/errors"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/hioload-reactor/api"
)

// pendingRead is an armed read request.
type pendingRead struct {
	p   *Pending
	max int
}

// pendingWrite is an armed write request with its queued buffer sequence.
type pendingWrite struct {
	p    *Pending
	bufs [][]byte
}

// HeadStage is the lowest stage of a channel's pipeline. All exported
// request methods are usable from any goroutine; CompleteRead and
// CompleteWrite belong to the owning loop goroutine alone.
type HeadStage struct {
	ops api.ChannelOps
	log *zap.Logger

	// release detaches the stage from its loop's registry and poller.
	// Set by the loop during registration; nil for free-standing stages.
	release func()

	// upper is attached once, on the loop goroutine, before
	// CommandConnected is delivered and before the head escapes to other
	// goroutines.
	upper api.Stage

	read   atomic.Pointer[pendingRead]
	write  atomic.Pointer[pendingWrite]
	closed uatomic.Bool
}

var _ api.Head = (*HeadStage)(nil)
var _ api.GracefulShutdown = (*HeadStage)(nil)

// NewHeadStage wraps fresh channel ops. release may be nil; it runs once
// during Shutdown, before the ops are closed.
func NewHeadStage(ops api.ChannelOps, log *zap.Logger, release func()) *HeadStage {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeadStage{ops: ops, log: log, release: release}
}

// Ops exposes the channel ops to the owning loop.
func (h *HeadStage) Ops() api.ChannelOps { return h.ops }

// Attach installs the upper stage built by the pipeline factory.
func (h *HeadStage) Attach(s api.Stage) { h.upper = s }

// Deliver passes a lifecycle command to the attached pipeline, if any.
func (h *HeadStage) Deliver(cmd api.Command) {
	if h.upper != nil {
		h.upper.HandleCommand(cmd)
	}
}

// RequestRead arms a read of at most maxSize bytes. Fails with
// api.ErrReadPending while another read is outstanding and with
// api.ErrStageClosed after shutdown.
func (h *HeadStage) RequestRead(maxSize int) (api.Pending, error) {
	if h.closed.Load() {
		return nil, api.ErrStageClosed
	}
	pr := &pendingRead{p: newPending(), max: maxSize}
	if !h.read.CompareAndSwap(nil, pr) {
		return nil, api.ErrReadPending
	}
	// Re-check: a concurrent Shutdown may have swept the slots between
	// the closed check and the arm.
	if h.closed.Load() {
		if h.read.CompareAndSwap(pr, nil) {
			return nil, api.ErrStageClosed
		}
		// Shutdown picked the slot up and already failed the handle.
		return pr.p, nil
	}
	if err := h.ops.SetReadInterest(); err != nil {
		h.read.CompareAndSwap(pr, nil)
		return nil, errors.Wrap(err, "arm read interest")
	}
	return pr.p, nil
}

// RequestWrite arms a write of the given buffer sequence. Fails with
// api.ErrWritePending while another write is outstanding; the rejected
// call queues nothing and changes no interest.
func (h *HeadStage) RequestWrite(buffers [][]byte) (api.Pending, error) {
	if h.closed.Load() {
		return nil, api.ErrStageClosed
	}
	pw := &pendingWrite{p: newPending(), bufs: buffers}
	if !h.write.CompareAndSwap(nil, pw) {
		return nil, api.ErrWritePending
	}
	if h.closed.Load() {
		if h.write.CompareAndSwap(pw, nil) {
			return nil, api.ErrStageClosed
		}
		return pw.p, nil
	}
	if err := h.ops.SetWriteInterest(); err != nil {
		h.write.CompareAndSwap(pw, nil)
		return nil, errors.Wrap(err, "arm write interest")
	}
	return pw.p, nil
}

// ArmedRead reports the pending read's size limit, if one is armed.
// Loop goroutine only.
func (h *HeadStage) ArmedRead() (maxSize int, ok bool) {
	pr := h.read.Load()
	if pr == nil {
		return 0, false
	}
	return pr.max, true
}

// QueuedWrite returns the pending write's buffer sequence, if one is
// armed. Loop goroutine only.
func (h *HeadStage) QueuedWrite() (buffers [][]byte, ok bool) {
	pw := h.write.Load()
	if pw == nil {
		return nil, false
	}
	return pw.bufs, true
}

// CompleteRead clears the pending read slot and resolves its handle.
// Loop goroutine only; calling with no read pending on an open stage is
// a programming error. A concurrent Shutdown may sweep the slot between
// the loop's armed check and the completion; the handle was already
// settled with api.ErrStageClosed, so the completion is dropped.
func (h *HeadStage) CompleteRead(res api.IOResult) {
	pr := h.read.Swap(nil)
	if pr == nil {
		if h.closed.Load() {
			return
		}
		panic("pipeline: read completion with no pending read")
	}
	pr.p.settle(res)
}

// CompleteWrite clears the pending write slot, discards its queued
// buffers and resolves its handle. Loop goroutine only; the same
// shutdown race as CompleteRead is tolerated.
func (h *HeadStage) CompleteWrite(res api.IOResult) {
	pw := h.write.Swap(nil)
	if pw == nil {
		if h.closed.Load() {
			return
		}
		panic("pipeline: write completion with no pending write")
	}
	pw.p.settle(res)
}

// Shutdown force-fails any outstanding pending operation with
// api.ErrStageClosed, delivers CommandDisconnected, detaches from the
// loop and releases the channel ops. Idempotent.
func (h *HeadStage) Shutdown() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if pr := h.read.Swap(nil); pr != nil {
		pr.p.settle(api.IOResult{Err: api.ErrStageClosed})
	}
	if pw := h.write.Swap(nil); pw != nil {
		pw.p.settle(api.IOResult{Err: api.ErrStageClosed})
	}
	h.Deliver(api.CommandDisconnected)
	if h.release != nil {
		h.release()
	}
	if err := h.ops.Close(); err != nil {
		return errors.Wrap(err, "close channel ops")
	}
	return nil
}
