//go:build linux
// +build linux

// File: transport/sockops_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Plaintext socket channel ops. Reads go through the loop's scratch
// buffer via read(2); writes batch the buffer sequence via writev(2).

package transport

import (
	"io"

	"github.com/pkg/errors"
	uatomic "go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// socketOps binds one raw descriptor to its loop's poller.
type socketOps struct {
	fd     int
	poller reactor.Poller
	closed uatomic.Bool
}

var _ api.ChannelOps = (*socketOps)(nil)

// NewSocketOps wraps an already-registered descriptor. Matches the
// reactor.ChannelOpsProvider signature, so it can be passed directly to
// SelectorLoop.RegisterChannel.
func NewSocketOps(fd uintptr, p reactor.Poller) (api.ChannelOps, error) {
	if p == nil {
		return nil, errors.New("nil poller")
	}
	return &socketOps{fd: int(fd), poller: p}, nil
}

func (s *socketOps) SetReadInterest() error {
	return s.poller.AddInterest(uintptr(s.fd), reactor.InterestRead)
}

func (s *socketOps) ClearReadInterest() error {
	return s.poller.DropInterest(uintptr(s.fd), reactor.InterestRead)
}

func (s *socketOps) SetWriteInterest() error {
	return s.poller.AddInterest(uintptr(s.fd), reactor.InterestWrite)
}

func (s *socketOps) ClearWriteInterest() error {
	return s.poller.DropInterest(uintptr(s.fd), reactor.InterestWrite)
}

// PerformRead reads into scratch. EAGAIN means not ready; zero bytes
// means end of stream; any other failure completes the operation with
// the error attached.
func (s *socketOps) PerformRead(scratch []byte) (api.IOResult, bool) {
	if s.closed.Load() {
		return api.IOResult{Err: api.ErrStageClosed}, true
	}
	n, err := unix.Read(s.fd, scratch)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return api.IOResult{}, false
		}
		if err == unix.EINTR {
			return api.IOResult{}, false
		}
		return api.IOResult{Err: errors.Wrap(err, "socket read")}, true
	}
	if n == 0 {
		return api.IOResult{Err: io.EOF}, true
	}
	return api.IOResult{N: n, Data: scratch[:n]}, true
}

// PerformWrite sends the buffer sequence with one writev. The scratch
// buffer is unused for plaintext sockets. A short write completes with
// the byte count; the caller decides what to do with the remainder.
func (s *socketOps) PerformWrite(_ []byte, buffers [][]byte) (api.IOResult, bool) {
	if s.closed.Load() {
		return api.IOResult{Err: api.ErrStageClosed}, true
	}
	n, err := unix.Writev(s.fd, buffers)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return api.IOResult{}, false
		}
		if err == unix.EINTR {
			return api.IOResult{}, false
		}
		return api.IOResult{Err: errors.Wrap(err, "socket writev")}, true
	}
	return api.IOResult{N: n}, true
}

// Close releases the descriptor. Idempotent.
func (s *socketOps) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.Close(s.fd); err != nil {
		return errors.Wrap(err, "socket close")
	}
	return nil
}
