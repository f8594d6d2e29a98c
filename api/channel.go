// File: api/channel.go
// Package api defines the contracts between the selector loop, the
// per-channel operations capability, and the protocol pipeline above them.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// IOResult is the outcome of a completed non-blocking read or write.
//
// For reads, Data holds the received bytes and N their count; Data handed
// to upper layers never aliases the loop's scratch buffer. For writes, N
// is the number of bytes accepted by the channel. Err is set when the
// operation completed with a failure, including end-of-stream on reads.
type IOResult struct {
	N    int
	Data []byte
	Err  error
}

// ChannelOps is the per-channel capability set consumed by the selector
// loop and the head stage. One ChannelOps is bound to exactly one
// registered channel for the channel's whole lifetime.
//
// Interest toggles are safe from any goroutine. PerformRead and
// PerformWrite follow the would-block convention: ok reports whether the
// operation completed; ok == false means the channel was not ready and
// nothing was consumed. Implementations must contain their own I/O
// failures and surface them as IOResult.Err rather than letting them
// escape into the loop.
type ChannelOps interface {
	SetReadInterest() error
	ClearReadInterest() error
	SetWriteInterest() error
	ClearWriteInterest() error

	// PerformRead attempts a non-blocking read into scratch.
	PerformRead(scratch []byte) (res IOResult, ok bool)

	// PerformWrite attempts a non-blocking write of the buffer sequence.
	// scratch is available as staging space for channel kinds that need
	// one; plain sockets ignore it.
	PerformWrite(scratch []byte, buffers [][]byte) (res IOResult, ok bool)

	// Close releases the underlying channel. Idempotent.
	Close() error
}
