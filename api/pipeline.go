// File: api/pipeline.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Command is a lifecycle signal delivered from the head stage into the
// pipeline attached above it.
type Command int

const (
	// CommandConnected is delivered once, after a channel has been
	// registered and its pipeline built.
	CommandConnected Command = iota + 1
	// CommandDisconnected is delivered when the head stage shuts down.
	CommandDisconnected
)

// String returns the command name for logging.
func (c Command) String() string {
	switch c {
	case CommandConnected:
		return "connected"
	case CommandDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Pending is the one-shot completion handle returned for an in-flight
// read or write. It resolves exactly once.
type Pending interface {
	// Done is closed when the operation has completed.
	Done() <-chan struct{}

	// Result returns the outcome. Valid only after Done is closed.
	Result() IOResult

	// Await blocks until completion and returns the outcome.
	Await() IOResult
}

// Head is the downward-facing contract of a pipeline's lowest stage. All
// methods are usable from any goroutine.
//
// At most one read and one write may be pending at a time; a second
// request in the same direction fails with ErrReadPending or
// ErrWritePending without disturbing the outstanding one.
type Head interface {
	RequestRead(maxSize int) (Pending, error)
	RequestWrite(buffers [][]byte) (Pending, error)

	// Shutdown releases the channel. Outstanding pending operations fail
	// with ErrStageClosed.
	Shutdown() error
}

// Stage is a protocol element attached above a Head. It receives
// lifecycle commands; the wire format of bytes it reads and writes is
// entirely its own concern.
type Stage interface {
	HandleCommand(cmd Command)
}

// PipelineFactory builds and attaches the protocol stack above a freshly
// created head. Invoked once per channel during the registration task,
// on the loop goroutine, before CommandConnected is delivered.
type PipelineFactory func(head Head) (Stage, error)
