// File: api/errors.go
// Package api defines common error values shared across the library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "github.com/pkg/errors"

// Errors observed by users of the head stage and the selector loop.
// Usage errors (a second concurrent request) fail fast and mutate no
// state; compare with errors.Is or pkg/errors.Cause.
var (
	// ErrReadPending reports a RequestRead while another read is
	// outstanding on the same head stage.
	ErrReadPending = errors.New("read already pending")

	// ErrWritePending reports a RequestWrite while another write is
	// outstanding on the same head stage.
	ErrWritePending = errors.New("write already pending")

	// ErrStageClosed reports an operation on, or force-failed by, a head
	// stage that has shut down.
	ErrStageClosed = errors.New("stage closed")

	// ErrLoopTerminated reports a task submission to a selector loop that
	// has stopped running.
	ErrLoopTerminated = errors.New("selector loop terminated")

	// ErrPollerClosed reports use of a readiness facility after Close.
	ErrPollerClosed = errors.New("poller closed")

	// ErrNotRegistered reports an interest change for a descriptor the
	// poller does not know.
	ErrNotRegistered = errors.New("descriptor not registered")
)
