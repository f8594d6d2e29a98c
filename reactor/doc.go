// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor implements the selector loop: a single-goroutine
// readiness-driven dispatcher multiplexing many non-blocking channels
// over one poller, fed by a lock-free task queue that lets any goroutine
// inject work onto the loop.
package reactor
