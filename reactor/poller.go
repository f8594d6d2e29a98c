// File: reactor/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral readiness facility interface. Implementations exist
// for Linux epoll; other platforms build a stub factory.

package reactor

// Interest is the readiness interest mask for one registered descriptor.
type Interest uint32

const (
	// InterestRead requests read-readiness notifications.
	InterestRead Interest = 1 << iota
	// InterestWrite requests write-readiness notifications.
	InterestWrite
)

// EventKind describes which conditions a readiness event reports.
type EventKind uint32

const (
	// EventRead reports the descriptor readable.
	EventRead EventKind = 1 << iota
	// EventWrite reports the descriptor writable.
	EventWrite
	// EventError reports an error or hangup condition.
	EventError
)

// Event is one readiness notification returned by Wait.
type Event struct {
	FD   uintptr
	Kind EventKind
}

// Poller is the OS readiness-notification facility owned by a selector
// loop. Register, Unregister and the interest calls are safe from any
// goroutine; Wait belongs to the loop goroutine alone.
type Poller interface {
	// Register configures fd non-blocking and adds it with zero interest.
	Register(fd uintptr) error

	// Unregister removes fd from the facility.
	Unregister(fd uintptr) error

	// AddInterest arms the given interest bits for fd.
	AddInterest(fd uintptr, i Interest) error

	// DropInterest disarms the given interest bits for fd.
	DropInterest(fd uintptr, i Interest) error

	// Wait blocks until at least one registered descriptor is ready or
	// Wake is called, filling events and returning the count.
	Wait(events []Event) (int, error)

	// Wake unblocks a concurrent Wait. Safe from any goroutine.
	Wake() error

	// Close releases the facility. A blocked Wait returns an error.
	Close() error
}
