// File: fake/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"

	uatomic "go.uber.org/atomic"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// Poller is an in-memory reactor.Poller. Tests inject readiness batches
// with Deliver; Wait blocks until a batch, a wake, or Close.
type Poller struct {
	mu    sync.Mutex
	masks map[uintptr]reactor.Interest

	events   chan []reactor.Event
	closedCh chan struct{}
	closed   uatomic.Bool
	wakes    uatomic.Int64
}

var _ reactor.Poller = (*Poller)(nil)

// NewPoller returns an idle fake poller.
func NewPoller() *Poller {
	return &Poller{
		masks:    make(map[uintptr]reactor.Interest),
		events:   make(chan []reactor.Event, 64),
		closedCh: make(chan struct{}),
	}
}

// Deliver queues a readiness batch for the next Wait.
func (p *Poller) Deliver(events ...reactor.Event) {
	p.events <- events
}

// Interest reports the current mask for fd.
func (p *Poller) Interest(fd uintptr) reactor.Interest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.masks[fd]
}

// Registered reports whether fd is known.
func (p *Poller) Registered(fd uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.masks[fd]
	return ok
}

// Wakes reports how many times Wake ran.
func (p *Poller) Wakes() int64 { return p.wakes.Load() }

func (p *Poller) Register(fd uintptr) error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.masks[fd] = 0
	return nil
}

func (p *Poller) Unregister(fd uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.masks, fd)
	return nil
}

func (p *Poller) AddInterest(fd uintptr, i reactor.Interest) error {
	return p.modify(fd, i, 0)
}

func (p *Poller) DropInterest(fd uintptr, i reactor.Interest) error {
	return p.modify(fd, 0, i)
}

func (p *Poller) modify(fd uintptr, set, clear reactor.Interest) error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	mask, ok := p.masks[fd]
	if !ok {
		return api.ErrNotRegistered
	}
	p.masks[fd] = (mask | set) &^ clear
	return nil
}

// Wait blocks until a delivered batch, a wake (empty batch), or Close.
func (p *Poller) Wait(events []reactor.Event) (int, error) {
	select {
	case <-p.closedCh:
		return 0, api.ErrPollerClosed
	case batch := <-p.events:
		n := copy(events, batch)
		return n, nil
	}
}

// Wake unblocks Wait with an empty batch.
func (p *Poller) Wake() error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	p.wakes.Inc()
	select {
	case p.events <- nil:
	default:
		// A batch is already queued; the waiter is awake regardless.
	}
	return nil
}

// Close fails any pending and future Wait. Idempotent.
func (p *Poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.closedCh)
	return nil
}
