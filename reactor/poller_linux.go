//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) readiness facility with an eventfd(2) waker. Interest
// changes go straight to EPOLL_CTL_MOD: epoll tolerates concurrent
// modification against a blocked epoll_wait, so any goroutine may toggle
// interest without routing through the task queue.

package reactor

import (
	"encoding/binary"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	uatomic "go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// linuxPoller is the epoll-backed Poller.
type linuxPoller struct {
	epfd   int
	wakefd int
	closed uatomic.Bool

	mu    sync.Mutex
	masks map[uintptr]Interest
}

// NewPoller constructs the platform readiness facility.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd create")
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "register waker")
	}
	return &linuxPoller{
		epfd:   epfd,
		wakefd: wakefd,
		masks:  make(map[uintptr]Interest),
	}, nil
}

// Register configures fd non-blocking and adds it with zero interest.
func (p *linuxPoller) Register(fd uintptr) error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	if err := unix.SetNonblock(int(fd), true); err != nil {
		return errors.Wrap(err, "set nonblock")
	}
	ev := &unix.EpollEvent{Events: 0, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(fd), ev); err != nil {
		return errors.Wrap(err, "epoll ctl add")
	}
	p.mu.Lock()
	p.masks[fd] = 0
	p.mu.Unlock()
	return nil
}

// Unregister removes fd from epoll and forgets its mask.
func (p *linuxPoller) Unregister(fd uintptr) error {
	p.mu.Lock()
	delete(p.masks, fd)
	p.mu.Unlock()
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return errors.Wrap(err, "epoll ctl del")
	}
	return nil
}

// AddInterest arms interest bits for fd.
func (p *linuxPoller) AddInterest(fd uintptr, i Interest) error {
	return p.modify(fd, i, 0)
}

// DropInterest disarms interest bits for fd.
func (p *linuxPoller) DropInterest(fd uintptr, i Interest) error {
	return p.modify(fd, 0, i)
}

// modify applies set/clear bits to the fd's mask under the bookkeeping
// lock and pushes the new mask to epoll.
func (p *linuxPoller) modify(fd uintptr, set, clear Interest) error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	mask, ok := p.masks[fd]
	if !ok {
		return api.ErrNotRegistered
	}
	mask = (mask | set) &^ clear
	p.masks[fd] = mask
	var events uint32
	if mask&InterestRead != 0 {
		events |= unix.EPOLLIN
	}
	if mask&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	ev := &unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, int(fd), ev); err != nil {
		return errors.Wrap(err, "epoll ctl mod")
	}
	return nil
}

// Wait blocks for readiness. Waker events are drained and filtered out;
// an interrupted wait returns zero events.
func (p *linuxPoller) Wait(events []Event) (int, error) {
	if p.closed.Load() {
		return 0, api.ErrPollerClosed
	}
	raw := make([]unix.EpollEvent, len(events)+1)
	n, err := unix.EpollWait(p.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if p.closed.Load() {
			return 0, api.ErrPollerClosed
		}
		return 0, errors.Wrap(err, "epoll wait")
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)
		if int(fd) == p.wakefd {
			p.drainWaker()
			continue
		}
		var kind EventKind
		if raw[i].Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
			kind |= EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			kind |= EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			kind |= EventError
		}
		if out < len(events) {
			events[out] = Event{FD: fd, Kind: kind}
			out++
		}
	}
	return out, nil
}

// Wake posts one tick to the eventfd. A full counter still wakes the
// waiter, so EAGAIN is ignored.
func (p *linuxPoller) Wake() error {
	if p.closed.Load() {
		return api.ErrPollerClosed
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return errors.Wrap(err, "wake eventfd")
	}
	return nil
}

// drainWaker resets the eventfd counter.
func (p *linuxPoller) drainWaker() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases the epoll instance and the waker. Idempotent.
func (p *linuxPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs error
	if err := unix.Close(p.wakefd); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "close eventfd"))
	}
	if err := unix.Close(p.epfd); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "close epoll"))
	}
	return errs
}
