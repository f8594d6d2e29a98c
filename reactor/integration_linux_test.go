//go:build linux
// +build linux

// File: reactor/integration_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// End-to-end: real epoll poller, real socketpair, plaintext socket ops.

package reactor_test

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport"
)

// TestSelectorLoop_SocketRoundTrip registers one end of a socketpair,
// reads a message the peer sends, echoes it back and verifies the peer
// receives it.
func TestSelectorLoop_SocketRoundTrip(t *testing.T) {
	loop, err := reactor.NewSelectorLoop(reactor.WithMaxEvents(32))
	if err != nil {
		t.Fatalf("NewSelectorLoop: %v", err)
	}
	go loop.Run()
	defer loop.Shutdown()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a, b := fds[0], fds[1]
	if err := unix.SetNonblock(b, true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	t.Cleanup(func() { _ = unix.Close(b) }) // a is owned by the channel ops

	probe := newPipelineProbe()
	if err := loop.RegisterChannel(uintptr(a), transport.NewSocketOps, probe.Factory); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	head := probe.Head(t)

	// Peer -> channel.
	pr, err := head.RequestRead(1024)
	if err != nil {
		t.Fatalf("RequestRead: %v", err)
	}
	if _, err := unix.Write(b, []byte("hello")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	res := awaitDone(t, pr)
	if res.Err != nil || string(res.Data) != "hello" {
		t.Fatalf("read resolved to %+v", res)
	}

	// Channel -> peer.
	pw, err := head.RequestWrite([][]byte{res.Data})
	if err != nil {
		t.Fatalf("RequestWrite: %v", err)
	}
	if wres := awaitDone(t, pw); wres.Err != nil || wres.N != 5 {
		t.Fatalf("write resolved to %+v", wres)
	}

	buf := make([]byte, 16)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, rerr := unix.Read(b, buf)
		if rerr == nil {
			if string(buf[:n]) != "hello" {
				t.Fatalf("peer received %q", buf[:n])
			}
			break
		}
		if rerr != unix.EAGAIN && rerr != unix.EWOULDBLOCK && rerr != unix.EINTR {
			t.Fatalf("peer read: %v", rerr)
		}
		if time.Now().After(deadline) {
			t.Fatal("echo never reached the peer")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestSelectorLoop_PeerCloseResolvesReadWithEOF: a read pending across
// peer closure resolves with the end-of-stream failure.
func TestSelectorLoop_PeerCloseResolvesReadWithEOF(t *testing.T) {
	loop, err := reactor.NewSelectorLoop()
	if err != nil {
		t.Fatalf("NewSelectorLoop: %v", err)
	}
	go loop.Run()
	defer loop.Shutdown()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a, b := fds[0], fds[1]

	probe := newPipelineProbe()
	if err := loop.RegisterChannel(uintptr(a), transport.NewSocketOps, probe.Factory); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	head := probe.Head(t)

	pr, err := head.RequestRead(64)
	if err != nil {
		t.Fatalf("RequestRead: %v", err)
	}
	_ = unix.Close(b)
	res := awaitDone(t, pr)
	if res.Err == nil {
		t.Fatalf("read resolved without error across peer close: %+v", res)
	}
}
