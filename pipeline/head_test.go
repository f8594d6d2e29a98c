// File: pipeline/head_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipeline_test

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/fake"
	"github.com/momentics/hioload-reactor/pipeline"
)

// commandRecorder captures lifecycle commands delivered downward.
type commandRecorder struct {
	cmds []api.Command
}

func (r *commandRecorder) HandleCommand(cmd api.Command) {
	r.cmds = append(r.cmds, cmd)
}

func newHead(ch *fake.Channel) *pipeline.HeadStage {
	return pipeline.NewHeadStage(ch, nil, nil)
}

// TestHeadStage_RequestReadArmsInterest checks the arm path: slot filled,
// read interest set, handle unresolved.
func TestHeadStage_RequestReadArmsInterest(t *testing.T) {
	ch := fake.NewChannel()
	h := newHead(ch)
	p, err := h.RequestRead(4096)
	if err != nil {
		t.Fatalf("RequestRead: %v", err)
	}
	if !ch.ReadInterest() {
		t.Fatal("read interest not armed")
	}
	if max, ok := h.ArmedRead(); !ok || max != 4096 {
		t.Fatalf("ArmedRead = (%d, %v), want (4096, true)", max, ok)
	}
	select {
	case <-p.Done():
		t.Fatal("pending read resolved prematurely")
	default:
	}
}

// TestHeadStage_SecondReadRejected: the second request fails fast and
// leaves the first one intact.
func TestHeadStage_SecondReadRejected(t *testing.T) {
	ch := fake.NewChannel()
	h := newHead(ch)
	first, err := h.RequestRead(1024)
	if err != nil {
		t.Fatalf("RequestRead: %v", err)
	}
	if _, err := h.RequestRead(1024); errors.Cause(err) != api.ErrReadPending {
		t.Fatalf("second RequestRead err = %v, want ErrReadPending", err)
	}
	// The first read still resolves normally.
	h.CompleteRead(api.IOResult{N: 3, Data: []byte("abc")})
	res := first.Await()
	if res.Err != nil || string(res.Data) != "abc" {
		t.Fatalf("first read resolved to %+v", res)
	}
}

// TestHeadStage_SecondWriteRejected: rejection queues nothing and does
// not disturb the armed buffers.
func TestHeadStage_SecondWriteRejected(t *testing.T) {
	ch := fake.NewChannel()
	h := newHead(ch)
	bufs := [][]byte{[]byte("hello")}
	if _, err := h.RequestWrite(bufs); err != nil {
		t.Fatalf("RequestWrite: %v", err)
	}
	if _, err := h.RequestWrite([][]byte{[]byte("other")}); errors.Cause(err) != api.ErrWritePending {
		t.Fatalf("second RequestWrite err = %v, want ErrWritePending", err)
	}
	queued, ok := h.QueuedWrite()
	if !ok || len(queued) != 1 || string(queued[0]) != "hello" {
		t.Fatalf("queued buffers mutated: %q", queued)
	}
}

// TestHeadStage_CompleteWriteResolves transitions the slot to empty and
// fulfills the handle.
func TestHeadStage_CompleteWriteResolves(t *testing.T) {
	ch := fake.NewChannel()
	h := newHead(ch)
	p, err := h.RequestWrite([][]byte{[]byte("0123456789")})
	if err != nil {
		t.Fatalf("RequestWrite: %v", err)
	}
	h.CompleteWrite(api.IOResult{N: 10})
	if res := p.Await(); res.Err != nil || res.N != 10 {
		t.Fatalf("write resolved to %+v", res)
	}
	if _, ok := h.QueuedWrite(); ok {
		t.Fatal("write slot not cleared after completion")
	}
}

// TestHeadStage_CompleteOnEmptySlotPanics: resolving with nothing pending
// is a loud failure, never silently ignored.
func TestHeadStage_CompleteOnEmptySlotPanics(t *testing.T) {
	h := newHead(fake.NewChannel())
	assertPanics(t, "CompleteRead", func() { h.CompleteRead(api.IOResult{}) })
	assertPanics(t, "CompleteWrite", func() { h.CompleteWrite(api.IOResult{}) })
}

// TestHeadStage_DoubleCompletePanics: the second resolution of one
// request hits the emptied slot and panics.
func TestHeadStage_DoubleCompletePanics(t *testing.T) {
	h := newHead(fake.NewChannel())
	if _, err := h.RequestRead(16); err != nil {
		t.Fatalf("RequestRead: %v", err)
	}
	h.CompleteRead(api.IOResult{N: 1, Data: []byte("x")})
	assertPanics(t, "second CompleteRead", func() { h.CompleteRead(api.IOResult{}) })
}

// TestHeadStage_ShutdownSweepsSlotBeforeCompletion: the loop observes an
// armed read, another goroutine shuts the stage down, then the loop
// delivers the completion. The completion lands on the swept slot and is
// dropped; the handle carries the closure failure, not the read result.
func TestHeadStage_ShutdownSweepsSlotBeforeCompletion(t *testing.T) {
	ch := fake.NewChannel()
	h := newHead(ch)
	pr, err := h.RequestRead(64)
	if err != nil {
		t.Fatalf("RequestRead: %v", err)
	}
	if _, ok := h.ArmedRead(); !ok {
		t.Fatal("read not armed")
	}
	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	h.CompleteRead(api.IOResult{N: 4, Data: []byte("late")})
	if res := pr.Await(); errors.Cause(res.Err) != api.ErrStageClosed {
		t.Fatalf("read resolved to %+v, want ErrStageClosed", res)
	}

	h2 := newHead(fake.NewChannel())
	pw, err := h2.RequestWrite([][]byte{[]byte("out")})
	if err != nil {
		t.Fatalf("RequestWrite: %v", err)
	}
	if _, ok := h2.QueuedWrite(); !ok {
		t.Fatal("write not armed")
	}
	if err := h2.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	h2.CompleteWrite(api.IOResult{N: 3})
	if res := pw.Await(); errors.Cause(res.Err) != api.ErrStageClosed {
		t.Fatalf("write resolved to %+v, want ErrStageClosed", res)
	}
}

// TestHeadStage_ShutdownForceFailsPending: outstanding handles fail with
// ErrStageClosed instead of hanging forever.
func TestHeadStage_ShutdownForceFailsPending(t *testing.T) {
	ch := fake.NewChannel()
	h := newHead(ch)
	rec := &commandRecorder{}
	h.Attach(rec)

	pr, err := h.RequestRead(512)
	if err != nil {
		t.Fatalf("RequestRead: %v", err)
	}
	pw, err := h.RequestWrite([][]byte{[]byte("pending")})
	if err != nil {
		t.Fatalf("RequestWrite: %v", err)
	}

	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if res := pr.Await(); errors.Cause(res.Err) != api.ErrStageClosed {
		t.Fatalf("pending read failed with %v, want ErrStageClosed", res.Err)
	}
	if res := pw.Await(); errors.Cause(res.Err) != api.ErrStageClosed {
		t.Fatalf("pending write failed with %v, want ErrStageClosed", res.Err)
	}
	if len(rec.cmds) != 1 || rec.cmds[0] != api.CommandDisconnected {
		t.Fatalf("delivered commands = %v, want [disconnected]", rec.cmds)
	}
	if ch.CloseCount() != 1 {
		t.Fatalf("channel ops closed %d times, want 1", ch.CloseCount())
	}

	// Idempotent: a second shutdown does nothing.
	if err := h.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if ch.CloseCount() != 1 {
		t.Fatalf("channel ops closed %d times after repeat, want 1", ch.CloseCount())
	}
}

// TestHeadStage_RequestAfterShutdown fails fast.
func TestHeadStage_RequestAfterShutdown(t *testing.T) {
	h := newHead(fake.NewChannel())
	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := h.RequestRead(1); errors.Cause(err) != api.ErrStageClosed {
		t.Fatalf("RequestRead after shutdown err = %v, want ErrStageClosed", err)
	}
	if _, err := h.RequestWrite(nil); errors.Cause(err) != api.ErrStageClosed {
		t.Fatalf("RequestWrite after shutdown err = %v, want ErrStageClosed", err)
	}
}

// TestHeadStage_ArmFailureClearsSlot: a failed interest toggle rolls the
// slot back so a later request may proceed.
func TestHeadStage_ArmFailureClearsSlot(t *testing.T) {
	ch := fake.NewChannel()
	ch.InterestErr = errors.New("injected")
	h := newHead(ch)
	if _, err := h.RequestRead(1); err == nil {
		t.Fatal("RequestRead succeeded despite interest failure")
	}
	ch.InterestErr = nil
	if _, err := h.RequestRead(1); err != nil {
		t.Fatalf("RequestRead after recovery: %v", err)
	}
}

func assertPanics(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s did not panic", name)
		}
	}()
	fn()
}
