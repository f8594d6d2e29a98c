// File: pipeline/pending.go
// Package pipeline implements the reactor-facing end of a protocol
// pipeline: the head stage and its pending-operation handles.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipeline

import (
	uatomic "go.uber.org/atomic"

	"github.com/momentics/hioload-reactor/api"
)

// Pending is a one-shot completion handle. It satisfies api.Pending.
type Pending struct {
	done    chan struct{}
	settled uatomic.Bool
	res     api.IOResult
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Done is closed when the operation has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the outcome. Valid only after Done is closed.
func (p *Pending) Result() api.IOResult { return p.res }

// Await blocks until completion and returns the outcome.
func (p *Pending) Await() api.IOResult {
	<-p.done
	return p.res
}

// settle resolves the handle exactly once. A second settle is a
// programming error and fails loudly.
func (p *Pending) settle(res api.IOResult) {
	if !p.settled.CompareAndSwap(false, true) {
		panic("pipeline: pending operation resolved twice")
	}
	p.res = res
	close(p.done)
}
