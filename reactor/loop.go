// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SelectorLoop is the reactor proper: one dedicated goroutine drains the
// task queue, blocks on the poller, and dispatches readiness to head
// stages. Channel registration always travels through the task queue so
// it runs on the loop goroutine.

package reactor

import (
	"github.com/pkg/errors"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/core/concurrency"
	"github.com/momentics/hioload-reactor/pipeline"
	"github.com/momentics/hioload-reactor/pool"
)

const defaultMaxEvents = 128

// Loop states. There is no pause state: a loop runs until a fatal error
// or an explicit shutdown.
const (
	stateNew int32 = iota
	stateRunning
	stateClosing
	stateTerminated
)

// ChannelOpsProvider builds the concrete channel ops for a raw
// descriptor at registration time. This is the extension point for
// plaintext versus secured channel kinds.
type ChannelOpsProvider func(fd uintptr, p Poller) (api.ChannelOps, error)

// SelectorLoop multiplexes many non-blocking channels over one poller.
// All channels registered on a loop share its failure domain: a fatal
// poller error terminates service for every one of them.
type SelectorLoop struct {
	log    *zap.Logger
	poller Poller
	tasks  *concurrency.TaskQueue
	reg    registry

	// scratch is reused for every channel this loop processes; only the
	// loop goroutine touches it and no reference survives a single
	// readiness step.
	scratch     []byte
	scratchSize int
	bufPool     *pool.BytePool

	maxEvents int
	state     uatomic.Int32
	done      chan struct{}
	closeErr  error
}

var _ api.GracefulShutdown = (*SelectorLoop)(nil)

// NewSelectorLoop creates a loop and its readiness facility. The caller
// runs it with `go loop.Run()`.
func NewSelectorLoop(opts ...Option) (*SelectorLoop, error) {
	l := &SelectorLoop{
		log:         zap.NewNop(),
		scratchSize: pool.DefaultScratchSize,
		maxEvents:   defaultMaxEvents,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.tasks = concurrency.NewTaskQueue(l.log)
	if l.poller == nil {
		p, err := NewPoller()
		if err != nil {
			return nil, errors.Wrap(err, "create poller")
		}
		l.poller = p
	}
	if l.scratchSize == pool.DefaultScratchSize {
		l.bufPool = pool.Default()
		l.scratch = l.bufPool.GetBuffer()
	} else {
		l.scratch = make([]byte, l.scratchSize)
	}
	return l, nil
}

// Execute schedules task onto the loop goroutine. Never blocks. Tasks
// submitted by one goroutine run in submission order.
func (l *SelectorLoop) Execute(task concurrency.Task) error {
	if l.state.Load() >= stateClosing {
		return api.ErrLoopTerminated
	}
	if l.tasks.Enqueue(task) {
		// Empty-to-non-empty transition: the loop may be blocked in Wait.
		if err := l.poller.Wake(); err != nil && l.state.Load() < stateClosing {
			return errors.Wrap(err, "wake loop")
		}
	}
	return nil
}

// RegisterChannel schedules registration of a raw descriptor: the
// provider supplies its channel ops and the factory builds the pipeline
// above the new head stage. Registration failures are logged and abort
// only that channel.
func (l *SelectorLoop) RegisterChannel(fd uintptr, provider ChannelOpsProvider, factory api.PipelineFactory) error {
	if provider == nil {
		return errors.New("nil channel ops provider")
	}
	return l.Execute(func() {
		l.registerChannel(fd, provider, factory)
	})
}

// Run executes the loop until a fatal error or Shutdown. Call once, on a
// dedicated goroutine. A panic escaping the dispatch path terminates the
// loop with that cause rather than the process.
func (l *SelectorLoop) Run() {
	if !l.state.CompareAndSwap(stateNew, stateRunning) {
		return
	}
	l.log.Debug("selector loop started")
	var fatal error
	defer func() {
		if r := recover(); r != nil {
			fatal = errors.Errorf("loop panic: %v", r)
		}
		l.terminate(fatal)
	}()
	events := make([]Event, l.maxEvents)
	for l.state.Load() == stateRunning {
		l.tasks.DrainAndRun()
		if l.state.Load() != stateRunning {
			break
		}
		n, err := l.poller.Wait(events)
		if err != nil {
			fatal = errors.Wrap(err, "readiness wait")
			break
		}
		for i := 0; i < n; i++ {
			if err := l.dispatchEvent(events[i]); err != nil {
				fatal = err
				break
			}
		}
		if fatal != nil {
			break
		}
	}
}

// Shutdown stops the loop, tears down every registered channel and
// releases the poller. Blocks until the loop goroutine has exited.
// Returns the fatal error if the loop died on its own. Idempotent.
func (l *SelectorLoop) Shutdown() error {
	for {
		switch s := l.state.Load(); s {
		case stateNew:
			if l.state.CompareAndSwap(stateNew, stateClosing) {
				// Loop never ran; tear down directly.
				l.terminate(nil)
			}
		case stateRunning:
			if l.state.CompareAndSwap(stateRunning, stateClosing) {
				_ = l.poller.Wake()
			}
		default:
			<-l.done
			return l.closeErr
		}
	}
}

// Done is closed once the loop has terminated.
func (l *SelectorLoop) Done() <-chan struct{} { return l.done }

// PendingTasks reports queued but unexecuted tasks.
func (l *SelectorLoop) PendingTasks() int64 { return l.tasks.Pending() }

// registerChannel runs on the loop goroutine.
func (l *SelectorLoop) registerChannel(fd uintptr, provider ChannelOpsProvider, factory api.PipelineFactory) {
	if err := l.poller.Register(fd); err != nil {
		l.log.Error("channel registration failed", zap.Uintptr("fd", fd), zap.Error(err))
		return
	}
	ops, err := provider(fd, l.poller)
	if err != nil {
		_ = l.poller.Unregister(fd)
		l.log.Error("channel ops creation failed", zap.Uintptr("fd", fd), zap.Error(err))
		return
	}
	release := func() {
		l.reg.delete(fd)
		_ = l.poller.Unregister(fd)
	}
	stage := pipeline.NewHeadStage(ops, l.log.With(zap.Uintptr("fd", fd)), release)
	l.reg.store(fd, stage)
	if factory != nil {
		upper, err := factory(stage)
		if err != nil {
			l.log.Error("pipeline build failed", zap.Uintptr("fd", fd), zap.Error(err))
			_ = stage.Shutdown()
			return
		}
		stage.Attach(upper)
	}
	stage.Deliver(api.CommandConnected)
	l.log.Debug("channel registered", zap.Uintptr("fd", fd))
}

// dispatchEvent routes one readiness event to its head stage.
func (l *SelectorLoop) dispatchEvent(ev Event) error {
	stage, ok := l.reg.lookup(ev.FD)
	if !ok {
		// Key cancelled concurrently, or a channel outlived its
		// registration. Not an error.
		l.log.Warn("readiness for unknown descriptor", zap.Uintptr("fd", ev.FD))
		return nil
	}
	if ev.Kind&EventError != 0 {
		_, readArmed := stage.ArmedRead()
		_, writeArmed := stage.QueuedWrite()
		if !readArmed && !writeArmed {
			// The facility reports hangup and error conditions regardless
			// of armed interest. With nothing pending there is nobody to
			// hand the failure to, and the condition never clears, so the
			// channel must leave the poller or the loop spins on it.
			l.log.Warn("error condition on idle channel, closing",
				zap.Uintptr("fd", ev.FD))
			if err := stage.Shutdown(); err != nil {
				l.log.Warn("idle channel shutdown failed",
					zap.Uintptr("fd", ev.FD), zap.Error(err))
			}
			return nil
		}
	}
	if ev.Kind&(EventRead|EventError) != 0 {
		if err := l.completeRead(ev.FD, stage); err != nil {
			return err
		}
	}
	if ev.Kind&(EventWrite|EventError) != 0 {
		if err := l.completeWrite(ev.FD, stage); err != nil {
			return err
		}
	}
	return nil
}

// completeRead performs the pending read, if armed. A would-block result
// leaves interest and the pending slot untouched.
func (l *SelectorLoop) completeRead(fd uintptr, stage *pipeline.HeadStage) error {
	maxSize, armed := stage.ArmedRead()
	if !armed {
		return nil
	}
	buf := l.scratch
	if maxSize > 0 && maxSize < len(buf) {
		buf = buf[:maxSize]
	}
	res, done := stage.Ops().PerformRead(buf)
	if !done {
		return nil
	}
	if err := l.clearInterest(fd, stage.Ops().ClearReadInterest()); err != nil {
		return err
	}
	if res.N > 0 {
		// Copy out: the scratch buffer must not escape this step.
		data := make([]byte, res.N)
		copy(data, res.Data)
		res.Data = data
	} else {
		res.Data = nil
	}
	stage.CompleteRead(res)
	return nil
}

// completeWrite performs the pending write, if armed.
func (l *SelectorLoop) completeWrite(fd uintptr, stage *pipeline.HeadStage) error {
	bufs, armed := stage.QueuedWrite()
	if !armed {
		return nil
	}
	res, done := stage.Ops().PerformWrite(l.scratch, bufs)
	if !done {
		return nil
	}
	if err := l.clearInterest(fd, stage.Ops().ClearWriteInterest()); err != nil {
		return err
	}
	stage.CompleteWrite(res)
	return nil
}

// clearInterest classifies an interest-clear outcome, tolerating a
// channel that raced away. Any other failure is fatal to the loop.
func (l *SelectorLoop) clearInterest(fd uintptr, err error) error {
	switch errors.Cause(err) {
	case nil, api.ErrNotRegistered, api.ErrPollerClosed, api.ErrStageClosed:
		return nil
	default:
		return errors.Wrapf(err, "clear interest fd=%d", fd)
	}
}

// terminate tears down every registered channel and the poller, exactly
// once, and publishes the loop's exit.
func (l *SelectorLoop) terminate(cause error) {
	l.state.Store(stateTerminated)
	if cause != nil {
		l.log.Error("selector loop terminated", zap.Error(cause))
	} else {
		l.log.Info("selector loop closed")
	}
	// Final drain: tasks accepted before the closing transition still run.
	l.tasks.DrainAndRun()
	l.reg.each(func(fd uintptr, stage *pipeline.HeadStage) {
		if err := stage.Shutdown(); err != nil {
			l.log.Warn("stage shutdown failed", zap.Uintptr("fd", fd), zap.Error(err))
		}
	})
	if err := l.poller.Close(); err != nil && errors.Cause(err) != api.ErrPollerClosed {
		l.log.Warn("poller close failed", zap.Error(err))
	}
	if l.bufPool != nil {
		l.bufPool.PutBuffer(l.scratch)
		l.scratch = nil
	}
	l.closeErr = cause
	close(l.done)
}
