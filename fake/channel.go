// File: fake/channel.go
// Package fake provides scriptable test doubles for the reactor core.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"

	"github.com/momentics/hioload-reactor/api"
)

// Channel is a scriptable api.ChannelOps. Reads and writes complete with
// queued results; with nothing queued they report would-block.
type Channel struct {
	mu           sync.Mutex
	readArmed    bool
	writeArmed   bool
	readResults  []api.IOResult
	writeResults []api.IOResult
	writes       [][][]byte
	closeCount   int

	// InterestErr, when set, is returned by every interest toggle.
	InterestErr error
}

var _ api.ChannelOps = (*Channel)(nil)

// NewChannel returns an empty fake channel.
func NewChannel() *Channel { return &Channel{} }

// QueueReadResult scripts the next completed read. Data is copied into
// the loop's scratch on delivery, mirroring a real channel.
func (c *Channel) QueueReadResult(res api.IOResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readResults = append(c.readResults, res)
}

// QueueWriteResult scripts the next completed write. With nothing
// scripted, writes complete successfully with the full byte count.
func (c *Channel) QueueWriteResult(res api.IOResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeResults = append(c.writeResults, res)
}

func (c *Channel) SetReadInterest() error    { return c.setInterest(&c.readArmed, true) }
func (c *Channel) ClearReadInterest() error  { return c.setInterest(&c.readArmed, false) }
func (c *Channel) SetWriteInterest() error   { return c.setInterest(&c.writeArmed, true) }
func (c *Channel) ClearWriteInterest() error { return c.setInterest(&c.writeArmed, false) }

func (c *Channel) setInterest(flag *bool, v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InterestErr != nil {
		return c.InterestErr
	}
	*flag = v
	return nil
}

// PerformRead pops the next scripted read, copying its data into scratch.
func (c *Channel) PerformRead(scratch []byte) (api.IOResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.readResults) == 0 {
		return api.IOResult{}, false
	}
	res := c.readResults[0]
	c.readResults = c.readResults[1:]
	if len(res.Data) > 0 {
		n := copy(scratch, res.Data)
		res.N = n
		res.Data = scratch[:n]
	}
	return res, true
}

// PerformWrite records the buffer sequence and pops the next scripted
// result.
func (c *Channel) PerformWrite(_ []byte, buffers [][]byte) (api.IOResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, buffers)
	if len(c.writeResults) == 0 {
		total := 0
		for _, b := range buffers {
			total += len(b)
		}
		return api.IOResult{N: total}, true
	}
	res := c.writeResults[0]
	c.writeResults = c.writeResults[1:]
	return res, true
}

// Close counts invocations; idempotence is the caller's contract to
// verify via CloseCount.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	return nil
}

// ReadInterest reports whether read interest is currently armed.
func (c *Channel) ReadInterest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readArmed
}

// WriteInterest reports whether write interest is currently armed.
func (c *Channel) WriteInterest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeArmed
}

// Writes returns every captured buffer sequence.
func (c *Channel) Writes() [][][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// CloseCount reports how many times Close ran.
func (c *Channel) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}
