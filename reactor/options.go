// File: reactor/options.go
// Package reactor defines functional options for selector loop
// construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "go.uber.org/zap"

// Option customizes selector loop initialization.
type Option func(*SelectorLoop)

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *SelectorLoop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMaxEvents overrides how many readiness events one wait may deliver.
func WithMaxEvents(n int) Option {
	return func(l *SelectorLoop) {
		if n > 0 {
			l.maxEvents = n
		}
	}
}

// WithScratchSize overrides the size of the loop's shared scratch buffer.
func WithScratchSize(n int) Option {
	return func(l *SelectorLoop) {
		if n > 0 {
			l.scratchSize = n
		}
	}
}

// WithPoller injects a readiness facility, replacing the platform
// default. Used by tests and embedders with custom backends.
func WithPoller(p Poller) Option {
	return func(l *SelectorLoop) {
		l.poller = p
	}
}
