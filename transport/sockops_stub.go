//go:build !linux
// +build !linux

// File: transport/sockops_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub factory for unsupported platforms.

package transport

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// NewSocketOps returns an error for unsupported platforms.
func NewSocketOps(fd uintptr, p reactor.Poller) (api.ChannelOps, error) {
	return nil, errors.New("transport: this platform is not supported")
}
