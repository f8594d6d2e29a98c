// File: transport/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package transport provides concrete channel-ops implementations over
// raw non-blocking sockets. Syscall failures are contained here and
// surfaced as failed results; they never escape into the selector loop.
package transport
