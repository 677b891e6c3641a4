// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small networking helpers shared by the
// membus broker and the overlay session.
package netutil

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// IsExpectedCloseError reports whether err is one of the errors that
// normally occur when a peer or the local side closes a connection:
// EOF, "use of closed network connection", broken pipe, or connection
// reset. Read loops use this to distinguish orderly shutdown from
// genuine transport failures worth logging.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	// Some wrapped poll errors only expose the message.
	message := err.Error()
	return strings.Contains(message, "use of closed network connection") ||
		strings.Contains(message, "broken pipe") ||
		strings.Contains(message, "connection reset by peer")
}
