// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package introspect

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/causeway-foundation/causeway/lib/codec"
)

// dialTimeout covers only the connect phase; the server's own
// timeouts govern the rest.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the response
// after writing its request.
const responseReadTimeout = 45 * time.Second

// maxResponseSize matches the server's request bound for symmetry.
const maxResponseSize = 1024 * 1024

// CallError is returned when the server responds with ok=false.
type CallError struct {
	Action  string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("introspection error on %q: %s", e.Action, e.Message)
}

// Client queries a tunnel daemon's introspection socket. Each call
// opens a fresh connection, matching the server's one-request-per-
// connection model.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Services returns the identities of the daemon's bridged services.
func (c *Client) Services(ctx context.Context) ([]string, error) {
	var list serviceList
	if err := c.call(ctx, "services", &list); err != nil {
		return nil, err
	}
	return list.Services, nil
}

// Status returns the daemon's vitals.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	if err := c.call(ctx, "status", &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// call sends one action request and decodes the response data into
// result. A server-side failure returns a *CallError; connection and
// encoding problems return plain errors.
func (c *Client) call(ctx context.Context, action string, result any) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(map[string]any{"action": action}); err != nil {
		return fmt.Errorf("writing %q request: %w", action, err)
	}

	// Half-close the write side so the server's read sees clean EOF
	// if it over-reads. CBOR is self-delimiting, so this is hygiene,
	// not framing.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("reading %q response: %w", action, err)
	}

	if !response.OK {
		return &CallError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response data: %w", action, err)
		}
	}
	return nil
}
