// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import "fmt"

// CreationError reports a failure while assembling a tunnel. Stage
// names the resource that failed: "overlay session", "bus node",
// "remote discovery", or "local discovery".
type CreationError struct {
	Stage string
	Err   error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("creating %s: %v", e.Stage, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// DiscoveryError reports a failed discovery pass in one domain.
// Per-service bridge failures are not discovery errors — they are
// logged and retried on the next pass.
type DiscoveryError struct {
	Scope Scope
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%s discovery: %v", e.Scope, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ConnectionError reports a failure to build the bridge for one
// discovered service. It is logged and skipped; discovery retries on
// the next pass.
type ConnectionError struct {
	Service string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("bridging %s: %v", e.Service, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PropagationError reports a failed Propagate call on one bridge. It
// is logged and counted, never escalated: the remaining bridges still
// propagate.
type PropagationError struct {
	Service string
	Err     error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagating %s: %v", e.Service, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }
