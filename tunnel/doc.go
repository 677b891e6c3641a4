// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel ties Causeway together: it discovers services on the
// local bus and on the overlay, keeps one bridge per discovered
// service, and pumps payloads through those bridges.
//
// A Tunnel owns four resources: a membus node, an overlay session, a
// local discovery source, and a remote discovery source. Discover
// reconciles the bridge registry against whatever the selected
// discovery scope reports; Propagate pumps every registered bridge
// once. Both are driven by the daemon's tick loop — the tunnel itself
// starts no goroutines.
//
// A service is bridged at most once: discovery re-reports known
// services freely, and reconciliation ignores everything already in
// the registry. A service whose bridge cannot be built is logged and
// skipped; the next discovery pass retries it.
package tunnel
