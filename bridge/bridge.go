// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"github.com/causeway-foundation/causeway/membus"
)

// maxBatch caps how many queued samples or events one Propagate call
// moves per direction. Keeps a single busy service from starving the
// other bridged services on the same tick.
const maxBatch = 16

// ServiceKey returns the overlay key carrying a service's traffic.
// The key embeds the service ID, so two services that share a name
// but differ in pattern occupy distinct keys.
func ServiceKey(service membus.ServiceConfig) string {
	return "causeway/service/" + service.ID.String()
}

// closeAll closes a set of handles, keeping the first error.
func closeAll(closers ...interface{ Close() error }) error {
	var firstError error
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}
