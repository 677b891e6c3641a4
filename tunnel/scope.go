// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import "fmt"

// Scope selects which domains a Discover pass consults.
type Scope uint8

const (
	// ScopeLocal discovers services on the local bus only.
	ScopeLocal Scope = iota

	// ScopeRemote discovers services announced on the overlay only.
	ScopeRemote

	// ScopeBoth discovers in both domains, local first.
	ScopeBoth
)

// String returns the configuration name of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeRemote:
		return "remote"
	case ScopeBoth:
		return "both"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseScope parses a scope from its configuration name.
func ParseScope(name string) (Scope, error) {
	switch name {
	case "local":
		return ScopeLocal, nil
	case "remote":
		return ScopeRemote, nil
	case "both":
		return ScopeBoth, nil
	default:
		return 0, fmt.Errorf("unknown discovery scope: %q", name)
	}
}

// includesLocal reports whether the scope covers the local bus.
func (s Scope) includesLocal() bool {
	return s == ScopeLocal || s == ScopeBoth
}

// includesRemote reports whether the scope covers the overlay.
func (s Scope) includesRemote() bool {
	return s == ScopeRemote || s == ScopeBoth
}
