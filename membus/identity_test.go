// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package membus

import "testing"

func TestDeriveServiceIDStable(t *testing.T) {
	first := DeriveServiceID(PatternPublishSubscribe, "radar/frames")
	second := DeriveServiceID(PatternPublishSubscribe, "radar/frames")
	if first != second {
		t.Errorf("same inputs produced different IDs: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("ID length = %d, want 64 hex characters", len(first))
	}
}

func TestDeriveServiceIDPatternSeparation(t *testing.T) {
	pubSub := DeriveServiceID(PatternPublishSubscribe, "radar/frames")
	event := DeriveServiceID(PatternEvent, "radar/frames")
	if pubSub == event {
		t.Error("same name under different patterns produced the same ID")
	}
}

func TestDeriveServiceIDNameSeparation(t *testing.T) {
	// The separator between pattern and name must prevent boundary
	// ambiguity: ("event", "x") and ("even", "tx") differ.
	first := DeriveServiceID(MessagingPattern("event"), "x")
	second := DeriveServiceID(MessagingPattern("even"), "tx")
	if first == second {
		t.Error("pattern/name boundary is ambiguous in the digest")
	}
}

func TestBridgeable(t *testing.T) {
	if !PatternPublishSubscribe.Bridgeable() {
		t.Error("publish_subscribe should be bridgeable")
	}
	if !PatternEvent.Bridgeable() {
		t.Error("event should be bridgeable")
	}
	if MessagingPattern("request_response").Bridgeable() {
		t.Error("unknown pattern should not be bridgeable")
	}
}
