// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/causeway-foundation/causeway/membus"
	"github.com/causeway-foundation/causeway/tunnel"
)

func scrape(t *testing.T, recorder *Recorder) string {
	t.Helper()
	request := httptest.NewRequest("GET", "/metrics", nil)
	response := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(response, request)
	if response.Code != 200 {
		t.Fatalf("scrape returned %d", response.Code)
	}
	return response.Body.String()
}

func TestRecorderExportsLifecycle(t *testing.T) {
	recorder := NewRecorder()
	service := membus.ServiceConfig{
		ID:      membus.DeriveServiceID(membus.PatternPublishSubscribe, "telemetry"),
		Name:    "telemetry",
		Pattern: membus.PatternPublishSubscribe,
	}

	recorder.ServiceBridged(service, tunnel.ScopeLocal)
	recorder.TunneledCount(membus.PatternPublishSubscribe, 1)
	recorder.DiscoveryRan(tunnel.ScopeLocal, nil)
	recorder.DiscoveryRan(tunnel.ScopeRemote, fmt.Errorf("link down"))
	recorder.PropagationFailure(service, fmt.Errorf("bad sample"))

	body := scrape(t, recorder)
	for _, want := range []string{
		`causeway_services_bridged_total{pattern="publish_subscribe",source="local"} 1`,
		`causeway_tunneled_services{pattern="publish_subscribe"} 1`,
		`causeway_discovery_runs_total{result="ok",scope="local"} 1`,
		`causeway_discovery_runs_total{result="error",scope="remote"} 1`,
		`causeway_propagation_failures_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	first := NewRecorder()
	second := NewRecorder()
	first.PropagationFailure(membus.ServiceConfig{}, fmt.Errorf("x"))

	if strings.Contains(scrape(t, second), "causeway_propagation_failures_total 1") {
		t.Fatal("recorders share a registry")
	}
}
