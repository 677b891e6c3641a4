// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import "github.com/causeway-foundation/causeway/membus"

// registry holds the connections for one messaging pattern, keyed by
// service identity. Insertion order is preserved so propagation and
// snapshots are deterministic.
type registry struct {
	pattern     membus.MessagingPattern
	connections map[membus.ServiceID]Connection
	order       []membus.ServiceID
}

func newRegistry(pattern membus.MessagingPattern) *registry {
	return &registry{
		pattern:     pattern,
		connections: make(map[membus.ServiceID]Connection),
	}
}

// reconcile ensures a connection exists for id. A known id is a
// no-op. Otherwise create runs; on failure nothing is inserted, so
// the next pass retries.
func (r *registry) reconcile(id membus.ServiceID, create func() (Connection, error)) (bool, error) {
	if _, exists := r.connections[id]; exists {
		return false, nil
	}
	connection, err := create()
	if err != nil {
		return false, err
	}
	r.connections[id] = connection
	r.order = append(r.order, id)
	return true, nil
}

// remove deletes and returns the connection for id, if present. The
// caller closes it.
func (r *registry) remove(id membus.ServiceID) (Connection, bool) {
	connection, exists := r.connections[id]
	if !exists {
		return nil, false
	}
	delete(r.connections, id)
	for i, known := range r.order {
		if known == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return connection, true
}

func (r *registry) len() int {
	return len(r.connections)
}

// each visits every connection in insertion order.
func (r *registry) each(visit func(Connection)) {
	for _, id := range r.order {
		visit(r.connections[id])
	}
}

// ids returns the identities in insertion order.
func (r *registry) ids() []membus.ServiceID {
	return append([]membus.ServiceID(nil), r.order...)
}
