// Package netmap holds the bidirectional binding between server-authoritative
// entity ids and client-local entity ids. The reconciliation engine is its
// only owner; lookups for absent ids are no-ops, never failures.
package netmap

import "voxelsync.gg/internal/protocol"

type Table struct {
	// Accessed only from the reconciliation tick.
	serverToClient map[protocol.EntityID]protocol.EntityID
}

func New() *Table {
	return &Table{serverToClient: map[protocol.EntityID]protocol.EntityID{}}
}

func (t *Table) Insert(server, client protocol.EntityID) {
	t.serverToClient[server] = client
}

func (t *Table) Lookup(server protocol.EntityID) (protocol.EntityID, bool) {
	c, ok := t.serverToClient[server]
	return c, ok
}

func (t *Table) Remove(server protocol.EntityID) (protocol.EntityID, bool) {
	c, ok := t.serverToClient[server]
	if ok {
		delete(t.serverToClient, server)
	}
	return c, ok
}

func (t *Table) Len() int { return len(t.serverToClient) }
