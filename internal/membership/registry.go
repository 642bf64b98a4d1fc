// Package membership implements the leader's client roster (spec §4.2,
// Entity: ClientRecord) and the heartbeat protocol that keeps it current.
package membership

import (
	"net"
	"sync"
	"time"

	"github.com/banshee-data/camerasync/internal/timedomain"
)

// SyncState is a ClientRecord's position in the offset negotiation
// lifecycle.
type SyncState int

const (
	Unsynced SyncState = iota
	Syncing
	Synced
)

func (s SyncState) String() string {
	switch s {
	case Unsynced:
		return "unsynced"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// ClientRecord is the leader's view of one client (spec §3).
type ClientRecord struct {
	ClientID         string
	Addr             *net.UDPAddr
	LastHeartbeatNs  int64
	State            SyncState
	NegotiatedOffset *timedomain.Offset
}

// Event describes a membership change delivered to observers registered
// via OnMembershipChange.
type Event struct {
	Kind   EventKind
	Record ClientRecord
}

// EventKind distinguishes membership events.
type EventKind int

const (
	Joined EventKind = iota
	Evicted
	StateChanged
)

// Registry tracks every client the leader has seen, insertion-ordered by
// first-seen client id, and evicts entries that go quiet past T_expire.
type Registry struct {
	mu       sync.Mutex
	order    []string
	records  map[string]*ClientRecord
	observer []func(Event)

	expireAfter time.Duration
}

// NewRegistry constructs a Registry that evicts clients silent for more
// than expireAfter.
func NewRegistry(expireAfter time.Duration) *Registry {
	return &Registry{
		records:     make(map[string]*ClientRecord),
		expireAfter: expireAfter,
	}
}

// OnMembershipChange registers an observer invoked (synchronously, from
// whichever goroutine triggered the change) on join, eviction, and sync
// state transitions.
func (r *Registry) OnMembershipChange(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = append(r.observer, fn)
}

func (r *Registry) notify(ev Event) {
	for _, fn := range r.observer {
		fn(ev)
	}
}

// Upsert inserts or refreshes a ClientRecord for clientID, updating its
// address and last-heartbeat time. isNew reports whether this is the
// client's first heartbeat.
func (r *Registry) Upsert(clientID string, addr *net.UDPAddr, nowNs int64) (rec ClientRecord, isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[clientID]
	if !ok {
		existing = &ClientRecord{ClientID: clientID, State: Unsynced}
		r.records[clientID] = existing
		r.order = append(r.order, clientID)
	}
	existing.Addr = addr
	existing.LastHeartbeatNs = nowNs

	out := *existing
	if !ok {
		r.notify(Event{Kind: Joined, Record: out})
	}
	return out, !ok
}

// SetState transitions clientID's sync state and notifies observers.
func (r *Registry) SetState(clientID string, state SyncState) {
	r.mu.Lock()
	existing, ok := r.records[clientID]
	if !ok {
		r.mu.Unlock()
		return
	}
	existing.State = state
	out := *existing
	r.mu.Unlock()

	r.notify(Event{Kind: StateChanged, Record: out})
}

// SetNegotiatedOffset records the offset the leader has sent clientID.
// This alone does not mark the client Synced: spec invariant I3 requires
// the client to acknowledge the offset via a subsequent heartbeat
// advertising synced=true, which membership.Leader.HandleHeartbeat
// enforces before promoting sync_state to Synced.
func (r *Registry) SetNegotiatedOffset(clientID string, offset timedomain.Offset) {
	r.mu.Lock()
	existing, ok := r.records[clientID]
	if !ok {
		r.mu.Unlock()
		return
	}
	cp := offset
	existing.NegotiatedOffset = &cp
	r.mu.Unlock()
}

// Get returns a copy of clientID's record, if known.
func (r *Registry) Get(clientID string) (ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[clientID]
	if !ok {
		return ClientRecord{}, false
	}
	return *existing, true
}

// Clients returns every known ClientRecord in first-seen order.
func (r *Registry) Clients() []ClientRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientRecord, 0, len(r.order))
	for _, id := range r.order {
		if rec, ok := r.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// Addrs returns the current address of every known client, for broadcast.
func (r *Registry) Addrs() []*net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*net.UDPAddr, 0, len(r.order))
	for _, id := range r.order {
		if rec, ok := r.records[id]; ok && rec.Addr != nil {
			out = append(out, rec.Addr)
		}
	}
	return out
}

// EvictStale removes every client whose last heartbeat is older than
// T_expire relative to nowNs, notifying observers for each eviction.
func (r *Registry) EvictStale(nowNs int64) {
	r.mu.Lock()
	var evicted []ClientRecord
	remaining := r.order[:0:0]
	for _, id := range r.order {
		rec := r.records[id]
		if time.Duration(nowNs-rec.LastHeartbeatNs) > r.expireAfter {
			delete(r.records, id)
			evicted = append(evicted, *rec)
			continue
		}
		remaining = append(remaining, id)
	}
	r.order = remaining
	r.mu.Unlock()

	for _, rec := range evicted {
		r.notify(Event{Kind: Evicted, Record: rec})
	}
}
