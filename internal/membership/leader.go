package membership

import (
	"net"
	"sync"

	"github.com/banshee-data/camerasync/internal/clock"
)

// DefaultExpireMultiple is how many heartbeat periods of silence trigger
// eviction (T_expire = DefaultExpireMultiple * T_heartbeat per spec §3).
const DefaultExpireMultiple = 5

// Leader drives the leader side of §4.2: upserting ClientRecords on every
// heartbeat, acknowledging them, and deciding when a client needs a fresh
// SNTP burst.
type Leader struct {
	registry *Registry
	ticker   *clock.Ticker

	// Ack sends HEARTBEAT_ACK back to a client.
	Ack func(addr *net.UDPAddr)
	// StartSync begins an SNTP burst against a client, if one is not
	// already in flight for that client id.
	StartSync func(clientID string, addr *net.UDPAddr)

	mu         sync.Mutex
	inFlightID map[string]bool
}

// NewLeader constructs a Leader over registry, using ticker for staleness
// timestamps.
func NewLeader(registry *Registry, ticker *clock.Ticker) *Leader {
	return &Leader{
		registry:   registry,
		ticker:     ticker,
		inFlightID: make(map[string]bool),
	}
}

// HandleHeartbeat implements the leader's per-heartbeat algorithm (spec
// §4.2 steps 1-4): upsert the record, ack it, and start or advance the
// offset negotiation.
func (l *Leader) HandleHeartbeat(clientID string, addr *net.UDPAddr, advertisedSynced bool) {
	now := l.ticker.NowNanos()
	rec, _ := l.registry.Upsert(clientID, addr, now)

	if l.Ack != nil {
		l.Ack(addr)
	}

	if !advertisedSynced {
		l.beginSyncIfIdle(clientID, addr)
		return
	}

	// Client claims synced=true but the leader has no record of having
	// negotiated an offset for it (e.g. leader restarted) — mark it
	// Syncing. No burst is started here; bursts start only on a
	// synced=false heartbeat.
	if rec.NegotiatedOffset == nil {
		l.registry.SetState(clientID, Syncing)
		return
	}

	// Invariant I3: sync_state only becomes synced once the client has
	// acknowledged the negotiated offset via this heartbeat.
	if rec.State != Synced {
		l.registry.SetState(clientID, Synced)
	}
}

func (l *Leader) beginSyncIfIdle(clientID string, addr *net.UDPAddr) {
	l.mu.Lock()
	if l.inFlightID[clientID] {
		l.mu.Unlock()
		return
	}
	l.inFlightID[clientID] = true
	l.mu.Unlock()

	if l.StartSync != nil {
		l.StartSync(clientID, addr)
	}
}

// SyncFinished clears the in-flight marker for clientID, whether the burst
// succeeded or was abandoned, so a subsequent heartbeat can retry.
func (l *Leader) SyncFinished(clientID string) {
	l.mu.Lock()
	delete(l.inFlightID, clientID)
	l.mu.Unlock()
}

// EvictStale removes clients silent past T_expire.
func (l *Leader) EvictStale() {
	l.registry.EvictStale(l.ticker.NowNanos())
}
