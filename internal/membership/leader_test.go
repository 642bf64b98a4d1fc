package membership

import (
	"net"
	"testing"
	"time"

	"github.com/banshee-data/camerasync/internal/clock"
	"github.com/banshee-data/camerasync/internal/timedomain"
	"github.com/stretchr/testify/assert"
)

func TestLeaderHandleHeartbeatJoinsAndAcks(t *testing.T) {
	reg := NewRegistry(time.Minute)
	leader := NewLeader(reg, clock.NewTicker())

	var acked *net.UDPAddr
	leader.Ack = func(addr *net.UDPAddr) { acked = addr }

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9000}
	leader.HandleHeartbeat("cam-1", addr, false)

	rec, ok := reg.Get("cam-1")
	assert.True(t, ok)
	assert.Equal(t, addr, rec.Addr)
	assert.Equal(t, addr, acked)
}

func TestLeaderStartsSyncOnceForUnsyncedClient(t *testing.T) {
	reg := NewRegistry(time.Minute)
	leader := NewLeader(reg, clock.NewTicker())

	var starts int
	leader.StartSync = func(clientID string, addr *net.UDPAddr) { starts++ }

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9000}
	leader.HandleHeartbeat("cam-1", addr, false)
	leader.HandleHeartbeat("cam-1", addr, false)

	assert.Equal(t, 1, starts, "a second heartbeat while a burst is in flight must not start another")

	leader.SyncFinished("cam-1")
	leader.HandleHeartbeat("cam-1", addr, false)
	assert.Equal(t, 2, starts, "after SyncFinished a new burst may start")
}

func TestLeaderMarksSyncingWhenClientClaimsSyncedButLeaderHasNoOffset(t *testing.T) {
	reg := NewRegistry(time.Minute)
	leader := NewLeader(reg, clock.NewTicker())
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9000}

	leader.HandleHeartbeat("cam-1", addr, true)

	rec, ok := reg.Get("cam-1")
	assert.True(t, ok)
	assert.Equal(t, Syncing, rec.State)
}

func TestLeaderPromotesToSyncedOnlyAfterHeartbeatAck(t *testing.T) {
	reg := NewRegistry(time.Minute)
	leader := NewLeader(reg, clock.NewTicker())
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9000}

	leader.HandleHeartbeat("cam-1", addr, false)
	reg.SetNegotiatedOffset("cam-1", timedomain.Offset{OffsetNs: 100})
	reg.SetState("cam-1", Syncing)

	rec, _ := reg.Get("cam-1")
	assert.Equal(t, Syncing, rec.State, "sending OFFSET_UPDATE alone must not mark the client synced")

	leader.HandleHeartbeat("cam-1", addr, true)

	rec, _ = reg.Get("cam-1")
	assert.Equal(t, Synced, rec.State, "synced only once the client acks the offset via heartbeat")
}

func TestLeaderEvictStaleDelegatesToRegistry(t *testing.T) {
	ticker := clock.NewTicker()
	reg := NewRegistry(time.Nanosecond)
	leader := NewLeader(reg, ticker)
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9000}

	leader.HandleHeartbeat("cam-1", addr, false)
	time.Sleep(time.Millisecond)
	leader.EvictStale()

	_, ok := reg.Get("cam-1")
	assert.False(t, ok)
}
