package membership

import (
	"net"
	"sync"
	"time"

	"github.com/banshee-data/camerasync/internal/clock"
	"github.com/banshee-data/camerasync/internal/monitoring"
	"github.com/banshee-data/camerasync/internal/timedomain"
)

// SendFunc transmits a HEARTBEAT{client_id, synced} to addr.
type SendFunc func(addr *net.UDPAddr, clientID string, synced bool) error

// BroadcastFunc transmits a HEARTBEAT{client_id, synced} to every address
// on the local broadcast domain, used before the leader's address is known.
type BroadcastFunc func(clientID string, synced bool) error

// Client drives the client side of §4.2: it sends periodic heartbeats,
// latches onto the first leader that acknowledges one, and installs
// whatever offset the leader negotiates.
type Client struct {
	clientID string
	ticker   *clock.Ticker
	period   time.Duration
	conv     *timedomain.Converter

	Send      SendFunc
	Broadcast BroadcastFunc

	mu         sync.Mutex
	leaderAddr *net.UDPAddr
}

// NewClient constructs a Client that heartbeats every period and installs
// negotiated offsets into conv.
func NewClient(clientID string, ticker *clock.Ticker, period time.Duration, conv *timedomain.Converter) *Client {
	return &Client{
		clientID: clientID,
		ticker:   ticker,
		period:   period,
		conv:     conv,
	}
}

// LeaderAddr returns the currently latched leader address, if any.
func (c *Client) LeaderAddr() (*net.UDPAddr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaderAddr, c.leaderAddr != nil
}

func (c *Client) setLeaderAddr(addr *net.UDPAddr) {
	c.mu.Lock()
	c.leaderAddr = addr
	c.mu.Unlock()
}

// Tick sends one HEARTBEAT: unicast to the latched leader once known,
// otherwise broadcast so a not-yet-discovered leader can reply.
func (c *Client) Tick() {
	synced := c.conv.Installed()

	if addr, ok := c.LeaderAddr(); ok {
		if err := c.Send(addr, c.clientID, synced); err != nil {
			monitoring.Logf("membership: heartbeat to leader %v failed: %v", addr, err)
		}
		return
	}

	if c.Broadcast == nil {
		return
	}
	if err := c.Broadcast(c.clientID, synced); err != nil {
		monitoring.Logf("membership: heartbeat broadcast failed: %v", err)
	}
}

// Run sends a HEARTBEAT every period until stop is closed.
func (c *Client) Run(stop <-chan struct{}) {
	t := time.NewTicker(c.period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.Tick()
		}
	}
}

// HandleHeartbeatAck latches the leader's address on first contact (or any
// subsequent ack from a different address, e.g. after leader failover).
func (c *Client) HandleHeartbeatAck(from *net.UDPAddr) {
	if addr, ok := c.LeaderAddr(); ok && addr.String() == from.String() {
		return
	}
	c.setLeaderAddr(from)
}

// HandleOffsetUpdate installs a leader-negotiated offset into the time
// domain converter (spec §4.6), making it visible to every subsequent
// ToLocal/ToLeader call.
func (c *Client) HandleOffsetUpdate(offsetNs int64, errorBoundNs uint64) {
	c.conv.Install(timedomain.Offset{OffsetNs: offsetNs, ErrorBoundNs: errorBoundNs})
}
