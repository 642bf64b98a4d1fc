package controller

import (
	"context"
	"net"
	"time"

	"github.com/banshee-data/camerasync/internal/clock"
	"github.com/banshee-data/camerasync/internal/membership"
	"github.com/banshee-data/camerasync/internal/monitoring"
	"github.com/banshee-data/camerasync/internal/rpc"
	"github.com/banshee-data/camerasync/internal/sntp"
	"github.com/banshee-data/camerasync/internal/timedomain"
)

// CaptureAckHandler receives a client's CAPTURE_ACK, e.g. to append to
// C11's audit log.
type CaptureAckHandler func(sender *net.UDPAddr, ack CaptureAckPayload)

// Leader wires C2 (transport), C3 (membership), and C4 (SNTP) together
// behind the leader half of the §4.7 method surface. Phase alignment
// (C6), synchronization (C7), and triggering (C8) run client-side against
// each device's own camera; the leader only broadcasts the commands that
// start those cycles.
type Leader struct {
	Transport *rpc.Transport
	Registry  *membership.Registry
	Members   *membership.Leader
	Estimator *sntp.Estimator

	ticker *clock.Ticker
	ctx    context.Context
	cancel context.CancelFunc

	evictEvery time.Duration

	onCaptureAck      CaptureAckHandler
	onOffsetInstalled OffsetInstalledHandler
}

// OffsetInstalledHandler receives each client offset the leader negotiates,
// e.g. to append to C11's audit log.
type OffsetInstalledHandler func(clientID string, offset timedomain.Offset)

// NewLeader constructs a leader controller over socket, evicting stale
// clients after evictEvery and running SNTP bursts per burstCfg.
func NewLeader(socket rpc.Socket, ticker *clock.Ticker, evictEvery time.Duration, burstCfg sntp.BurstConfig, workers int) *Leader {
	registry := membership.NewRegistry(evictEvery)
	members := membership.NewLeader(registry, ticker)
	estimator := sntp.NewEstimator(ticker, burstCfg)
	transport := rpc.NewTransport(socket, workers)

	l := &Leader{
		Transport:  transport,
		Registry:   registry,
		Members:    members,
		Estimator:  estimator,
		ticker:     ticker,
		evictEvery: evictEvery,
	}

	members.Ack = func(addr *net.UDPAddr) {
		if err := transport.SendTo(addr, MethodHeartbeatAck, nil); err != nil {
			monitoring.Logf("controller: heartbeat ack to %v failed: %v", addr, err)
		}
	}
	members.StartSync = l.startSync

	transport.RegisterHandler(MethodHeartbeat, l.handleHeartbeat)
	transport.RegisterHandler(MethodSNTPResp, l.handleSNTPResp)
	transport.RegisterHandler(MethodCaptureAck, l.handleCaptureAck)

	return l
}

// OnCaptureAck registers the handler invoked on every CAPTURE_ACK.
func (l *Leader) OnCaptureAck(fn CaptureAckHandler) {
	l.onCaptureAck = fn
}

// OnOffsetInstalled registers the handler invoked every time the leader
// successfully negotiates and installs a client's offset.
func (l *Leader) OnOffsetInstalled(fn OffsetInstalledHandler) {
	l.onOffsetInstalled = fn
}

// Start runs the transport's receive loop and the periodic eviction sweep
// until ctx is canceled.
func (l *Leader) Start(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)
	go l.evictionLoop(l.ctx)
	return l.Transport.Start(l.ctx)
}

func (l *Leader) evictionLoop(ctx context.Context) {
	t := time.NewTicker(l.evictEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Members.EvictStale()
		}
	}
}

// Close stops the leader controller and its transport.
func (l *Leader) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	return l.Transport.Close()
}

// ArmTrigger broadcasts SET_TRIGGER_TIME(tTriggerLeaderNs) to every known
// client (spec §4.8).
func (l *Leader) ArmTrigger(tTriggerLeaderNs int64) {
	payload := EncodeSetTriggerTime(SetTriggerTimePayload{TTriggerLeaderNs: tTriggerLeaderNs})
	l.Transport.Broadcast(l.Registry.Addrs(), MethodSetTriggerTime, payload)
}

// BroadcastPhaseAlign starts a C6 cycle on every known client.
func (l *Leader) BroadcastPhaseAlign() {
	l.Transport.Broadcast(l.Registry.Addrs(), MethodDoPhaseAlign, nil)
}

// BroadcastSet2A forwards an exposure/sensitivity update to every client's
// camera collaborator.
func (l *Leader) BroadcastSet2A(exposureNs int64, sensitivity int32) {
	payload := EncodeSet2A(Set2APayload{ExposureNs: exposureNs, Sensitivity: sensitivity})
	l.Transport.Broadcast(l.Registry.Addrs(), MethodSet2A, payload)
}

func (l *Leader) handleHeartbeat(sender *net.UDPAddr, payload []byte) {
	hb, err := DecodeHeartbeat(payload)
	if err != nil {
		monitoring.Logf("controller: malformed HEARTBEAT from %v: %v", sender, err)
		return
	}
	l.Members.HandleHeartbeat(hb.ClientID, sender, hb.Synced)
}

func (l *Leader) handleSNTPResp(sender *net.UDPAddr, payload []byte) {
	resp, err := DecodeSNTPResp(payload)
	if err != nil {
		monitoring.Logf("controller: malformed SNTP_RESP from %v: %v", sender, err)
		return
	}
	l.Estimator.HandleResponse(sender, resp.T0, resp.T1, resp.T2)
}

func (l *Leader) handleCaptureAck(sender *net.UDPAddr, payload []byte) {
	ack, err := DecodeCaptureAck(payload)
	if err != nil {
		monitoring.Logf("controller: malformed CAPTURE_ACK from %v: %v", sender, err)
		return
	}
	if l.onCaptureAck != nil {
		l.onCaptureAck(sender, ack)
	}
}

// startSync runs one SNTP burst against addr and reports the outcome back
// into the membership registry (spec §4.2 step 3, §4.3).
func (l *Leader) startSync(clientID string, addr *net.UDPAddr) {
	go func() {
		defer l.Members.SyncFinished(clientID)

		send := func(a *net.UDPAddr, t0 int64) error {
			return l.Transport.SendTo(a, MethodSNTPReq, EncodeSNTPReq(SNTPReqPayload{T0: t0}))
		}

		ctx := l.ctx
		if ctx == nil {
			ctx = context.Background()
		}

		offset, ok := l.Estimator.RunBurst(ctx, addr, send)
		if !ok {
			l.Registry.SetState(clientID, membership.Unsynced)
			return
		}

		if err := l.Transport.SendTo(addr, MethodOffsetUpdate, EncodeOffsetUpdate(OffsetUpdatePayload{
			OffsetNs:     offset.OffsetNs,
			ErrorBoundNs: offset.ErrorBoundNs,
		})); err != nil {
			monitoring.Logf("controller: offset update to %v failed: %v", addr, err)
			return
		}
		l.Registry.SetNegotiatedOffset(clientID, offset)
		// Spec invariant I3: synced means the client has acknowledged this
		// offset via heartbeat, not merely that the leader sent it. Stay in
		// Syncing until membership.Leader.HandleHeartbeat sees that ack.
		l.Registry.SetState(clientID, membership.Syncing)
		if l.onOffsetInstalled != nil {
			l.onOffsetInstalled(clientID, offset)
		}
	}()
}
