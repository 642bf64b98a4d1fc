package controller

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/camerasync/internal/capture"
	"github.com/banshee-data/camerasync/internal/clock"
	"github.com/banshee-data/camerasync/internal/framesync"
	"github.com/banshee-data/camerasync/internal/membership"
	"github.com/banshee-data/camerasync/internal/monitoring"
	"github.com/banshee-data/camerasync/internal/phasealign"
	"github.com/banshee-data/camerasync/internal/rpc"
	"github.com/banshee-data/camerasync/internal/sntp"
	"github.com/banshee-data/camerasync/internal/timedomain"
	"github.com/banshee-data/camerasync/internal/trigger"
	"github.com/google/uuid"
)

// Client wires C2 (transport), C3 (membership), C5 (time domain), C6
// (phase alignment), C7 (synchronizer), and C8 (trigger) together behind
// the client half of the §4.7 method surface.
type Client struct {
	Transport *rpc.Transport
	Members   *membership.Client
	Converter *timedomain.Converter
	Sync      *framesync.Synchronizer
	PhaseCtl  *phasealign.Controller
	Trigger   *trigger.Scheduler

	camera  capture.Camera
	ticker  *clock.Ticker
	rpcPort int
	stop    chan struct{}

	phaseActive atomic.Bool
}

// NewClient constructs a client controller for clientID over socket,
// driving persistence through persist and capture requests through cam.
// rpcPort is the leader's well-known RPC port (P_rpc), used to address
// the client's broadcast heartbeat before a leader is latched.
func NewClient(
	clientID string,
	socket rpc.Socket,
	rpcPort int,
	ticker *clock.Ticker,
	heartbeatPeriod time.Duration,
	cam capture.Camera,
	persist capture.Persistence,
	maxOutstanding []int,
	phaseCfg phasealign.Config,
	workers int,
) *Client {
	conv := timedomain.NewClientConverter()
	members := membership.NewClient(clientID, ticker, heartbeatPeriod, conv)
	sync := framesync.New(maxOutstanding)
	phase := phasealign.New(phaseCfg)
	trig := trigger.New(persist)
	transport := rpc.NewTransport(socket, workers)

	c := &Client{
		Transport: transport,
		Members:   members,
		Converter: conv,
		Sync:      sync,
		PhaseCtl:  phase,
		Trigger:   trig,
		camera:    cam,
		ticker:    ticker,
		rpcPort:   rpcPort,
		stop:      make(chan struct{}),
	}

	members.Send = func(addr *net.UDPAddr, id string, synced bool) error {
		return transport.SendTo(addr, MethodHeartbeat, EncodeHeartbeat(HeartbeatPayload{ClientID: id, Synced: synced}))
	}
	members.Broadcast = func(id string, synced bool) error {
		return c.broadcastHeartbeat(id, synced)
	}

	sync.RegisterSink(c.handleMatchedBundle)
	trig.OnPersisted = c.sendCaptureAck

	transport.RegisterHandler(MethodHeartbeatAck, c.handleHeartbeatAck)
	transport.RegisterHandler(MethodSNTPReq, c.handleSNTPReq)
	transport.RegisterHandler(MethodOffsetUpdate, c.handleOffsetUpdate)
	transport.RegisterHandler(MethodSetTriggerTime, c.handleSetTriggerTime)
	transport.RegisterHandler(MethodSet2A, c.handleSet2A)
	transport.RegisterHandler(MethodDoPhaseAlign, c.handleDoPhaseAlign)

	return c
}

func (c *Client) broadcastHeartbeat(clientID string, synced bool) error {
	localIP, err := rpc.FirstIPv4Addr()
	if err != nil {
		return err
	}
	bcast, err := rpc.DeriveBroadcastAddress(localIP)
	if err != nil {
		return err
	}
	addr := &net.UDPAddr{IP: bcast, Port: c.rpcPort}
	return c.Transport.SendTo(addr, MethodHeartbeat, EncodeHeartbeat(HeartbeatPayload{ClientID: clientID, Synced: synced}))
}

// RunHeartbeat starts the periodic HEARTBEAT loop in the background.
// Call alongside Transport.Start; Close stops both.
func (c *Client) RunHeartbeat() {
	go c.Members.Run(c.stop)
}

// Close stops the heartbeat loop, drains the synchronizer, and closes the
// transport.
func (c *Client) Close() error {
	close(c.stop)
	c.Sync.Close()
	return c.Transport.Close()
}

func (c *Client) handleHeartbeatAck(sender *net.UDPAddr, _ []byte) {
	c.Members.HandleHeartbeatAck(sender)
}

func (c *Client) handleSNTPReq(sender *net.UDPAddr, payload []byte) {
	req, err := DecodeSNTPReq(payload)
	if err != nil {
		monitoring.Logf("controller: malformed SNTP_REQ from %v: %v", sender, err)
		return
	}
	t1 := sntp.Respond(c.ticker)
	t2 := sntp.Respond(c.ticker)
	resp := EncodeSNTPResp(SNTPRespPayload{T0: req.T0, T1: t1, T2: t2})
	if err := c.Transport.SendTo(sender, MethodSNTPResp, resp); err != nil {
		monitoring.Logf("controller: SNTP_RESP to %v failed: %v", sender, err)
	}
}

func (c *Client) handleOffsetUpdate(sender *net.UDPAddr, payload []byte) {
	upd, err := DecodeOffsetUpdate(payload)
	if err != nil {
		monitoring.Logf("controller: malformed OFFSET_UPDATE from %v: %v", sender, err)
		return
	}
	c.Members.HandleOffsetUpdate(upd.OffsetNs, upd.ErrorBoundNs)
}

func (c *Client) handleSetTriggerTime(sender *net.UDPAddr, payload []byte) {
	req, err := DecodeSetTriggerTime(payload)
	if err != nil {
		monitoring.Logf("controller: malformed SET_TRIGGER_TIME from %v: %v", sender, err)
		return
	}
	now, convErr := c.Converter.ToLeader(c.ticker.NowNanos())
	if convErr != nil {
		monitoring.Logf("controller: refusing to arm trigger, not yet synced")
		return
	}
	c.Trigger.Arm(req.TTriggerLeaderNs, now)
}

func (c *Client) handleSet2A(sender *net.UDPAddr, payload []byte) {
	req, err := DecodeSet2A(payload)
	if err != nil {
		monitoring.Logf("controller: malformed SET_2A from %v: %v", sender, err)
		return
	}
	tag := capture.NewCaptureRequestTag(uuid.New())
	if err := c.camera.RequestCapture(tag, req.ExposureNs, req.Sensitivity); err != nil {
		monitoring.Logf("controller: SET_2A request_capture failed: %v", err)
	}
}

func (c *Client) handleDoPhaseAlign(sender *net.UDPAddr, _ []byte) {
	c.phaseActive.Store(true)
}

func (c *Client) handleMatchedBundle(bundle capture.MatchedBundle) {
	leaderTS, err := c.Converter.ToLeader(bundle.Metadata.SensorTimestampNs)
	if err != nil {
		monitoring.Logf("controller: dropping bundle, %v", err)
		return
	}

	if c.phaseActive.Load() && !bundle.Metadata.RequestTag.IsInjectFrame() {
		report, injErr := c.PhaseCtl.Measure(leaderTS, func(exposureNs int64) error {
			tag := capture.NewCaptureRequestTag(capture.InjectFrameTag)
			return c.camera.RequestCapture(tag, exposureNs, 0)
		})
		if injErr != nil {
			monitoring.Logf("controller: phase injection failed: %v", injErr)
		}
		if report.Aligned {
			c.phaseActive.Store(false)
		}
	}

	if err := c.Trigger.Observe(bundle, leaderTS); err != nil {
		monitoring.Logf("controller: trigger persist failed: %v", err)
	}
}

// sendCaptureAck reports a persisted bundle's outcome back to the latched
// leader (spec §4.7 CAPTURE_ACK [EXPANSION]), for C11's audit log. A
// leader with C11 disabled simply ignores the datagram; if no leader is
// latched yet, there is nowhere to send it.
func (c *Client) sendCaptureAck(bundle capture.MatchedBundle, leaderTS int64) {
	addr, ok := c.Members.LeaderAddr()
	if !ok {
		return
	}
	payload := EncodeCaptureAck(CaptureAckPayload{
		UserTag:  bundle.Metadata.RequestTag.UserTag.String(),
		LeaderTS: leaderTS,
		Dropped:  bundle.DroppedIndices,
	})
	if err := c.Transport.SendTo(addr, MethodCaptureAck, payload); err != nil {
		monitoring.Logf("controller: CAPTURE_ACK to %v failed: %v", addr, err)
	}
}
