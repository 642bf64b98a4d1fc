package sntp

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/camerasync/internal/clock"
	"github.com/banshee-data/camerasync/internal/monitoring"
	"github.com/banshee-data/camerasync/internal/timedomain"
	"gonum.org/v1/gonum/stat"
)

// RequestFunc sends an SNTP_REQ{t0} to addr. The actual encoding and
// transport send live in the controller; the estimator only needs to
// trigger one.
type RequestFunc func(addr *net.UDPAddr, t0 int64) error

// pendingKey correlates an asynchronous SNTP_RESP back to the goroutine
// waiting on it. The response payload echoes t0, so (addr, t0) is a
// sufficient correlation key as long as a burst never reuses a t0 value,
// which the strictly monotonic Ticker guarantees.
type pendingKey struct {
	addr string
	t0   int64
}

// Estimator drives the leader side of the SNTP burst protocol. One
// Estimator is shared by every in-flight burst; HandleResponse is safe to
// call concurrently from the RPC dispatch workers.
type Estimator struct {
	ticker *clock.Ticker
	cfg    BurstConfig

	mu      sync.Mutex
	pending map[pendingKey]chan Sample
}

// NewEstimator constructs an Estimator using the leader's shared Ticker.
func NewEstimator(ticker *clock.Ticker, cfg BurstConfig) *Estimator {
	return &Estimator{
		ticker:  ticker,
		cfg:     cfg,
		pending: make(map[pendingKey]chan Sample),
	}
}

// HandleResponse completes a pending exchange when the client's
// SNTP_RESP{t0,t1,t2} arrives. t3 is stamped as the leader's current
// ticker reading. Unmatched responses (late, or from an abandoned burst)
// are logged and discarded.
func (e *Estimator) HandleResponse(addr *net.UDPAddr, t0, t1, t2 int64) {
	t3 := e.ticker.NowNanos()
	key := pendingKey{addr: addr.String(), t0: t0}

	e.mu.Lock()
	ch, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
	}
	e.mu.Unlock()

	if !ok {
		monitoring.Logf("sntp: unmatched SNTP_RESP from %v (t0=%d)", addr, t0)
		return
	}

	select {
	case ch <- Sample{T0: t0, T1: t1, T2: t2, T3: t3}:
	default:
	}
}

func (e *Estimator) register(key pendingKey) chan Sample {
	ch := make(chan Sample, 1)
	e.mu.Lock()
	e.pending[key] = ch
	e.mu.Unlock()
	return ch
}

func (e *Estimator) unregister(key pendingKey) {
	e.mu.Lock()
	delete(e.pending, key)
	e.mu.Unlock()
}

// RunBurst issues attempts of cfg.K back-to-back exchanges against addr
// via send, retaining the sample with the smallest RTT across a completed
// attempt. An attempt is abandoned when some exchange exceeds cfg.D and is
// then retried, up to cfg.R retries after the first attempt. It returns
// ok=false if the first attempt and every retry were abandoned, per spec
// §4.3.
func (e *Estimator) RunBurst(ctx context.Context, addr *net.UDPAddr, send RequestFunc) (timedomain.Offset, bool) {
	attempts := e.cfg.R + 1
	for attempt := 0; attempt < attempts; attempt++ {
		samples, ok := e.runOneAttempt(ctx, addr, send)
		if ok {
			logRTTQuantiles(addr, samples)
			best := pickBestRTT(samples)
			return timedomain.Offset{
				OffsetNs:     best.Offset(),
				ErrorBoundNs: best.ErrorBound(),
			}, true
		}
		monitoring.Logf("sntp: burst attempt %d/%d against %v abandoned", attempt+1, attempts, addr)
	}
	return timedomain.Offset{}, false
}

func (e *Estimator) runOneAttempt(ctx context.Context, addr *net.UDPAddr, send RequestFunc) ([]Sample, bool) {
	samples := make([]Sample, 0, e.cfg.K)

	for i := 0; i < e.cfg.K; i++ {
		t0 := e.ticker.NowNanos()
		key := pendingKey{addr: addr.String(), t0: t0}
		ch := e.register(key)

		if err := send(addr, t0); err != nil {
			e.unregister(key)
			monitoring.Logf("sntp: send SNTP_REQ to %v failed: %v", addr, err)
			return nil, false
		}

		select {
		case sample := <-ch:
			samples = append(samples, sample)
		case <-ctx.Done():
			e.unregister(key)
			return nil, false
		case <-time.After(e.cfg.D):
			e.unregister(key)
			return nil, false
		}

		if i < e.cfg.K-1 {
			select {
			case <-ctx.Done():
				return nil, false
			case <-time.After(e.cfg.S):
			}
		}
	}

	return samples, true
}

// logRTTQuantiles reports the P50/P85/P98 round-trip time across a
// completed burst attempt, for operator diagnostics.
func logRTTQuantiles(addr *net.UDPAddr, samples []Sample) {
	rtts := make([]float64, len(samples))
	for i, s := range samples {
		rtts[i] = float64(s.RTT())
	}
	sort.Float64s(rtts)
	p50 := stat.Quantile(0.5, stat.Empirical, rtts, nil)
	p85 := stat.Quantile(0.85, stat.Empirical, rtts, nil)
	p98 := stat.Quantile(0.98, stat.Empirical, rtts, nil)
	monitoring.Logf("sntp: burst against %v RTT ns p50=%.0f p85=%.0f p98=%.0f (n=%d)", addr, p50, p85, p98, len(rtts))
}

func pickBestRTT(samples []Sample) Sample {
	best := samples[0]
	for _, s := range samples[1:] {
		if s.RTT() < best.RTT() {
			best = s
		}
	}
	return best
}

// Respond stamps the client side of one exchange. Call once immediately
// on receiving SNTP_REQ{t0} to get t1, and again immediately before
// sending SNTP_RESP{t0,t1,t2} to get t2.
func Respond(ticker *clock.Ticker) (stamp int64) {
	return ticker.NowNanos()
}
