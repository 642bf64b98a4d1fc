// Package fake provides in-memory Camera and Persistence doubles for
// tests, analogous to the teacher's MockUDPSocket/noopStats testing
// doubles (spec §5 expansion).
package fake

import (
	"sync"

	"github.com/banshee-data/camerasync/internal/capture"
)

// CaptureRequest records one call to Camera.RequestCapture.
type CaptureRequest struct {
	Tag         capture.CaptureRequestTag
	ExposureNs  int64
	Sensitivity int32
}

// Camera is an in-memory capture.Camera that records every request and
// optionally fails on demand.
type Camera struct {
	mu       sync.Mutex
	requests []CaptureRequest
	Err      error
}

// RequestCapture implements capture.Camera.
func (c *Camera) RequestCapture(tag capture.CaptureRequestTag, exposureNs int64, sensitivity int32) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, CaptureRequest{Tag: tag, ExposureNs: exposureNs, Sensitivity: sensitivity})
	return nil
}

// Requests returns every recorded request in call order.
func (c *Camera) Requests() []CaptureRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CaptureRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// PersistCall records one call to Persistence.Persist.
type PersistCall struct {
	Bundle   capture.MatchedBundle
	LeaderTS int64
}

// Persistence is an in-memory capture.Persistence that records every
// bundle it receives and releases images via Release, if set.
type Persistence struct {
	mu      sync.Mutex
	calls   []PersistCall
	Err     error
	Release func(streamIndex int)
}

// Persist implements capture.Persistence.
func (p *Persistence) Persist(bundle capture.MatchedBundle, leaderTS int64) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	p.calls = append(p.calls, PersistCall{Bundle: bundle, LeaderTS: leaderTS})
	p.mu.Unlock()

	if p.Release != nil {
		for i, img := range bundle.Images {
			if img != nil {
				p.Release(i)
			}
		}
	}
	return nil
}

// Calls returns every recorded Persist call in order.
func (p *Persistence) Calls() []PersistCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PersistCall, len(p.calls))
	copy(out, p.calls)
	return out
}
