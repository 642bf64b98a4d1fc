// Package phasealign implements the damped proportional controller that
// drives a device's sensor frame-start phase toward a shared goal phase
// (spec §4.4).
package phasealign

import (
	"sync"

	"github.com/banshee-data/camerasync/internal/monitoring"
)

// Config holds the controller's tunables, all in nanoseconds except
// StepGain. FramePeriodNs is P, GoalPhaseNs is the target phase, and
// ToleranceNs is the convergence threshold.
type Config struct {
	FramePeriodNs       int64
	GoalPhaseNs         int64
	ToleranceNs         int64
	SettleFrames        int
	StepGain            float64
	MinInjectExposureNs int64
	MaxInjectExposureNs int64
}

// Report is published to observers after every measurement.
type Report struct {
	PhaseErrorNs int64
	Aligned      bool
}

// InjectFunc requests one injection frame of the given exposure from the
// camera collaborator. Implementations must tag the resulting
// CaptureRequestTag.user_tag as INJECT_FRAME so C8 discards it.
type InjectFunc func(exposureNs int64) error

// Controller runs one device's phase-align cycle. It is safe for
// concurrent use; Measure is expected to be called from the sync worker
// draining C7's sink (spec §5), one measurement per matched bundle.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	settleLeft int

	observers []func(Report)
}

// New constructs a Controller from cfg.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// OnReport registers an observer invoked synchronously after every
// measurement.
func (c *Controller) OnReport(fn func(Report)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) notify(r Report) {
	for _, fn := range c.observers {
		fn(r)
	}
}

// Measure runs one control-law step on a leader-domain frame-start
// timestamp (spec §4.4 steps 1-5). inject is invoked at most once, only
// when the controller decides an injection frame is required; it is
// skipped entirely while settling after a prior injection.
func (c *Controller) Measure(tLeadNs int64, inject InjectFunc) (Report, error) {
	c.mu.Lock()
	if c.settleLeft > 0 {
		c.settleLeft--
		c.mu.Unlock()
		return Report{}, nil
	}
	c.mu.Unlock()

	p := c.cfg.FramePeriodNs
	currentPhase := mod(tLeadNs, p)
	errNs := signedMod(currentPhase-c.cfg.GoalPhaseNs, p)

	if abs64(errNs) <= c.cfg.ToleranceNs {
		report := Report{PhaseErrorNs: errNs, Aligned: true}
		c.notify(report)
		return report, nil
	}

	exposure := c.injectionExposure(errNs)
	var err error
	if inject != nil {
		err = inject(exposure)
	}
	if err != nil {
		monitoring.Logf("phasealign: injection request failed: %v", err)
	} else {
		c.mu.Lock()
		c.settleLeft = c.cfg.SettleFrames
		c.mu.Unlock()
	}

	report := Report{PhaseErrorNs: errNs, Aligned: false}
	c.notify(report)
	return report, err
}

// injectionExposure computes δ per spec §4.4 step 4.
func (c *Controller) injectionExposure(errNs int64) int64 {
	var raw int64
	if errNs > 0 {
		raw = c.cfg.FramePeriodNs - int64(float64(errNs)*c.cfg.StepGain)
	} else {
		raw = int64(float64(-errNs) * c.cfg.StepGain)
	}
	return clamp(raw, c.cfg.MinInjectExposureNs, c.cfg.MaxInjectExposureNs)
}

func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// signedMod maps a into [-m/2, m/2), as required by the control law's
// error term.
func signedMod(a, m int64) int64 {
	return mod(a+m/2, m) - m/2
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
