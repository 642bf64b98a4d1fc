package phasealign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 5 from spec §8.
func TestScenario5PhaseStep(t *testing.T) {
	cfg := Config{
		FramePeriodNs:       33_333_333,
		GoalPhaseNs:         0,
		ToleranceNs:         100_000,
		StepGain:            0.5,
		SettleFrames:        1,
		MinInjectExposureNs: 0,
		MaxInjectExposureNs: 1 << 40,
	}
	c := New(cfg)

	// Construct a leader-domain timestamp whose phase relative to the goal
	// is exactly +10_000_000, matching the scenario's starting error.
	tLead := int64(10_000_000)

	var injectedExposure int64
	report, err := c.Measure(tLead, func(exposureNs int64) error {
		injectedExposure = exposureNs
		return nil
	})
	require.NoError(t, err)
	assert.False(t, report.Aligned)
	assert.Equal(t, int64(10_000_000), report.PhaseErrorNs)
	assert.Equal(t, int64(28_333_333), injectedExposure)
}

func TestMeasureReportsAlignedWithinTolerance(t *testing.T) {
	cfg := Config{
		FramePeriodNs: 1000,
		GoalPhaseNs:   0,
		ToleranceNs:   50,
		StepGain:      0.5,
	}
	c := New(cfg)

	report, err := c.Measure(30, nil)
	require.NoError(t, err)
	assert.True(t, report.Aligned)
	assert.Equal(t, int64(30), report.PhaseErrorNs)
}

func TestMeasureSkipsDuringSettle(t *testing.T) {
	cfg := Config{
		FramePeriodNs:       1000,
		GoalPhaseNs:         0,
		ToleranceNs:         10,
		StepGain:            0.5,
		SettleFrames:        2,
		MinInjectExposureNs: 0,
		MaxInjectExposureNs: 1000,
	}
	c := New(cfg)

	injections := 0
	inject := func(exposureNs int64) error { injections++; return nil }

	_, err := c.Measure(400, inject) // error well beyond tolerance, triggers inject
	require.NoError(t, err)
	assert.Equal(t, 1, injections)

	// Next two measurements are consumed by the settle countdown and must
	// not re-measure or re-inject.
	r1, err := c.Measure(400, inject)
	require.NoError(t, err)
	assert.Equal(t, Report{}, r1)

	r2, err := c.Measure(400, inject)
	require.NoError(t, err)
	assert.Equal(t, Report{}, r2)
	assert.Equal(t, 1, injections)

	// Settle exhausted: measurement resumes.
	r3, err := c.Measure(400, inject)
	require.NoError(t, err)
	assert.NotEqual(t, Report{}, r3)
}

// P6: successive errors under the control law shrink by at least
// (1 - step_gain) per step for a device whose error starts within range
// and whose subsequent frame timestamps reflect the corrected phase.
func TestP6PhaseConvergence(t *testing.T) {
	const period = int64(33_333_333)
	cfg := Config{
		FramePeriodNs:       period,
		GoalPhaseNs:         0,
		ToleranceNs:         1,
		StepGain:            0.5,
		SettleFrames:        0,
		MinInjectExposureNs: 0,
		MaxInjectExposureNs: 1 << 40,
	}
	c := New(cfg)

	errNs := int64(10_000_000)
	prevAbs := int64(-1)
	for i := 0; i < 20 && absInt64(errNs) > cfg.ToleranceNs; i++ {
		report, err := c.Measure(errNs, func(exposureNs int64) error { return nil })
		require.NoError(t, err)
		// A noise-free exponential controller halves the error exactly
		// each step under these parameters; verify the bound from P6
		// against the previous step's measured error.
		if prevAbs >= 0 {
			assert.LessOrEqual(t, absInt64(report.PhaseErrorNs), int64(float64(prevAbs)*(1-cfg.StepGain))+1)
		}
		if report.Aligned {
			break
		}
		prevAbs = absInt64(report.PhaseErrorNs)
		errNs = errNs / 2
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
