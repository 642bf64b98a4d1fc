package sntp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Scenario 4 from spec §8: leader t0=100, client t1=1_000_100,
// t2=1_000_200, leader t3=300.
func TestSampleScenario4(t *testing.T) {
	s := Sample{T0: 100, T1: 1_000_100, T2: 1_000_200, T3: 300}

	assert.Equal(t, int64(999_950), s.Offset())
	assert.Equal(t, int64(100), s.RTT())
	assert.Equal(t, uint64(50), s.ErrorBound())
}

func TestErrorBoundFloorsAtZeroForNegativeRTT(t *testing.T) {
	// A pathological sample where clock skew makes naive RTT negative;
	// ErrorBound must not return a huge unsigned wraparound.
	s := Sample{T0: 1000, T1: 1000, T2: 1000, T3: 0}
	assert.Equal(t, uint64(0), s.ErrorBound())
}
