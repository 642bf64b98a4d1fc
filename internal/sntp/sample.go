// Package sntp implements the four-timestamp clock offset exchange
// (spec §4.3): the leader issues a burst of back-to-back exchanges against
// one client and keeps the sample with the smallest round-trip time.
package sntp

import "time"

// Sample is one completed four-timestamp exchange:
//
//	leader  t0 ──────────► client t1
//	                       client t2 ──────────► leader t3
type Sample struct {
	T0, T1, T2, T3 int64
}

// Offset computes the clock offset implied by this sample:
// ((t1-t0) + (t2-t3)) / 2.
func (s Sample) Offset() int64 {
	return ((s.T1 - s.T0) + (s.T2 - s.T3)) / 2
}

// RTT computes the round-trip time implied by this sample:
// (t3-t0) - (t2-t1).
func (s Sample) RTT() int64 {
	return (s.T3 - s.T0) - (s.T2 - s.T1)
}

// ErrorBound is half the round-trip time, the upper bound on |true offset
// - Offset()| under a symmetric channel (spec P5).
func (s Sample) ErrorBound() uint64 {
	rtt := s.RTT()
	if rtt < 0 {
		rtt = 0
	}
	return uint64(rtt) / 2
}

// BurstConfig controls one burst of exchanges against a single client.
type BurstConfig struct {
	// K is the number of exchanges per burst attempt.
	K int
	// S is the pause between receiving one exchange's response and
	// sending the next exchange's request.
	S time.Duration
	// D is the per-exchange deadline; exceeding it abandons the burst.
	D time.Duration
	// R is the number of times a burst is retried after being abandoned.
	R int
}

// DefaultBurstConfig returns the spec-mandated defaults: K=20, S=10ms,
// D=200ms, R=3.
func DefaultBurstConfig() BurstConfig {
	return BurstConfig{
		K: 20,
		S: 10 * time.Millisecond,
		D: 200 * time.Millisecond,
		R: 3,
	}
}
