// Package timedomain converts between a device's local monotonic clock
// and the leader's time domain using the offset most recently installed
// by the clock offset estimator (internal/sntp).
package timedomain

import (
	"sync/atomic"

	"github.com/banshee-data/camerasync/internal/syncerr"
)

// Offset is a signed nanosecond correction with an upper-bound error
// estimate: leader_ns ~= local_ns + OffsetNs.
type Offset struct {
	OffsetNs     int64
	ErrorBoundNs uint64
}

// IdentityOffset is the leader's own offset: always zero correction with
// no uncertainty.
var IdentityOffset = Offset{OffsetNs: 0, ErrorBoundNs: 0}

// Converter holds the current offset behind an atomic pointer so readers
// never observe a torn (offset, error_bound) pair and installs are
// total-ordered (latest wins), matching spec §4.6 and §5.
type Converter struct {
	current atomic.Pointer[Offset]
}

// NewLeaderConverter returns a Converter pre-installed with the identity
// offset, as required for a leader (spec §3, Entity: Offset).
func NewLeaderConverter() *Converter {
	c := &Converter{}
	c.current.Store(&IdentityOffset)
	return c
}

// NewClientConverter returns a Converter with no offset installed. Callers
// must check Installed() before converting; ToLeader/ToLocal return
// ErrUnsynced until Install is called.
func NewClientConverter() *Converter {
	return &Converter{}
}

// Install atomically replaces the current offset. Per spec's Open Question
// 2, updates are unconditional: the newest offset always wins regardless
// of whether its error bound is better than the one it replaces.
func (c *Converter) Install(o Offset) {
	cp := o
	c.current.Store(&cp)
}

// Installed reports whether an offset has ever been installed.
func (c *Converter) Installed() bool {
	return c.current.Load() != nil
}

// Current returns the installed offset, or ok=false if none has been
// installed yet.
func (c *Converter) Current() (Offset, bool) {
	p := c.current.Load()
	if p == nil {
		return Offset{}, false
	}
	return *p, true
}

// ToLeader converts a local nanosecond reading into the leader's domain.
func (c *Converter) ToLeader(localNs int64) (int64, error) {
	o, ok := c.Current()
	if !ok {
		return 0, syncerr.ErrUnsynced
	}
	return localNs + o.OffsetNs, nil
}

// ToLocal converts a leader-domain nanosecond reading back to local time.
// P4 (offset round-trip) requires ToLocal(ToLeader(x)) == x for any x,
// which holds exactly since both directions add/subtract the same
// OffsetNs snapshot — callers must not mix readings taken before and
// after an Install for the round-trip property to hold.
func (c *Converter) ToLocal(leaderNs int64) (int64, error) {
	o, ok := c.Current()
	if !ok {
		return 0, syncerr.ErrUnsynced
	}
	return leaderNs - o.OffsetNs, nil
}
