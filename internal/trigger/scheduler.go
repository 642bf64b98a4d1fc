// Package trigger implements the trigger scheduler (spec §4.8, C8): on
// SET_TRIGGER_TIME, selects the first matched bundle whose leader-domain
// timestamp reaches the requested instant and hands it to persistence.
package trigger

import (
	"sync/atomic"

	"github.com/banshee-data/camerasync/internal/capture"
)

// Scheduler holds the single mutable goal_t (spec §4.8). goal_t == 0
// means disarmed.
type Scheduler struct {
	goalT atomic.Int64

	// OnArmed is invoked when SET_TRIGGER_TIME arms the scheduler, with the
	// number of seconds until the requested instant — the UI-notification
	// hook from spec §4.8.
	OnArmed func(secondsUntil float64)

	// OnPersisted is invoked after a bundle is successfully persisted, with
	// the same bundle and leader-domain timestamp handed to Persistence —
	// the CAPTURE_ACK reporting hook from spec §4.7 [EXPANSION].
	OnPersisted func(bundle capture.MatchedBundle, leaderTS int64)

	persist capture.Persistence
	release capture.ReleaseFunc
}

// New constructs a disarmed Scheduler delivering triggered bundles to p.
// p may be nil, to be supplied later via SetPersistence once it is
// available (e.g. a file persister wired to this same client's Sync.Release).
func New(p capture.Persistence) *Scheduler {
	return &Scheduler{persist: p}
}

// SetPersistence rewires the destination for triggered bundles. Callers
// that cannot produce a Persistence until after the Scheduler is built
// (its release callback commonly closes over the Scheduler's own sibling
// components) construct with a nil persist and call this once setup
// completes.
func (s *Scheduler) SetPersistence(p capture.Persistence) {
	s.persist = p
}

// SetRelease registers the callback used to return a discarded bundle's
// acquired images to their source streams (spec §4.8's "release the
// bundle (discard)", spec §3 invariant I2). Like SetPersistence, this is
// commonly wired post-construction since it closes over the same
// Synchronizer.Release the Scheduler's own sink chain feeds into.
func (s *Scheduler) SetRelease(release capture.ReleaseFunc) {
	s.release = release
}

// releaseBundle returns every acquired image in bundle to its stream,
// per the discard path of spec §4.8.
func (s *Scheduler) releaseBundle(bundle capture.MatchedBundle) {
	if s.release == nil {
		return
	}
	for i, img := range bundle.Images {
		if img != nil {
			s.release(i)
		}
	}
}

// Arm implements SET_TRIGGER_TIME(t*): atomically stores goal_t and
// notifies OnArmed of the lead time.
func (s *Scheduler) Arm(tTriggerLeaderNs, nowLeaderNs int64) {
	s.goalT.Store(tTriggerLeaderNs)
	if s.OnArmed != nil {
		s.OnArmed(float64(tTriggerLeaderNs-nowLeaderNs) / 1e9)
	}
}

// GoalT returns the currently armed trigger instant, or 0 if disarmed.
func (s *Scheduler) GoalT() int64 {
	return s.goalT.Load()
}

// Observe processes one MatchedBundle already converted to leader-domain
// time (spec §4.8): a disarmed scheduler or an injection frame releases
// the bundle; otherwise the first bundle at or past goal_t is persisted
// and the scheduler disarms.
func (s *Scheduler) Observe(bundle capture.MatchedBundle, leaderTS int64) error {
	if bundle.Metadata.RequestTag.IsInjectFrame() {
		s.releaseBundle(bundle)
		return nil
	}

	goal := s.goalT.Load()
	if goal == 0 {
		s.releaseBundle(bundle)
		return nil
	}
	if leaderTS < goal {
		s.releaseBundle(bundle)
		return nil
	}

	if !s.goalT.CompareAndSwap(goal, 0) {
		// Another observer already claimed this trigger window.
		s.releaseBundle(bundle)
		return nil
	}
	if err := s.persist.Persist(bundle, leaderTS); err != nil {
		return err
	}
	if s.OnPersisted != nil {
		s.OnPersisted(bundle, leaderTS)
	}
	return nil
}
