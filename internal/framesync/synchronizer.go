// Package framesync pairs metadata records with image buffers by exact
// sensor timestamp (spec §4.5, C7).
package framesync

import (
	"sort"
	"sync"

	"github.com/banshee-data/camerasync/internal/capture"
	"github.com/banshee-data/camerasync/internal/monitoring"
	"github.com/banshee-data/camerasync/internal/syncerr"
)

// SinkFunc receives one matched bundle. It is invoked off the sweep's
// critical section by a dedicated worker goroutine, fed through a channel
// that buffers up to 8 bundles. A sink that blocks (e.g. on a downstream
// persistence queue, spec §5) stalls submit_metadata/submit_image callers
// only once that buffer is full: the sweep then waits, holding the lock,
// until the worker takes the next bundle.
type SinkFunc func(capture.MatchedBundle)

// Synchronizer is C7: N single-producer image queues, one metadata queue,
// and per-stream acquired counts, all guarded by a single mutex (spec
// §4.5, §5). It mirrors the teacher's frame-builder pattern of a
// buffered callback channel drained by one worker, with an explicit
// Close() that drains and joins that worker.
type Synchronizer struct {
	maxOutstanding []int

	mu       sync.Mutex
	qMeta    []capture.MetadataRecord
	qImg     [][]*capture.ImageBuffer
	acquired []int
	closed   bool

	sinkCh   chan capture.MatchedBundle
	sinkDone chan struct{}
}

// New constructs a Synchronizer for len(maxOutstanding) image streams,
// stream i permitted maxOutstanding[i] acquired-but-unreleased buffers.
func New(maxOutstanding []int) *Synchronizer {
	n := len(maxOutstanding)
	s := &Synchronizer{
		maxOutstanding: append([]int(nil), maxOutstanding...),
		qImg:           make([][]*capture.ImageBuffer, n),
		acquired:       make([]int, n),
	}
	return s
}

// RegisterSink installs fn as the delivery target for matched bundles and
// starts the worker goroutine that drains them (spec §4.5
// register_sink). Must be called once, before any Submit* call.
func (s *Synchronizer) RegisterSink(fn SinkFunc) {
	s.sinkCh = make(chan capture.MatchedBundle, 8)
	s.sinkDone = make(chan struct{})
	go s.sinkWorker(fn)
}

func (s *Synchronizer) sinkWorker(fn SinkFunc) {
	defer close(s.sinkDone)
	for bundle := range s.sinkCh {
		fn(bundle)
	}
}

// SubmitMetadata enqueues m and sweeps. m is ignored (not enqueued) if its
// request tag carries no targets, per spec §4.5.
func (s *Synchronizer) SubmitMetadata(m capture.MetadataRecord) {
	if len(m.RequestTag.Targets) == 0 {
		monitoring.Logf("framesync: ignoring metadata %d with empty targets", m.SequenceID)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.qMeta = append(s.qMeta, m)
	s.sweepLocked()
	s.mu.Unlock()
}

// SubmitImage enqueues buf on stream i and sweeps, rejecting it if the
// stream's outstanding limit would be exceeded (backpressure is
// rejection, not blocking, per spec §4.5).
func (s *Synchronizer) SubmitImage(streamIndex int, buf *capture.ImageBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return syncerr.ErrClosed
	}
	if s.acquired[streamIndex] >= s.maxOutstanding[streamIndex] {
		return syncerr.ErrBackpressure
	}

	s.acquired[streamIndex]++
	s.qImg[streamIndex] = append(s.qImg[streamIndex], buf)
	s.sweepLocked()
	return nil
}

// Release decrements stream i's acquired count, signaling the consumer
// returned one buffer (spec §4.5 release(i)).
func (s *Synchronizer) Release(streamIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired[streamIndex] <= 0 {
		panic("framesync: release underflow on stream")
	}
	s.acquired[streamIndex]--
}

// AcquiredCount returns the current acquired count for stream i, for
// tests verifying P3 (no leak).
func (s *Synchronizer) AcquiredCount(streamIndex int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired[streamIndex]
}

// Close drops and releases every buffered image and metadata record,
// clears the queues, and waits for the sink worker to drain (spec §4.5
// close()).
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	for i, q := range s.qImg {
		s.acquired[i] -= len(q)
		if s.acquired[i] < 0 {
			s.acquired[i] = 0
		}
		s.qImg[i] = nil
	}
	s.qMeta = nil
	s.mu.Unlock()

	if s.sinkCh != nil {
		close(s.sinkCh)
		<-s.sinkDone
	}
}

// sweepLocked runs the §4.5 sweep algorithm. Caller must hold s.mu.
func (s *Synchronizer) sweepLocked() {
	for len(s.qMeta) > 0 {
		m := s.qMeta[0]
		targets := sortedTargets(m.RequestTag.Targets)

		for {
			heads := make(map[int]*capture.ImageBuffer, len(targets))
			ready := true
			for _, i := range targets {
				if len(s.qImg[i]) == 0 {
					ready = false
					break
				}
				heads[i] = s.qImg[i][0]
			}
			if !ready {
				return // await more arrivals
			}

			images := make([]*capture.ImageBuffer, len(s.qImg))
			var dropped []int
			orphaned := false

			for _, i := range targets {
				h := heads[i]
				switch {
				case m.SensorTimestampNs > h.SensorTimestampNs:
					s.qImg[i] = s.qImg[i][1:]
					s.acquired[i]--
					orphaned = true
				case m.SensorTimestampNs < h.SensorTimestampNs:
					dropped = append(dropped, i)
				default:
					images[i] = h
					s.qImg[i] = s.qImg[i][1:]
				}
			}

			if orphaned {
				continue // restart from step 2 for this same m
			}

			bundle := capture.MatchedBundle{Metadata: m, Images: images, DroppedIndices: dropped}
			s.qMeta = s.qMeta[1:]
			if s.sinkCh != nil {
				s.sinkCh <- bundle
			}
			break
		}
	}
}

func sortedTargets(targets map[int]struct{}) []int {
	out := make([]int, 0, len(targets))
	for i := range targets {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
