package framesync

import (
	"sync"
	"testing"

	"github.com/banshee-data/camerasync/internal/capture"
	"github.com/banshee-data/camerasync/internal/syncerr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meta(ts int64, targets ...int) capture.MetadataRecord {
	return capture.MetadataRecord{
		RequestTag:        capture.NewCaptureRequestTag(uuid.New(), targets...),
		SensorTimestampNs: ts,
	}
}

func img(stream int, ts int64) *capture.ImageBuffer {
	return &capture.ImageBuffer{StreamIndex: stream, SensorTimestampNs: ts}
}

type collector struct {
	mu      sync.Mutex
	bundles []capture.MatchedBundle
}

func (c *collector) sink(b capture.MatchedBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles = append(c.bundles, b)
}

func (c *collector) drain(t *testing.T, n int) []capture.MatchedBundle {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.bundles) >= n
	}, testEventuallyTimeout, testEventuallyTick)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]capture.MatchedBundle, len(c.bundles))
	copy(out, c.bundles)
	return out
}

// Scenario 1 from spec §8: ideal match.
func TestScenario1IdealMatch(t *testing.T) {
	s := New([]int{4, 4})
	c := &collector{}
	s.RegisterSink(c.sink)
	defer s.Close()

	require.NoError(t, s.SubmitImage(0, img(0, 1000)))
	s.SubmitMetadata(meta(1000, 0, 1))
	require.NoError(t, s.SubmitImage(1, img(1, 1000)))

	bundles := c.drain(t, 1)
	require.Len(t, bundles, 1)
	b := bundles[0]
	assert.Equal(t, int64(1000), b.Metadata.SensorTimestampNs)
	assert.Empty(t, b.DroppedIndices)
	require.Len(t, b.Images, 2)
	assert.Equal(t, int64(1000), b.Images[0].SensorTimestampNs)
	assert.Equal(t, int64(1000), b.Images[1].SensorTimestampNs)
}

// Scenario 2 from spec §8: image dropped on stream 1 for the first
// bundle, ideal match for the second.
func TestScenario2ImageDropped(t *testing.T) {
	s := New([]int{4, 4})
	c := &collector{}
	s.RegisterSink(c.sink)
	defer s.Close()

	s.SubmitMetadata(meta(2000, 0, 1))
	require.NoError(t, s.SubmitImage(0, img(0, 2000)))
	s.SubmitMetadata(meta(3000, 0, 1))
	require.NoError(t, s.SubmitImage(0, img(0, 3000)))
	require.NoError(t, s.SubmitImage(1, img(1, 3000)))

	bundles := c.drain(t, 2)
	require.Len(t, bundles, 2)

	b1 := bundles[0]
	assert.Equal(t, int64(2000), b1.Metadata.SensorTimestampNs)
	assert.Equal(t, []int{1}, b1.DroppedIndices)
	assert.NotNil(t, b1.Images[0])
	assert.Nil(t, b1.Images[1])

	b2 := bundles[1]
	assert.Equal(t, int64(3000), b2.Metadata.SensorTimestampNs)
	assert.Empty(t, b2.DroppedIndices)
	assert.NotNil(t, b2.Images[0])
	assert.NotNil(t, b2.Images[1])
}

// Scenario 3 from spec §8: metadata dropped — the first image on each
// stream (both at 4000) was never matched and is released as an orphan.
func TestScenario3MetadataDropped(t *testing.T) {
	s := New([]int{4, 4})
	c := &collector{}
	s.RegisterSink(c.sink)
	defer s.Close()

	require.NoError(t, s.SubmitImage(0, img(0, 4000)))
	require.NoError(t, s.SubmitImage(1, img(1, 4000)))
	s.SubmitMetadata(meta(5000, 0, 1))
	require.NoError(t, s.SubmitImage(0, img(0, 5000)))
	require.NoError(t, s.SubmitImage(1, img(1, 5000)))

	bundles := c.drain(t, 1)
	require.Len(t, bundles, 1)
	b := bundles[0]
	assert.Equal(t, int64(5000), b.Metadata.SensorTimestampNs)
	assert.Empty(t, b.DroppedIndices)
	assert.Equal(t, int64(5000), b.Images[0].SensorTimestampNs)
	assert.Equal(t, int64(5000), b.Images[1].SensorTimestampNs)

	// The orphaned 4000 buffers were released internally, not handed to
	// the consumer; only the matched pair remains acquired.
	assert.Equal(t, 1, s.AcquiredCount(0))
	assert.Equal(t, 1, s.AcquiredCount(1))
}

func TestSubmitMetadataIgnoresEmptyTargets(t *testing.T) {
	s := New([]int{4})
	c := &collector{}
	s.RegisterSink(c.sink)
	defer s.Close()

	s.SubmitMetadata(capture.MetadataRecord{SensorTimestampNs: 10})
	require.NoError(t, s.SubmitImage(0, img(0, 10)))

	assert.Never(t, func() bool {
		return len(c.drainNoWait()) > 0
	}, testEventuallyTimeout, testEventuallyTick)
}

func (c *collector) drainNoWait() []capture.MatchedBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]capture.MatchedBundle, len(c.bundles))
	copy(out, c.bundles)
	return out
}

func TestSubmitImageRejectsOverOutstandingLimit(t *testing.T) {
	s := New([]int{1})
	c := &collector{}
	s.RegisterSink(c.sink)
	defer s.Close()

	require.NoError(t, s.SubmitImage(0, img(0, 1)))
	err := s.SubmitImage(0, img(0, 2))
	assert.ErrorIs(t, err, syncerr.ErrBackpressure)
}

// P3: after all inputs are delivered and all outputs released, every
// stream's acquired count returns to zero.
func TestP3NoLeak(t *testing.T) {
	s := New([]int{4, 4})
	c := &collector{}
	s.RegisterSink(c.sink)
	defer s.Close()

	require.NoError(t, s.SubmitImage(0, img(0, 1000)))
	s.SubmitMetadata(meta(1000, 0, 1))
	require.NoError(t, s.SubmitImage(1, img(1, 1000)))

	c.drain(t, 1)
	s.Release(0)
	s.Release(1)

	assert.Equal(t, 0, s.AcquiredCount(0))
	assert.Equal(t, 0, s.AcquiredCount(1))
}

// P2: metadata timestamps emitted by C7 are strictly increasing.
func TestP2MonotoneOutput(t *testing.T) {
	s := New([]int{3})
	c := &collector{}
	s.RegisterSink(c.sink)
	defer s.Close()

	for _, ts := range []int64{100, 200, 300} {
		require.NoError(t, s.SubmitImage(0, img(0, ts)))
		s.SubmitMetadata(meta(ts, 0))
	}

	bundles := c.drain(t, 3)
	var last int64 = -1
	for _, b := range bundles {
		assert.Greater(t, b.Metadata.SensorTimestampNs, last)
		last = b.Metadata.SensorTimestampNs
	}
}
