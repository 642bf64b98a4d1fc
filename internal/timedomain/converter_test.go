package timedomain

import (
	"testing"

	"github.com/banshee-data/camerasync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderConverterIsIdentity(t *testing.T) {
	c := NewLeaderConverter()
	got, err := c.ToLeader(12345)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), got)
}

func TestClientConverterUnsyncedBeforeInstall(t *testing.T) {
	c := NewClientConverter()
	_, err := c.ToLeader(100)
	assert.ErrorIs(t, err, syncerr.ErrUnsynced)
	_, err = c.ToLocal(100)
	assert.ErrorIs(t, err, syncerr.ErrUnsynced)
}

func TestRoundTrip(t *testing.T) {
	c := NewClientConverter()
	c.Install(Offset{OffsetNs: 999_950, ErrorBoundNs: 50})

	for _, x := range []int64{0, 1, -1, 1_000_000, -1_000_000} {
		leaderNs, err := c.ToLeader(x)
		require.NoError(t, err)
		localNs, err := c.ToLocal(leaderNs)
		require.NoError(t, err)
		assert.Equal(t, x, localNs, "P4 round trip failed for %d", x)
	}
}

func TestInstallLatestWins(t *testing.T) {
	c := NewClientConverter()
	c.Install(Offset{OffsetNs: 100, ErrorBoundNs: 10})
	c.Install(Offset{OffsetNs: 200, ErrorBoundNs: 999}) // worse bound, still wins

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, int64(200), cur.OffsetNs)
	assert.Equal(t, uint64(999), cur.ErrorBoundNs)
}
