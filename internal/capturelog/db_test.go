package capturelog

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/banshee-data/camerasync/internal/membership"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capturelog.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMigratesToLatest(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestRecordCapture(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordCapture("tag-1", 10_000_000, []int{2, 3}))

	var userTag, dropped string
	var leaderTS int64
	row := db.QueryRow(`SELECT user_tag, leader_ts_ns, dropped FROM captures`)
	require.NoError(t, row.Scan(&userTag, &leaderTS, &dropped))
	assert.Equal(t, "tag-1", userTag)
	assert.Equal(t, int64(10_000_000), leaderTS)
	assert.Equal(t, "2,3", dropped)
}

func TestRecordCaptureNoDropped(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordCapture("tag-2", 5, nil))

	var dropped string
	row := db.QueryRow(`SELECT dropped FROM captures WHERE user_tag = ?`, "tag-2")
	require.NoError(t, row.Scan(&dropped))
	assert.Equal(t, "", dropped)
}

func TestRecordOffset(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordOffset("cam-1", -500, 20))

	var clientID string
	var offsetNs, errBound int64
	row := db.QueryRow(`SELECT client_id, offset_ns, error_bound_ns FROM offsets`)
	require.NoError(t, row.Scan(&clientID, &offsetNs, &errBound))
	assert.Equal(t, "cam-1", clientID)
	assert.Equal(t, int64(-500), offsetNs)
	assert.Equal(t, int64(20), errBound)
}

func TestRecentCaptures(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordCapture("tag-1", 1000, nil))
	require.NoError(t, db.RecordCapture("tag-2", 2000, []int{1}))
	require.NoError(t, db.RecordCapture("tag-3", 3000, []int{0, 2}))

	got, err := db.RecentCaptures(2)
	require.NoError(t, err)

	want := []CaptureRecord{
		{UserTag: "tag-3", LeaderTSNs: 3000, DroppedIndices: []int{0, 2}},
		{UserTag: "tag-2", LeaderTSNs: 2000, DroppedIndices: []int{1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RecentCaptures() mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeMembershipRecordsJoin(t *testing.T) {
	db := openTestDB(t)
	registry := membership.NewRegistry(0)
	db.SubscribeMembership(registry)

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 7000}
	registry.Upsert("cam-1", addr, 1000)

	var count int
	row := db.QueryRow(`SELECT COUNT(*) FROM membership_events WHERE client_id = ? AND event = ?`, "cam-1", "joined")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSubscribeMembershipRecordsEviction(t *testing.T) {
	db := openTestDB(t)
	registry := membership.NewRegistry(0) // expireAfter=0: any gap evicts
	db.SubscribeMembership(registry)

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 7000}
	registry.Upsert("cam-1", addr, 1000)
	registry.EvictStale(2000)

	var count int
	row := db.QueryRow(`SELECT COUNT(*) FROM membership_events WHERE client_id = ? AND event = ?`, "cam-1", "evicted")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}
