// Package capturelog is C11, the capture log store: a SQLite-backed
// secondary record of triggered captures, installed offsets, and
// membership changes, grounded in the teacher's internal/db/db.go wrapper
// around *sql.DB (driver modernc.org/sqlite) plus its tsweb/tailsql admin
// wiring. It is a queryable audit trail, distinct from the §6.5 per-capture
// sidecar files that capture.FilePersistence writes.
package capturelog

import (
	"database/sql"
	"embed"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/camerasync/internal/membership"
	"github.com/banshee-data/camerasync/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a *sql.DB opened against the capture log's sqlite file.
type DB struct {
	*sql.DB
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("capturelog: pragma %q failed: %w", p, err)
		}
	}
	return nil
}

// Open opens (creating if absent) the capture log database at path and
// migrates it to the latest schema version.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("capturelog: open failed: %w", err)
	}
	db := &DB{sqlDB}
	if err := applyPragmas(sqlDB); err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		return nil, fmt.Errorf("capturelog: migration failed: %w", err)
	}
	return db, nil
}

// RecordCapture appends a row for a persisted bundle (spec §4.7
// CAPTURE_ACK). droppedIndices is stored comma-joined, matching the wire
// payload's own encoding.
func (db *DB) RecordCapture(userTag string, leaderTSNs int64, droppedIndices []int) error {
	dropped := make([]string, len(droppedIndices))
	for i, idx := range droppedIndices {
		dropped[i] = fmt.Sprintf("%d", idx)
	}
	_, err := db.Exec(
		`INSERT INTO captures (user_tag, leader_ts_ns, dropped, recorded_at_unix_nanos) VALUES (?, ?, ?, ?)`,
		userTag, leaderTSNs, strings.Join(dropped, ","), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("capturelog: record capture failed: %w", err)
	}
	return nil
}

// RecordOffset appends a row each time a client's negotiated offset is
// installed (spec §4.3).
func (db *DB) RecordOffset(clientID string, offsetNs int64, errorBoundNs uint64) error {
	_, err := db.Exec(
		`INSERT INTO offsets (client_id, offset_ns, error_bound_ns, installed_at_unix_nanos) VALUES (?, ?, ?, ?)`,
		clientID, offsetNs, int64(errorBoundNs), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("capturelog: record offset failed: %w", err)
	}
	return nil
}

// RecordMembershipEvent appends a row for a join or eviction (spec §4.2).
func (db *DB) RecordMembershipEvent(clientID, addr, event string) error {
	_, err := db.Exec(
		`INSERT INTO membership_events (client_id, addr, event, at_unix_nanos) VALUES (?, ?, ?, ?)`,
		clientID, addr, event, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("capturelog: record membership event failed: %w", err)
	}
	return nil
}

// CaptureRecord is one row of the captures table, as returned by
// RecentCaptures.
type CaptureRecord struct {
	UserTag        string
	LeaderTSNs     int64
	DroppedIndices []int
}

// RecentCaptures returns the most recent limit capture rows, newest first.
func (db *DB) RecentCaptures(limit int) ([]CaptureRecord, error) {
	rows, err := db.Query(
		`SELECT user_tag, leader_ts_ns, dropped FROM captures ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("capturelog: recent captures query failed: %w", err)
	}
	defer rows.Close()

	var out []CaptureRecord
	for rows.Next() {
		var rec CaptureRecord
		var dropped string
		if err := rows.Scan(&rec.UserTag, &rec.LeaderTSNs, &dropped); err != nil {
			return nil, fmt.Errorf("capturelog: recent captures scan failed: %w", err)
		}
		if dropped != "" {
			for _, s := range strings.Split(dropped, ",") {
				idx, err := strconv.Atoi(s)
				if err != nil {
					return nil, fmt.Errorf("capturelog: malformed dropped index %q: %w", s, err)
				}
				rec.DroppedIndices = append(rec.DroppedIndices, idx)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SubscribeMembership wires a membership.Registry's observer stream
// directly into the membership_events table.
func (db *DB) SubscribeMembership(registry *membership.Registry) {
	registry.OnMembershipChange(func(ev membership.Event) {
		var kind string
		switch ev.Kind {
		case membership.Joined:
			kind = "joined"
		case membership.Evicted:
			kind = "evicted"
		default:
			return
		}
		addr := ""
		if ev.Record.Addr != nil {
			addr = ev.Record.Addr.String()
		}
		if err := db.RecordMembershipEvent(ev.Record.ClientID, addr, kind); err != nil {
			monitoring.Logf("capturelog: %v", err)
		}
	})
}

// AttachAdminRoutes mounts tsweb debug routes plus a read-only tailsql SQL
// browser over the capture log, mirroring the teacher's db.go wiring.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("capturelog: tailsql server init failed: %v", err)
		return
	}
	tsql.SetDB("sqlite://capturelog", db.DB, &tailsql.DBOptions{
		Label: "Camera Sync Capture Log",
	})
	debug.Handle("tailsql/", "SQL live debugging of the capture log", tsql.NewMux())
}
